// Package memory implements domain.Store with plain in-process maps. It
// backs the dev mode and the test suites: Atomic takes a snapshot of the
// whole state and restores it when the unit fails, giving the same
// all-or-nothing visibility as the postgres implementation without any
// external service.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/causeway-labs/causeway/internal/domain"
)

// state is the entire ledger world. All maps are owned by Store and only
// touched with the store mutex held.
type state struct {
	nextEventID  int64
	nextClauseID int64
	nextAuditID  int64

	events      map[int64]domain.Event
	clauses     map[int64]domain.Clause
	clauseIndex map[int64][]int64
	cases       map[int64]domain.OracleCase
	votes       map[int64]map[domain.Address]domain.Vote
	stakes      map[int64]map[domain.Address]domain.Amount
	balances    map[domain.Address]domain.Amount
	transfers   []domain.Transfer
	audit       []domain.AuditEntry
}

func newState() *state {
	return &state{
		nextEventID:  1,
		nextClauseID: 1,
		nextAuditID:  1,
		events:       map[int64]domain.Event{},
		clauses:      map[int64]domain.Clause{},
		clauseIndex:  map[int64][]int64{},
		cases:        map[int64]domain.OracleCase{},
		votes:        map[int64]map[domain.Address]domain.Vote{},
		stakes:       map[int64]map[domain.Address]domain.Amount{},
		balances:     map[domain.Address]domain.Amount{},
	}
}

// clone deep-copies the state for snapshot rollback.
func (st *state) clone() *state {
	cp := &state{
		nextEventID:  st.nextEventID,
		nextClauseID: st.nextClauseID,
		nextAuditID:  st.nextAuditID,
		events:       maps.Clone(st.events),
		clauses:      maps.Clone(st.clauses),
		clauseIndex:  make(map[int64][]int64, len(st.clauseIndex)),
		cases:        maps.Clone(st.cases),
		votes:        make(map[int64]map[domain.Address]domain.Vote, len(st.votes)),
		stakes:       make(map[int64]map[domain.Address]domain.Amount, len(st.stakes)),
		balances:     maps.Clone(st.balances),
		transfers:    slices.Clone(st.transfers),
		audit:        slices.Clone(st.audit),
	}
	for k, v := range st.clauseIndex {
		cp.clauseIndex[k] = slices.Clone(v)
	}
	for k, v := range st.votes {
		cp.votes[k] = maps.Clone(v)
	}
	for k, v := range st.stakes {
		cp.stakes[k] = maps.Clone(v)
	}
	return cp
}

// Store implements domain.Store in memory.
type Store struct {
	mu sync.Mutex
	st *state

	// inTx marks a view handed to an Atomic callback; such views share the
	// outer lock and must not re-lock.
	inTx bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// Atomic runs fn against a view of the store that shares the current state.
// If fn returns an error, every mutation it made is discarded.
func (s *Store) Atomic(ctx context.Context, fn func(domain.Store) error) error {
	if s.inTx {
		// Nested unit inside an already-serialized callback: still honor
		// rollback by snapshotting.
		snap := s.st.clone()
		if err := fn(s); err != nil {
			*s.st = *snap
			return err
		}
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.st.clone()
	view := &Store{st: s.st, inTx: true}
	if err := fn(view); err != nil {
		s.st = snap
		return err
	}
	return nil
}

func (s *Store) Events() domain.EventStore       { return eventStore{s} }
func (s *Store) Clauses() domain.ClauseStore     { return clauseStore{s} }
func (s *Store) Oracle() domain.OracleStore      { return oracleStore{s} }
func (s *Store) Accounts() domain.AccountStore   { return accountStore{s} }
func (s *Store) Transfers() domain.TransferStore { return transferStore{s} }
func (s *Store) Audit() domain.AuditStore        { return auditStore{s} }

// clampList applies ListOpts to a slice length, returning [lo, hi).
func clampList(n int, opts domain.ListOpts) (int, int) {
	lo := opts.Offset
	if lo < 0 {
		lo = 0
	}
	if lo > n {
		lo = n
	}
	hi := n
	if opts.Limit > 0 && lo+opts.Limit < hi {
		hi = lo + opts.Limit
	}
	return lo, hi
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

type eventStore struct{ s *Store }

func (es eventStore) Create(ctx context.Context, e domain.Event) (int64, error) {
	defer es.s.lock()()
	st := es.s.st
	e.ID = st.nextEventID
	st.nextEventID++
	st.events[e.ID] = e
	return e.ID, nil
}

func (es eventStore) Get(ctx context.Context, id int64) (domain.Event, error) {
	defer es.s.lock()()
	e, ok := es.s.st.events[id]
	if !ok {
		return domain.Event{}, domain.ErrNotFound
	}
	return e, nil
}

func (es eventStore) MarkResolved(ctx context.Context, id int64, outcome bool, at time.Time) error {
	defer es.s.lock()()
	st := es.s.st
	e, ok := st.events[id]
	if !ok {
		return domain.ErrNotFound
	}
	if e.Status == domain.EventStatusResolved {
		return domain.ErrAlreadyResolved
	}
	e.Status = domain.EventStatusResolved
	e.Outcome = outcome
	e.ResolvedAt = &at
	st.events[id] = e
	return nil
}

func (es eventStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	defer es.s.lock()()
	all := sortedEvents(es.s.st)
	lo, hi := clampList(len(all), opts)
	return slices.Clone(all[lo:hi]), nil
}

func (es eventStore) ListPending(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	defer es.s.lock()()
	var pending []domain.Event
	for _, e := range sortedEvents(es.s.st) {
		if e.Status == domain.EventStatusPending {
			pending = append(pending, e)
		}
	}
	lo, hi := clampList(len(pending), opts)
	return pending[lo:hi], nil
}

func sortedEvents(st *state) []domain.Event {
	out := make([]domain.Event, 0, len(st.events))
	for _, e := range st.events {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b domain.Event) int {
		return int(a.ID - b.ID)
	})
	return out
}

// ---------------------------------------------------------------------------
// Clauses
// ---------------------------------------------------------------------------

type clauseStore struct{ s *Store }

func (cs clauseStore) Create(ctx context.Context, c domain.Clause) (int64, error) {
	defer cs.s.lock()()
	st := cs.s.st
	c.ID = st.nextClauseID
	st.nextClauseID++
	st.clauses[c.ID] = c
	st.clauseIndex[c.EventID] = append(st.clauseIndex[c.EventID], c.ID)
	return c.ID, nil
}

func (cs clauseStore) Get(ctx context.Context, id int64) (domain.Clause, error) {
	defer cs.s.lock()()
	c, ok := cs.s.st.clauses[id]
	if !ok {
		return domain.Clause{}, domain.ErrNotFound
	}
	return c, nil
}

func (cs clauseStore) MarkExecuted(ctx context.Context, id int64, at time.Time) error {
	return cs.mark(id, at, false)
}

func (cs clauseStore) MarkRefunded(ctx context.Context, id int64, at time.Time) error {
	return cs.mark(id, at, true)
}

func (cs clauseStore) mark(id int64, at time.Time, refund bool) error {
	defer cs.s.lock()()
	st := cs.s.st
	c, ok := st.clauses[id]
	if !ok {
		return domain.ErrNotFound
	}
	if c.Executed {
		return domain.ErrAlreadyExecuted
	}
	c.Executed = true
	c.Refunded = refund
	c.ExecutedAt = &at
	st.clauses[id] = c
	return nil
}

func (cs clauseStore) IDsForEvent(ctx context.Context, eventID int64) ([]int64, error) {
	defer cs.s.lock()()
	return slices.Clone(cs.s.st.clauseIndex[eventID]), nil
}

func (cs clauseStore) ListByEvent(ctx context.Context, eventID int64, opts domain.ListOpts) ([]domain.Clause, error) {
	defer cs.s.lock()()
	st := cs.s.st
	var out []domain.Clause
	for _, id := range st.clauseIndex[eventID] {
		out = append(out, st.clauses[id])
	}
	lo, hi := clampList(len(out), opts)
	return out[lo:hi], nil
}

func (cs clauseStore) ListByDonor(ctx context.Context, donor domain.Address, opts domain.ListOpts) ([]domain.Clause, error) {
	defer cs.s.lock()()
	st := cs.s.st
	ids := make([]int64, 0, len(st.clauses))
	for id, c := range st.clauses {
		if domain.SameAddress(c.Donor, donor) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	out := make([]domain.Clause, 0, len(ids))
	for _, id := range ids {
		out = append(out, st.clauses[id])
	}
	lo, hi := clampList(len(out), opts)
	return out[lo:hi], nil
}

// ---------------------------------------------------------------------------
// Oracle
// ---------------------------------------------------------------------------

type oracleStore struct{ s *Store }

func (os oracleStore) CreateCase(ctx context.Context, c domain.OracleCase) error {
	defer os.s.lock()()
	st := os.s.st
	if _, ok := st.cases[c.EventID]; ok {
		return domain.ErrAlreadyProposed
	}
	st.cases[c.EventID] = c
	return nil
}

func (os oracleStore) GetCase(ctx context.Context, eventID int64) (domain.OracleCase, error) {
	defer os.s.lock()()
	c, ok := os.s.st.cases[eventID]
	if !ok {
		return domain.OracleCase{}, domain.ErrNotFound
	}
	return c, nil
}

func (os oracleStore) UpdateCase(ctx context.Context, c domain.OracleCase) error {
	defer os.s.lock()()
	st := os.s.st
	if _, ok := st.cases[c.EventID]; !ok {
		return domain.ErrNotFound
	}
	st.cases[c.EventID] = c
	return nil
}

func (os oracleStore) ListDue(ctx context.Context, now time.Time, opts domain.ListOpts) ([]domain.OracleCase, error) {
	defer os.s.lock()()
	var due []domain.OracleCase
	for _, c := range os.s.st.cases {
		switch c.Phase {
		case domain.OraclePhaseProposed:
			if !c.ProposalDeadline.After(now) {
				due = append(due, c)
			}
		case domain.OraclePhaseDisputed:
			if !c.VotingDeadline.After(now) {
				due = append(due, c)
			}
		}
	}
	slices.SortFunc(due, func(a, b domain.OracleCase) int {
		return int(a.EventID - b.EventID)
	})
	lo, hi := clampList(len(due), opts)
	return due[lo:hi], nil
}

func (os oracleStore) PutVote(ctx context.Context, v domain.Vote) error {
	defer os.s.lock()()
	st := os.s.st
	byVoter := st.votes[v.EventID]
	if byVoter == nil {
		byVoter = map[domain.Address]domain.Vote{}
		st.votes[v.EventID] = byVoter
	}
	if _, ok := byVoter[v.Voter]; ok {
		return domain.ErrDuplicateVoter
	}
	byVoter[v.Voter] = v
	return nil
}

func (os oracleStore) GetVote(ctx context.Context, eventID int64, voter domain.Address) (domain.Vote, error) {
	defer os.s.lock()()
	v, ok := os.s.st.votes[eventID][voter]
	if !ok {
		return domain.Vote{}, domain.ErrNotFound
	}
	return v, nil
}

func (os oracleStore) ListVotes(ctx context.Context, eventID int64) ([]domain.Vote, error) {
	defer os.s.lock()()
	byVoter := os.s.st.votes[eventID]
	out := make([]domain.Vote, 0, len(byVoter))
	for _, v := range byVoter {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b domain.Vote) int {
		if a.Voter < b.Voter {
			return -1
		}
		if a.Voter > b.Voter {
			return 1
		}
		return 0
	})
	return out, nil
}

func (os oracleStore) AddStake(ctx context.Context, eventID int64, addr domain.Address, amount domain.Amount) error {
	defer os.s.lock()()
	st := os.s.st
	byAddr := st.stakes[eventID]
	if byAddr == nil {
		byAddr = map[domain.Address]domain.Amount{}
		st.stakes[eventID] = byAddr
	}
	byAddr[addr] += amount
	return nil
}

func (os oracleStore) StakeOf(ctx context.Context, eventID int64, addr domain.Address) (domain.Amount, error) {
	defer os.s.lock()()
	return os.s.st.stakes[eventID][addr], nil
}

func (os oracleStore) ClearStake(ctx context.Context, eventID int64, addr domain.Address) error {
	defer os.s.lock()()
	delete(os.s.st.stakes[eventID], addr)
	return nil
}

// ---------------------------------------------------------------------------
// Accounts
// ---------------------------------------------------------------------------

type accountStore struct{ s *Store }

func (as accountStore) Balance(ctx context.Context, addr domain.Address) (domain.Amount, error) {
	defer as.s.lock()()
	return as.s.st.balances[addr], nil
}

func (as accountStore) Credit(ctx context.Context, addr domain.Address, amount domain.Amount) error {
	defer as.s.lock()()
	as.s.st.balances[addr] += amount
	return nil
}

func (as accountStore) Debit(ctx context.Context, addr domain.Address, amount domain.Amount) error {
	defer as.s.lock()()
	st := as.s.st
	if st.balances[addr] < amount {
		return domain.ErrInsufficientFunds
	}
	st.balances[addr] -= amount
	return nil
}

// ---------------------------------------------------------------------------
// Transfers
// ---------------------------------------------------------------------------

type transferStore struct{ s *Store }

func (ts transferStore) Record(ctx context.Context, t domain.Transfer) error {
	defer ts.s.lock()()
	ts.s.st.transfers = append(ts.s.st.transfers, t)
	return nil
}

func (ts transferStore) ListByAccount(ctx context.Context, addr domain.Address, opts domain.ListOpts) ([]domain.Transfer, error) {
	defer ts.s.lock()()
	var out []domain.Transfer
	for _, t := range ts.s.st.transfers {
		if domain.SameAddress(t.From, addr) || domain.SameAddress(t.To, addr) {
			out = append(out, t)
		}
	}
	lo, hi := clampList(len(out), opts)
	return out[lo:hi], nil
}

// ---------------------------------------------------------------------------
// Audit
// ---------------------------------------------------------------------------

type auditStore struct{ s *Store }

func (as auditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	defer as.s.lock()()
	st := as.s.st
	st.audit = append(st.audit, domain.AuditEntry{
		ID:        st.nextAuditID,
		Event:     event,
		Detail:    maps.Clone(detail),
		CreatedAt: time.Now().UTC(),
	})
	st.nextAuditID++
	return nil
}

func (as auditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	defer as.s.lock()()
	all := as.s.st.audit
	lo, hi := clampList(len(all), opts)
	return slices.Clone(all[lo:hi]), nil
}

// Compile-time interface check.
var _ domain.Store = (*Store)(nil)
