package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// EventStore persists events and allocates their ids.
type EventStore interface {
	// Create assigns a fresh monotonically increasing id and stores the event.
	Create(ctx context.Context, e Event) (int64, error)
	Get(ctx context.Context, id int64) (Event, error)
	// MarkResolved performs the single irreversible transition. It returns
	// ErrAlreadyResolved if the event already left the pending state, so the
	// guard holds even when two resolvers race.
	MarkResolved(ctx context.Context, id int64, outcome bool, at time.Time) error
	List(ctx context.Context, opts ListOpts) ([]Event, error)
	ListPending(ctx context.Context, opts ListOpts) ([]Event, error)
}

// ClauseStore persists conditional clauses and the per-event clause index.
type ClauseStore interface {
	// Create assigns a fresh id, stores the clause, and appends its id to the
	// event's clause index. The index is append-only; executed clauses stay
	// listed and are skipped by status checks.
	Create(ctx context.Context, c Clause) (int64, error)
	Get(ctx context.Context, id int64) (Clause, error)
	MarkExecuted(ctx context.Context, id int64, at time.Time) error
	MarkRefunded(ctx context.Context, id int64, at time.Time) error
	// IDsForEvent returns the event's clause index in insertion order.
	IDsForEvent(ctx context.Context, eventID int64) ([]int64, error)
	ListByEvent(ctx context.Context, eventID int64, opts ListOpts) ([]Clause, error)
	ListByDonor(ctx context.Context, donor Address, opts ListOpts) ([]Clause, error)
}

// OracleStore persists resolution cases, votes, and locked stake per
// participant.
type OracleStore interface {
	CreateCase(ctx context.Context, c OracleCase) error
	GetCase(ctx context.Context, eventID int64) (OracleCase, error)
	UpdateCase(ctx context.Context, c OracleCase) error
	// ListDue returns unresolved cases whose governing deadline (proposal
	// deadline when proposed, voting deadline when disputed) is at or before
	// now. Used by the deadline worker.
	ListDue(ctx context.Context, now time.Time, opts ListOpts) ([]OracleCase, error)
	// PutVote stores a vote, failing with ErrDuplicateVoter if the voter
	// already voted in this case.
	PutVote(ctx context.Context, v Vote) error
	GetVote(ctx context.Context, eventID int64, voter Address) (Vote, error)
	ListVotes(ctx context.Context, eventID int64) ([]Vote, error)
	// AddStake accumulates locked stake for a participant in a case.
	AddStake(ctx context.Context, eventID int64, addr Address, amount Amount) error
	// StakeOf returns the participant's locked stake, zero if none.
	StakeOf(ctx context.Context, eventID int64, addr Address) (Amount, error)
	// ClearStake zeroes a participant's stake record after a claim.
	ClearStake(ctx context.Context, eventID int64, addr Address) error
}

// AccountStore persists ledger balances.
type AccountStore interface {
	// Balance returns the account balance, zero for unknown accounts.
	Balance(ctx context.Context, addr Address) (Amount, error)
	Credit(ctx context.Context, addr Address, amount Amount) error
	// Debit fails with ErrInsufficientFunds when the balance cannot cover it.
	Debit(ctx context.Context, addr Address, amount Amount) error
}

// TransferStore persists the append-only transfer receipt trail.
type TransferStore interface {
	Record(ctx context.Context, t Transfer) error
	ListByAccount(ctx context.Context, addr Address, opts ListOpts) ([]Transfer, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// Store aggregates all persistence concerns behind one transactional
// boundary. Every mutating operation in the engine runs inside Atomic: the
// callback sees a Store whose writes either all commit or all roll back, and
// no two Atomic units interleave on the same records.
type Store interface {
	Events() EventStore
	Clauses() ClauseStore
	Oracle() OracleStore
	Accounts() AccountStore
	Transfers() TransferStore
	Audit() AuditStore

	Atomic(ctx context.Context, fn func(Store) error) error
}

// LockManager provides distributed locks used to serialize multi-process
// mutation of the same event across API and worker instances.
type LockManager interface {
	// Acquire obtains the lock or fails with ErrLockHeld. The returned
	// function releases the lock and is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// SignalBus is a lightweight publish/subscribe fabric for engine events
// (resolutions, executions, oracle phase changes).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Clock supplies the ambient time used for deadline checks. Deadlines are
// guarded preconditions, never blocking waits.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }
