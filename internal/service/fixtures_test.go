package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/causeway-labs/causeway/internal/domain"
	"github.com/causeway-labs/causeway/internal/store/memory"
)

var (
	addrAlice   = "0x1111111111111111111111111111111111111111"
	addrBob     = "0x2222222222222222222222222222222222222222"
	addrCarol   = "0x3333333333333333333333333333333333333333"
	addrDave    = "0x4444444444444444444444444444444444444444"
	addrRedCrs  = "0x5555555555555555555555555555555555555555"
	addrShelter = "0x6666666666666666666666666666666666666666"
	addrOracle  = "0x7777777777777777777777777777777777777777"
)

// fakeClock is a manually advanced Clock for deadline tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// world bundles a fully wired engine over the in-memory store.
type world struct {
	store    *memory.Store
	clock    *fakeClock
	registry *RegistryService
	escrow   *EscrowService
	oracle   *OracleService
	batch    *BatchService
	transfer *TransferService
}

func testOracleParams() OracleParams {
	return OracleParams{
		Identity:         addrOracle,
		MinProposalStake: 10,
		MinVoteStake:     1,
		ProposalWindow:   24 * time.Hour,
		VotingWindow:     48 * time.Hour,
	}
}

func newWorld(t *testing.T) *world {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	clock := newFakeClock()
	return &world{
		store:    store,
		clock:    clock,
		registry: NewRegistryService(store, nil, clock, logger),
		escrow:   NewEscrowService(store, nil, clock, 0, logger),
		oracle:   NewOracleService(store, nil, clock, testOracleParams(), logger),
		batch:    NewBatchService(store, nil, clock, logger),
		transfer: NewTransferService(store, clock, logger),
	}
}

// fund credits an account directly on the ledger.
func (w *world) fund(t *testing.T, addr domain.Address, amount domain.Amount) {
	t.Helper()
	norm, err := domain.NormalizeAddress(addr)
	require.NoError(t, err)
	require.NoError(t, w.store.Accounts().Credit(context.Background(), norm, amount))
}

// balance reads an account balance, normalizing the address first.
func (w *world) balance(t *testing.T, addr domain.Address) domain.Amount {
	t.Helper()
	norm, err := domain.NormalizeAddress(addr)
	require.NoError(t, err)
	bal, err := w.store.Accounts().Balance(context.Background(), norm)
	require.NoError(t, err)
	return bal
}

// trustedEvent creates an event resolved directly by addrAlice.
func (w *world) trustedEvent(t *testing.T) domain.Event {
	t.Helper()
	e, err := w.registry.CreateEvent(context.Background(), "hurricane makes landfall in Miami", addrAlice, addrAlice)
	require.NoError(t, err)
	return e
}

// oracleEvent creates an event routed through the oracle engine.
func (w *world) oracleEvent(t *testing.T) domain.Event {
	t.Helper()
	e, err := w.registry.CreateEvent(context.Background(), "wildfire burns over 100k acres", addrOracle, addrAlice)
	require.NoError(t, err)
	return e
}
