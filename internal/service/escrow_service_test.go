package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causeway-labs/causeway/internal/domain"
)

func TestDeposit(t *testing.T) {
	ctx := context.Background()

	t.Run("moves funds into escrow atomically with clause creation", func(t *testing.T) {
		w := newWorld(t)
		e := w.trustedEvent(t)
		w.fund(t, addrBob, 500)

		clause, err := w.escrow.Deposit(ctx, e.ID, addrBob, 100, addrRedCrs, addrBob)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount(100), clause.PayoutAmount)
		assert.False(t, clause.Executed)

		assert.Equal(t, domain.Amount(400), w.balance(t, addrBob))
		assert.Equal(t, domain.Amount(100), w.balance(t, domain.VaultEscrow))
	})

	t.Run("no clause without matching escrow", func(t *testing.T) {
		w := newWorld(t)
		e := w.trustedEvent(t)
		w.fund(t, addrBob, 50)

		_, err := w.escrow.Deposit(ctx, e.ID, addrBob, 100, addrRedCrs, addrBob)
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

		clauses, err := w.escrow.ListByEvent(ctx, e.ID, domain.ListOpts{})
		require.NoError(t, err)
		assert.Empty(t, clauses)
		assert.Equal(t, domain.Amount(50), w.balance(t, addrBob))
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		w := newWorld(t)
		e := w.trustedEvent(t)

		_, err := w.escrow.Deposit(ctx, e.ID, addrBob, 0, addrRedCrs, addrBob)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
		_, err = w.escrow.Deposit(ctx, e.ID, addrBob, -5, addrRedCrs, addrBob)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("unknown event", func(t *testing.T) {
		w := newWorld(t)
		w.fund(t, addrBob, 100)
		_, err := w.escrow.Deposit(ctx, 42, addrBob, 100, addrRedCrs, addrBob)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("allowed against an already resolved event", func(t *testing.T) {
		w := newWorld(t)
		e := w.trustedEvent(t)
		_, err := w.registry.Resolve(ctx, e.ID, true, addrAlice)
		require.NoError(t, err)
		w.fund(t, addrBob, 100)

		clause, err := w.escrow.Deposit(ctx, e.ID, addrBob, 100, addrRedCrs, addrBob)
		require.NoError(t, err)

		// Immediately executable.
		recipient, err := w.escrow.ExecuteOne(ctx, clause.ID)
		require.NoError(t, err)
		assert.True(t, domain.SameAddress(recipient, addrRedCrs))
	})
}

func TestExecuteOne(t *testing.T) {
	ctx := context.Background()

	t.Run("pays recipientIfTrue and is idempotent", func(t *testing.T) {
		w := newWorld(t)
		e := w.trustedEvent(t)
		w.fund(t, addrBob, 100)

		clause, err := w.escrow.Deposit(ctx, e.ID, addrBob, 100, addrRedCrs, addrBob)
		require.NoError(t, err)
		_, err = w.registry.Resolve(ctx, e.ID, true, addrAlice)
		require.NoError(t, err)

		recipient, err := w.escrow.ExecuteOne(ctx, clause.ID)
		require.NoError(t, err)
		assert.True(t, domain.SameAddress(recipient, addrRedCrs))
		assert.Equal(t, domain.Amount(100), w.balance(t, addrRedCrs))

		got, err := w.escrow.GetClause(ctx, clause.ID)
		require.NoError(t, err)
		assert.True(t, got.Executed)

		// Second call never double-pays.
		_, err = w.escrow.ExecuteOne(ctx, clause.ID)
		assert.ErrorIs(t, err, domain.ErrAlreadyExecuted)
		assert.Equal(t, domain.Amount(100), w.balance(t, addrRedCrs))
	})

	t.Run("pays recipientIfFalse on false outcome", func(t *testing.T) {
		w := newWorld(t)
		e := w.trustedEvent(t)
		w.fund(t, addrBob, 100)

		clause, err := w.escrow.Deposit(ctx, e.ID, addrBob, 100, addrRedCrs, addrShelter)
		require.NoError(t, err)
		_, err = w.registry.Resolve(ctx, e.ID, false, addrAlice)
		require.NoError(t, err)

		recipient, err := w.escrow.ExecuteOne(ctx, clause.ID)
		require.NoError(t, err)
		assert.True(t, domain.SameAddress(recipient, addrShelter))
		assert.Equal(t, domain.Amount(100), w.balance(t, addrShelter))
		assert.Equal(t, domain.Amount(0), w.balance(t, addrRedCrs))
	})

	t.Run("fails while event pending", func(t *testing.T) {
		w := newWorld(t)
		e := w.trustedEvent(t)
		w.fund(t, addrBob, 100)

		clause, err := w.escrow.Deposit(ctx, e.ID, addrBob, 100, addrRedCrs, addrBob)
		require.NoError(t, err)

		_, err = w.escrow.ExecuteOne(ctx, clause.ID)
		assert.ErrorIs(t, err, domain.ErrEventNotResolved)
		assert.Equal(t, domain.Amount(100), w.balance(t, domain.VaultEscrow))
	})

	t.Run("unknown clause", func(t *testing.T) {
		w := newWorld(t)
		_, err := w.escrow.ExecuteOne(ctx, 31337)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestRefund(t *testing.T) {
	ctx := context.Background()

	t.Run("returns escrow to donor while pending", func(t *testing.T) {
		w := newWorld(t)
		e := w.trustedEvent(t)
		w.fund(t, addrBob, 100)

		clause, err := w.escrow.Deposit(ctx, e.ID, addrBob, 100, addrRedCrs, addrBob)
		require.NoError(t, err)

		require.NoError(t, w.escrow.Refund(ctx, clause.ID, addrBob))
		assert.Equal(t, domain.Amount(100), w.balance(t, addrBob))
		assert.Equal(t, domain.Amount(0), w.balance(t, domain.VaultEscrow))

		got, err := w.escrow.GetClause(ctx, clause.ID)
		require.NoError(t, err)
		assert.True(t, got.Refunded)
	})

	t.Run("mutually exclusive with execution", func(t *testing.T) {
		w := newWorld(t)
		e := w.trustedEvent(t)
		w.fund(t, addrBob, 100)

		clause, err := w.escrow.Deposit(ctx, e.ID, addrBob, 100, addrRedCrs, addrBob)
		require.NoError(t, err)
		require.NoError(t, w.escrow.Refund(ctx, clause.ID, addrBob))

		_, err = w.registry.Resolve(ctx, e.ID, true, addrAlice)
		require.NoError(t, err)
		_, err = w.escrow.ExecuteOne(ctx, clause.ID)
		assert.ErrorIs(t, err, domain.ErrAlreadyExecuted)
	})

	t.Run("forbidden once resolved", func(t *testing.T) {
		w := newWorld(t)
		e := w.trustedEvent(t)
		w.fund(t, addrBob, 100)

		clause, err := w.escrow.Deposit(ctx, e.ID, addrBob, 100, addrRedCrs, addrBob)
		require.NoError(t, err)
		_, err = w.registry.Resolve(ctx, e.ID, true, addrAlice)
		require.NoError(t, err)

		err = w.escrow.Refund(ctx, clause.ID, addrBob)
		assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
	})

	t.Run("only the donor may refund", func(t *testing.T) {
		w := newWorld(t)
		e := w.trustedEvent(t)
		w.fund(t, addrBob, 100)

		clause, err := w.escrow.Deposit(ctx, e.ID, addrBob, 100, addrRedCrs, addrBob)
		require.NoError(t, err)

		err = w.escrow.Refund(ctx, clause.ID, addrCarol)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}

func TestMixedDonation(t *testing.T) {
	ctx := context.Background()

	t.Run("splits instant and conditional legs", func(t *testing.T) {
		w := newWorld(t)
		e := w.trustedEvent(t)
		w.fund(t, addrBob, 1000)

		clause, err := w.escrow.MixedDonation(ctx, addrBob, addrShelter, 300, e.ID, addrRedCrs, addrBob, 1000)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount(700), clause.PayoutAmount)

		assert.Equal(t, domain.Amount(0), w.balance(t, addrBob))
		assert.Equal(t, domain.Amount(300), w.balance(t, addrShelter))
		assert.Equal(t, domain.Amount(700), w.balance(t, domain.VaultEscrow))
	})

	t.Run("conditional leg must be positive", func(t *testing.T) {
		w := newWorld(t)
		e := w.trustedEvent(t)
		w.fund(t, addrBob, 1000)

		_, err := w.escrow.MixedDonation(ctx, addrBob, addrShelter, 1000, e.ID, addrRedCrs, addrBob, 1000)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("instant leg respects the donation floor", func(t *testing.T) {
		w := newWorld(t)
		w.escrow.minDonation = 1000
		e := w.trustedEvent(t)
		w.fund(t, addrBob, 5000)

		_, err := w.escrow.MixedDonation(ctx, addrBob, addrShelter, 500, e.ID, addrRedCrs, addrBob, 2000)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)

		// Zero instant leg skips the floor.
		_, err = w.escrow.MixedDonation(ctx, addrBob, "", 0, e.ID, addrRedCrs, addrBob, 2000)
		require.NoError(t, err)
	})

	t.Run("insufficient funds rolls back both legs", func(t *testing.T) {
		w := newWorld(t)
		e := w.trustedEvent(t)
		w.fund(t, addrBob, 500)

		_, err := w.escrow.MixedDonation(ctx, addrBob, addrShelter, 300, e.ID, addrRedCrs, addrBob, 1000)
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
		assert.Equal(t, domain.Amount(500), w.balance(t, addrBob))
		assert.Equal(t, domain.Amount(0), w.balance(t, addrShelter))
	})
}

func TestEscrowConservation(t *testing.T) {
	// Total executed payouts never exceed total deposits for the event.
	w := newWorld(t)
	ctx := context.Background()
	e := w.trustedEvent(t)
	w.fund(t, addrBob, 300)
	w.fund(t, addrCarol, 200)

	_, err := w.escrow.Deposit(ctx, e.ID, addrBob, 300, addrRedCrs, addrBob)
	require.NoError(t, err)
	_, err = w.escrow.Deposit(ctx, e.ID, addrCarol, 200, addrRedCrs, addrCarol)
	require.NoError(t, err)

	_, err = w.registry.Resolve(ctx, e.ID, true, addrAlice)
	require.NoError(t, err)
	n, err := w.batch.ExecuteAllForEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, domain.Amount(500), w.balance(t, addrRedCrs))
	assert.Equal(t, domain.Amount(0), w.balance(t, domain.VaultEscrow))
}
