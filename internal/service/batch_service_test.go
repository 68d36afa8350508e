package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causeway-labs/causeway/internal/domain"
)

func TestExecuteAllForEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("pays unexecuted clauses and skips executed ones", func(t *testing.T) {
		w := newWorld(t)
		e := w.trustedEvent(t)
		w.fund(t, addrBob, 100)
		w.fund(t, addrCarol, 200)
		w.fund(t, addrDave, 300)

		c1, err := w.escrow.Deposit(ctx, e.ID, addrBob, 100, addrRedCrs, addrBob)
		require.NoError(t, err)
		_, err = w.escrow.Deposit(ctx, e.ID, addrCarol, 200, addrRedCrs, addrCarol)
		require.NoError(t, err)
		_, err = w.escrow.Deposit(ctx, e.ID, addrDave, 300, addrShelter, addrDave)
		require.NoError(t, err)

		_, err = w.registry.Resolve(ctx, e.ID, true, addrAlice)
		require.NoError(t, err)

		// Execute one clause up front; the batch must skip it.
		_, err = w.escrow.ExecuteOne(ctx, c1.ID)
		require.NoError(t, err)

		n, err := w.batch.ExecuteAllForEvent(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		clauses, err := w.escrow.ListByEvent(ctx, e.ID, domain.ListOpts{})
		require.NoError(t, err)
		require.Len(t, clauses, 3)
		for _, c := range clauses {
			assert.True(t, c.Executed)
		}
		assert.Equal(t, domain.Amount(300), w.balance(t, addrRedCrs))
		assert.Equal(t, domain.Amount(300), w.balance(t, addrShelter))

		// A second batch run has nothing left to do.
		n, err = w.batch.ExecuteAllForEvent(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("fails while event pending", func(t *testing.T) {
		w := newWorld(t)
		e := w.trustedEvent(t)

		_, err := w.batch.ExecuteAllForEvent(ctx, e.ID)
		assert.ErrorIs(t, err, domain.ErrEventNotResolved)
	})

	t.Run("event with no clauses executes zero", func(t *testing.T) {
		w := newWorld(t)
		e := w.trustedEvent(t)
		_, err := w.registry.Resolve(ctx, e.ID, true, addrAlice)
		require.NoError(t, err)

		n, err := w.batch.ExecuteAllForEvent(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("all-or-nothing on transfer failure", func(t *testing.T) {
		w := newWorld(t)
		e := w.trustedEvent(t)
		w.fund(t, addrBob, 100)
		w.fund(t, addrCarol, 200)

		_, err := w.escrow.Deposit(ctx, e.ID, addrBob, 100, addrRedCrs, addrBob)
		require.NoError(t, err)
		_, err = w.escrow.Deposit(ctx, e.ID, addrCarol, 200, addrRedCrs, addrCarol)
		require.NoError(t, err)
		_, err = w.registry.Resolve(ctx, e.ID, true, addrAlice)
		require.NoError(t, err)

		// Simulate an underlying transfer primitive failure mid-batch by
		// draining part of the escrow vault out-of-band.
		require.NoError(t, w.store.Accounts().Debit(ctx, domain.VaultEscrow, 250))

		_, err = w.batch.ExecuteAllForEvent(ctx, e.ID)
		require.ErrorIs(t, err, domain.ErrInsufficientFunds)

		// Nothing was paid: the first clause's payout rolled back too.
		assert.Equal(t, domain.Amount(0), w.balance(t, addrRedCrs))
		clauses, err := w.escrow.ListByEvent(ctx, e.ID, domain.ListOpts{})
		require.NoError(t, err)
		for _, c := range clauses {
			assert.False(t, c.Executed)
		}
	})
}
