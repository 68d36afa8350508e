package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causeway-labs/causeway/internal/domain"
)

func TestTransferSend(t *testing.T) {
	ctx := context.Background()

	t.Run("moves funds and records a receipt", func(t *testing.T) {
		w := newWorld(t)
		w.fund(t, addrAlice, 100)

		tr, err := w.transfer.Send(ctx, addrAlice, addrShelter, 40)
		require.NoError(t, err)
		assert.NotEmpty(t, tr.ID)
		assert.Equal(t, domain.TransferKindInstant, tr.Kind)
		assert.Equal(t, domain.Amount(40), tr.Amount)

		assert.Equal(t, domain.Amount(60), w.balance(t, addrAlice))
		assert.Equal(t, domain.Amount(40), w.balance(t, addrShelter))

		hist, err := w.transfer.History(ctx, addrShelter, domain.ListOpts{})
		require.NoError(t, err)
		require.Len(t, hist, 1)
		assert.Equal(t, tr.ID, hist[0].ID)
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		w := newWorld(t)
		w.fund(t, addrAlice, 100)

		_, err := w.transfer.Send(ctx, addrAlice, addrShelter, 0)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
		_, err = w.transfer.Send(ctx, addrAlice, addrShelter, -5)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("rejects overdrafts without partial effects", func(t *testing.T) {
		w := newWorld(t)
		w.fund(t, addrAlice, 30)

		_, err := w.transfer.Send(ctx, addrAlice, addrShelter, 31)
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
		assert.Equal(t, domain.Amount(30), w.balance(t, addrAlice))
		assert.Equal(t, domain.Amount(0), w.balance(t, addrShelter))

		hist, err := w.transfer.History(ctx, addrAlice, domain.ListOpts{})
		require.NoError(t, err)
		assert.Empty(t, hist)
	})

	t.Run("rejects malformed addresses", func(t *testing.T) {
		w := newWorld(t)
		_, err := w.transfer.Send(ctx, "nope", addrShelter, 10)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestTransferFund(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	bal, err := w.transfer.Fund(ctx, addrBob, 250)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(250), bal)

	bal, err = w.transfer.Fund(ctx, addrBob, 50)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(300), bal)

	_, err = w.transfer.Fund(ctx, addrBob, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	hist, err := w.transfer.History(ctx, addrBob, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, hist, 2)
	for _, tr := range hist {
		assert.Equal(t, domain.TransferKindFunding, tr.Kind)
	}
}
