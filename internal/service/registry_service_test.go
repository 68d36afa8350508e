package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causeway-labs/causeway/internal/domain"
)

func TestCreateEvent(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	t.Run("assigns monotonically increasing ids", func(t *testing.T) {
		e1, err := w.registry.CreateEvent(ctx, "first", addrAlice, addrAlice)
		require.NoError(t, err)
		e2, err := w.registry.CreateEvent(ctx, "second", addrAlice, addrAlice)
		require.NoError(t, err)
		assert.Greater(t, e2.ID, e1.ID)
		assert.Equal(t, domain.EventStatusPending, e1.Status)
	})

	t.Run("rejects empty description", func(t *testing.T) {
		_, err := w.registry.CreateEvent(ctx, "   ", addrAlice, addrAlice)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("rejects malformed resolver", func(t *testing.T) {
		_, err := w.registry.CreateEvent(ctx, "event", "not-an-address", addrAlice)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestResolveEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("resolver authority sets outcome", func(t *testing.T) {
		w := newWorld(t)
		e := w.trustedEvent(t)

		resolved, err := w.registry.Resolve(ctx, e.ID, true, addrAlice)
		require.NoError(t, err)
		assert.Equal(t, domain.EventStatusResolved, resolved.Status)
		assert.True(t, resolved.Outcome)
		require.NotNil(t, resolved.ResolvedAt)
	})

	t.Run("succeeds at most once", func(t *testing.T) {
		w := newWorld(t)
		e := w.trustedEvent(t)

		_, err := w.registry.Resolve(ctx, e.ID, true, addrAlice)
		require.NoError(t, err)
		_, err = w.registry.Resolve(ctx, e.ID, false, addrAlice)
		assert.ErrorIs(t, err, domain.ErrAlreadyResolved)

		// First outcome stuck.
		got, err := w.registry.Get(ctx, e.ID)
		require.NoError(t, err)
		assert.True(t, got.Outcome)
	})

	t.Run("rejects unauthorized caller", func(t *testing.T) {
		w := newWorld(t)
		e := w.trustedEvent(t)

		_, err := w.registry.Resolve(ctx, e.ID, true, addrBob)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)

		got, err := w.registry.Get(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.EventStatusPending, got.Status)
	})

	t.Run("unknown event", func(t *testing.T) {
		w := newWorld(t)
		_, err := w.registry.Resolve(ctx, 987, true, addrAlice)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("case-insensitive authority comparison", func(t *testing.T) {
		w := newWorld(t)
		e := w.trustedEvent(t)

		_, err := w.registry.Resolve(ctx, e.ID, true, "0x1111111111111111111111111111111111111111")
		require.NoError(t, err)
	})
}

func TestListPending(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	e1 := w.trustedEvent(t)
	e2 := w.trustedEvent(t)
	_, err := w.registry.Resolve(ctx, e1.ID, false, addrAlice)
	require.NoError(t, err)

	pending, err := w.registry.ListPending(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, e2.ID, pending[0].ID)
}
