// Package service implements the event-resolution and conditional-payout
// engine: event registry, clause escrow, oracle state machine, batch
// executor, and instant transfers. Services mutate state only through
// domain.Store.Atomic so every operation is all-or-nothing, and publish
// engine events on the signal bus after a successful commit.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/causeway-labs/causeway/internal/domain"
)

// Signal bus channels for engine events.
const (
	ChannelEvents  = "ch:event"
	ChannelClauses = "ch:clause"
	ChannelOracle  = "ch:oracle"
	ChannelBatch   = "ch:batch"
)

// publish marshals payload as JSON and publishes it on the bus. A nil bus
// and marshal/publish failures are logged and otherwise ignored: signals are
// advisory, the committed state is the source of truth.
func publish(ctx context.Context, bus domain.SignalBus, logger *slog.Logger, channel string, payload any) {
	if bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logger.WarnContext(ctx, "marshal signal payload", slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}
	if err := bus.Publish(ctx, channel, data); err != nil {
		logger.WarnContext(ctx, "publish signal", slog.String("channel", channel), slog.String("error", err.Error()))
	}
}

// move debits from, credits to, and records a receipt, all against the store
// view it is given. Call it only inside an Atomic unit.
func move(ctx context.Context, s domain.Store, t domain.Transfer) error {
	if err := s.Accounts().Debit(ctx, t.From, t.Amount); err != nil {
		return err
	}
	if err := s.Accounts().Credit(ctx, t.To, t.Amount); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return s.Transfers().Record(ctx, t)
}

// systemClock is the default Clock when none is injected.
var systemClock domain.Clock = domain.ClockFunc(func() time.Time {
	return time.Now().UTC()
})

func orSystemClock(c domain.Clock) domain.Clock {
	if c == nil {
		return systemClock
	}
	return c
}
