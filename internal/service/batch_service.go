package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/causeway-labs/causeway/internal/domain"
)

// BatchService drains every unexecuted clause of a resolved event in one
// atomic unit. If any single payout fails, the whole batch rolls back:
// there is never a partially-paid batch.
type BatchService struct {
	store  domain.Store
	bus    domain.SignalBus
	clock  domain.Clock
	logger *slog.Logger
}

// NewBatchService creates a BatchService. bus may be nil.
func NewBatchService(store domain.Store, bus domain.SignalBus, clock domain.Clock, logger *slog.Logger) *BatchService {
	return &BatchService{
		store:  store,
		bus:    bus,
		clock:  orSystemClock(clock),
		logger: logger.With(slog.String("component", "batch")),
	}
}

// ExecuteAllForEvent executes every clause of the event that has not been
// executed yet, skipping those already paid, and returns the number paid in
// this call. It fails with ErrEventNotResolved while the event is pending.
func (s *BatchService) ExecuteAllForEvent(ctx context.Context, eventID int64) (int, error) {
	now := s.clock.Now()
	executed := 0

	err := s.store.Atomic(ctx, func(tx domain.Store) error {
		event, err := tx.Events().Get(ctx, eventID)
		if err != nil {
			return err
		}
		if !event.Resolved() {
			return domain.ErrEventNotResolved
		}

		ids, err := tx.Clauses().IDsForEvent(ctx, eventID)
		if err != nil {
			return err
		}
		for _, clauseID := range ids {
			clause, err := tx.Clauses().Get(ctx, clauseID)
			if err != nil {
				return err
			}
			if clause.Executed {
				continue
			}
			if _, err := executeClause(ctx, tx, clauseID, now); err != nil {
				return err
			}
			executed++
		}

		if executed == 0 {
			return nil
		}
		return tx.Audit().Log(ctx, "batch.executed", map[string]any{
			"event_id": eventID,
			"count":    executed,
		})
	})
	if err != nil {
		return 0, fmt.Errorf("batch: execute all for event %d: %w", eventID, err)
	}

	s.logger.InfoContext(ctx, "batch executed",
		slog.Int64("event_id", eventID),
		slog.Int("count", executed),
	)
	if executed > 0 {
		publish(ctx, s.bus, s.logger, ChannelBatch, map[string]any{
			"type":     "batch_executed",
			"event_id": eventID,
			"count":    executed,
		})
	}
	return executed, nil
}
