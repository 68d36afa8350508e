// Package worker contains the background loops that push oracle cases past
// their deadlines, settle the affected clauses, and move cold data to object
// storage.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/causeway-labs/causeway/internal/domain"
	"github.com/causeway-labs/causeway/internal/notify"
	"github.com/causeway-labs/causeway/internal/service"
)

// resolutionPageSize bounds how many due cases a single sweep picks up.
const resolutionPageSize = 100

// ResolutionWorker periodically sweeps the oracle for cases whose deadline
// has passed, resolves them, and runs batch execution for the resolved
// events. A distributed lock per event keeps concurrent worker instances
// from double-settling.
type ResolutionWorker struct {
	oracle   *service.OracleService
	batch    *service.BatchService
	locks    domain.LockManager
	cache    domain.EventCache // may be nil
	notifier *notify.Notifier  // may be nil
	lockTTL  time.Duration
	logger   *slog.Logger
}

// NewResolutionWorker creates a ResolutionWorker. cache and notifier are
// optional and may be nil.
func NewResolutionWorker(
	oracle *service.OracleService,
	batch *service.BatchService,
	locks domain.LockManager,
	cache domain.EventCache,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *ResolutionWorker {
	return &ResolutionWorker{
		oracle:   oracle,
		batch:    batch,
		locks:    locks,
		cache:    cache,
		notifier: notifier,
		lockTTL:  2 * time.Minute,
		logger:   logger.With(slog.String("component", "resolution_worker")),
	}
}

// RunLoop sweeps at the given interval until the context is cancelled. An
// initial sweep runs immediately on start.
func (w *ResolutionWorker) RunLoop(ctx context.Context, interval time.Duration) error {
	w.logger.Info("resolution worker started", slog.Duration("interval", interval))

	if err := w.Sweep(ctx); err != nil {
		w.logger.Error("sweep failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("resolution worker stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				w.logger.Error("sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep resolves every due oracle case it can lock and settles the affected
// events. Per-case failures are logged and skipped so one stuck case cannot
// stall the rest of the queue.
func (w *ResolutionWorker) Sweep(ctx context.Context) error {
	due, err := w.oracle.ListDue(ctx, domain.ListOpts{Limit: resolutionPageSize})
	if err != nil {
		return fmt.Errorf("worker: list due cases: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	w.logger.Info("sweeping due oracle cases", slog.Int("count", len(due)))

	for _, c := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.settleEvent(ctx, c.EventID); err != nil {
			w.logger.Error("settle failed",
				slog.Int64("event_id", c.EventID),
				slog.String("error", err.Error()),
			)
			w.notifyEvent(ctx, notify.WorkerError, "Settlement failed",
				fmt.Sprintf("event %d: %v", c.EventID, err))
		}
	}

	return nil
}

// settleEvent resolves one event's oracle case and executes its clause batch
// under the event's distributed lock.
func (w *ResolutionWorker) settleEvent(ctx context.Context, eventID int64) error {
	release, err := w.locks.Acquire(ctx, fmt.Sprintf("event:%d", eventID), w.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			// Another instance picked this event up.
			return nil
		}
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer release()

	c, err := w.oracle.Resolve(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyResolved) {
			// Lost the race after the due listing; still run the batch so
			// clauses are not left waiting for the next sweep.
			return w.executeBatch(ctx, eventID)
		}
		return fmt.Errorf("resolve: %w", err)
	}

	w.logger.Info("oracle case resolved",
		slog.Int64("event_id", eventID),
		slog.Bool("outcome", c.FinalOutcome),
	)
	w.notifyEvent(ctx, notify.EventResolved, "Event resolved",
		fmt.Sprintf("event %d resolved to %t", eventID, c.FinalOutcome))

	if w.cache != nil {
		if err := w.cache.Invalidate(ctx, eventID); err != nil {
			w.logger.Warn("cache invalidate failed",
				slog.Int64("event_id", eventID),
				slog.String("error", err.Error()),
			)
		}
	}

	return w.executeBatch(ctx, eventID)
}

func (w *ResolutionWorker) executeBatch(ctx context.Context, eventID int64) error {
	executed, err := w.batch.ExecuteAllForEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("execute batch: %w", err)
	}
	if executed == 0 {
		return nil
	}

	w.logger.Info("batch executed",
		slog.Int64("event_id", eventID),
		slog.Int("clauses", executed),
	)
	w.notifyEvent(ctx, notify.BatchExecuted, "Batch executed",
		fmt.Sprintf("event %d: %d clause(s) settled", eventID, executed))
	return nil
}

func (w *ResolutionWorker) notifyEvent(ctx context.Context, event, title, message string) {
	if w.notifier == nil {
		return
	}
	if err := w.notifier.Notify(ctx, event, title, message); err != nil {
		w.logger.Warn("notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
