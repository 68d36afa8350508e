package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/causeway-labs/causeway/internal/domain"
)

// ArchiveWorker moves settled data from the database to S3 cold storage.
type ArchiveWorker struct {
	archiver      domain.Archiver
	retentionDays int
	logger        *slog.Logger
}

// NewArchiveWorker creates a new ArchiveWorker.
func NewArchiveWorker(archiver domain.Archiver, retentionDays int, logger *slog.Logger) *ArchiveWorker {
	return &ArchiveWorker{
		archiver:      archiver,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archive_worker")),
	}
}

// Run executes a single archive run. It calculates the cutoff time based on
// retentionDays and archives resolved events, executed clauses, and transfer
// receipts older than the cutoff.
func (a *ArchiveWorker) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	a.logger.Info("starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	eventsArchived, err := a.archiver.ArchiveResolvedEvents(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving events before %v: %w", cutoff, err)
	}

	clausesArchived, err := a.archiver.ArchiveExecutedClauses(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving clauses before %v: %w", cutoff, err)
	}

	transfersArchived, err := a.archiver.ArchiveTransfers(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving transfers before %v: %w", cutoff, err)
	}

	a.logger.Info("archive run complete",
		slog.Int64("events_archived", eventsArchived),
		slog.Int64("clauses_archived", clausesArchived),
		slog.Int64("transfers_archived", transfersArchived),
	)

	return nil
}

// RunLoop executes archive runs at the given interval until the context is
// cancelled. Run failures are logged; the loop keeps going.
func (a *ArchiveWorker) RunLoop(ctx context.Context, interval time.Duration) error {
	a.logger.Info("archive worker started", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("archive worker stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
