package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator manages the background goroutines: deadline resolution sweeps
// and cold-storage archival.
type Orchestrator struct {
	resolution      *ResolutionWorker
	archive         *ArchiveWorker // may be nil when no blob storage is configured
	sweepInterval   time.Duration
	archiveInterval time.Duration
	logger          *slog.Logger
}

// NewOrchestrator creates a new Orchestrator. archive may be nil, in which
// case only the resolution sweep runs.
func NewOrchestrator(
	resolution *ResolutionWorker,
	archive *ArchiveWorker,
	sweepInterval time.Duration,
	archiveInterval time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		resolution:      resolution,
		archive:         archive,
		sweepInterval:   sweepInterval,
		archiveInterval: archiveInterval,
		logger:          logger,
	}
}

// Run starts all workers as concurrent goroutines using an errgroup. Each
// goroutine respects ctx cancellation. If any goroutine returns a non-context
// error, the errgroup cancels the shared context and Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("worker orchestrator starting",
		slog.Duration("sweep_interval", o.sweepInterval),
		slog.Duration("archive_interval", o.archiveInterval),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := o.resolution.RunLoop(ctx, o.sweepInterval)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("resolution worker: %w", err)
	})

	if o.archive != nil {
		g.Go(func() error {
			err := o.archive.RunLoop(ctx, o.archiveInterval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archive worker: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("worker orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("worker orchestrator stopped cleanly")
	return nil
}
