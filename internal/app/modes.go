package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/causeway-labs/causeway/internal/server"
	"github.com/causeway-labs/causeway/internal/server/handler"
	"github.com/causeway-labs/causeway/internal/server/ws"
	"github.com/causeway-labs/causeway/internal/worker"
)

// ServeMode runs only the HTTP + WebSocket API. Deadline sweeps and archival
// are expected to run in separate worker instances.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// WorkerMode runs only the background workers: the oracle deadline sweeper
// and, when S3 is configured, the cold-storage archiver.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startWorkers(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the API server and the background workers in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	a.startWorkers(ctx, g, deps)
	return g.Wait()
}

// DevMode runs the API server against the in-memory store. There is no
// Redis, so the WebSocket hub, event cache, rate limiter, and background
// workers are all absent; deadline resolution happens only through the
// explicit resolve endpoints.
func (a *App) DevMode(ctx context.Context, deps *Dependencies) error {
	a.logger.WarnContext(ctx, "starting dev mode: in-memory store, no workers, state is lost on exit")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// startHTTPServer adds the API server goroutines to the given errgroup. The
// WebSocket hub is attached only when a signal bus is available.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Events:    handler.NewEventHandler(deps.Registry, deps.EventCache, a.logger),
		Clauses:   handler.NewClauseHandler(deps.Escrow, deps.Batch, a.logger),
		Oracle:    handler.NewOracleHandler(deps.Oracle, a.logger),
		Transfers: handler.NewTransferHandler(deps.Transfers, a.logger),
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("ws hub: %w", err)
			}
			return nil
		})
	}

	srv := server.NewServer(server.Config{
		Port:             a.cfg.Server.Port,
		CORSOrigins:      a.cfg.Server.CORSOrigins,
		APIKey:           a.cfg.Server.APIKey,
		VerifySignatures: a.cfg.Server.VerifySignatures,
		RateLimit:        a.cfg.Server.RateLimit,
		RateWindow:       a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		if err := srv.Start(); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startWorkers adds the worker orchestrator goroutine to the given errgroup.
func (a *App) startWorkers(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	resolution := worker.NewResolutionWorker(
		deps.Oracle,
		deps.Batch,
		deps.LockManager,
		deps.EventCache,
		deps.Notifier,
		a.logger,
	)

	var archive *worker.ArchiveWorker
	if deps.Archiver != nil {
		archive = worker.NewArchiveWorker(deps.Archiver, a.cfg.Worker.ArchiveRetentionDays, a.logger)
	} else {
		a.logger.InfoContext(ctx, "archive worker disabled: no blob storage configured")
	}

	orch := worker.NewOrchestrator(
		resolution,
		archive,
		a.cfg.Worker.SweepInterval.Duration,
		a.cfg.Worker.ArchiveInterval.Duration,
		a.logger,
	)

	g.Go(func() error {
		err := orch.Run(ctx)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("workers: %w", err)
		}
		return nil
	})
}
