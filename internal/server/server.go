package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/causeway-labs/causeway/internal/domain"
	"github.com/causeway-labs/causeway/internal/server/handler"
	"github.com/causeway-labs/causeway/internal/server/middleware"
	"github.com/causeway-labs/causeway/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, operator endpoints are unauthenticated

	// VerifySignatures enables EIP-191 signature verification of caller
	// headers. When false, caller addresses are accepted as declared,
	// which is only suitable for development.
	VerifySignatures bool

	// RateLimit is the number of requests allowed per client within
	// RateWindow. Zero disables rate limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Events    *handler.EventHandler
	Clauses   *handler.ClauseHandler
	Oracle    *handler.OracleHandler
	Transfers *handler.TransferHandler
}

// Server is the HTTP + WebSocket API server for the giving engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, caller auth, rate limiting) and
// attaches the WebSocket hub. limiter may be nil to disable rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Event registry endpoints.
	mux.HandleFunc("POST /api/events", handlers.Events.CreateEvent)
	mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)
	mux.HandleFunc("GET /api/events/{id}", handlers.Events.GetEvent)
	mux.HandleFunc("POST /api/events/{id}/resolve", handlers.Events.ResolveEvent)
	mux.HandleFunc("POST /api/events/{id}/execute", handlers.Clauses.ExecuteBatch)

	// Clause escrow endpoints.
	mux.HandleFunc("POST /api/clauses", handlers.Clauses.Deposit)
	mux.HandleFunc("GET /api/clauses", handlers.Clauses.ListClauses)
	mux.HandleFunc("GET /api/clauses/{id}", handlers.Clauses.GetClause)
	mux.HandleFunc("POST /api/clauses/{id}/execute", handlers.Clauses.ExecuteClause)
	mux.HandleFunc("POST /api/clauses/{id}/refund", handlers.Clauses.RefundClause)

	// Oracle endpoints.
	mux.HandleFunc("GET /api/oracle/{eventID}", handlers.Oracle.GetCase)
	mux.HandleFunc("GET /api/oracle/{eventID}/stake", handlers.Oracle.Stake)
	mux.HandleFunc("POST /api/oracle/{eventID}/propose", handlers.Oracle.Propose)
	mux.HandleFunc("POST /api/oracle/{eventID}/dispute", handlers.Oracle.Dispute)
	mux.HandleFunc("POST /api/oracle/{eventID}/vote", handlers.Oracle.Vote)
	mux.HandleFunc("POST /api/oracle/{eventID}/resolve", handlers.Oracle.Resolve)
	mux.HandleFunc("POST /api/oracle/{eventID}/expedite", handlers.Oracle.Expedite)
	mux.HandleFunc("POST /api/oracle/{eventID}/claim", handlers.Oracle.Claim)

	// Transfer and account endpoints.
	mux.HandleFunc("POST /api/transfers", handlers.Transfers.Send)
	mux.HandleFunc("GET /api/accounts/{address}", handlers.Transfers.Balance)
	mux.HandleFunc("GET /api/accounts/{address}/transfers", handlers.Transfers.History)

	// Funding is an operator endpoint and sits behind the API key on its own.
	mux.Handle("POST /api/accounts/{address}/fund",
		middleware.Auth(cfg.APIKey)(http.HandlerFunc(handlers.Transfers.Fund)))

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Resolve caller identity from signed headers before logging and rate
	// limiting so both see the authenticated address.
	h = middleware.CallerAuth(cfg.VerifySignatures)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
