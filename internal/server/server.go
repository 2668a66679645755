// Package server exposes the MetaMarket HTTP and WebSocket API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
	"github.com/kunalatmosoft/MetaMarket/internal/observability"
	"github.com/kunalatmosoft/MetaMarket/internal/server/handler"
	"github.com/kunalatmosoft/MetaMarket/internal/server/middleware"
	"github.com/kunalatmosoft/MetaMarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per RateWindow and client; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health      *handler.HealthHandler
	Markets     *handler.MarketHandler
	Campaigns   *handler.CampaignHandler
	Tx          *handler.TxHandler
	Evaluate    *handler.EvaluateHandler
	Preferences *handler.PreferenceHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (request id, logging, CORS, rate limit, auth) and
// attaches the WebSocket hub when one is given.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, metrics *observability.Metrics, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check and metrics.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.Handle("GET /metrics", metrics.Handler())

	// Markets.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/categories", handlers.Markets.ListCategories)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("POST /api/markets", handlers.Tx.CreateMarket)
	mux.HandleFunc("POST /api/markets/{id}/bets", handlers.Tx.PlaceBet)
	mux.HandleFunc("POST /api/markets/{id}/resolve", handlers.Tx.ResolveMarket)
	mux.HandleFunc("POST /api/markets/{id}/claim", handlers.Tx.ClaimPayout)

	// Campaigns.
	mux.HandleFunc("GET /api/campaigns", handlers.Campaigns.ListCampaigns)
	mux.HandleFunc("GET /api/campaigns/{id}", handlers.Campaigns.GetCampaign)
	mux.HandleFunc("POST /api/campaigns", handlers.Tx.CreateCampaign)
	mux.HandleFunc("POST /api/campaigns/{id}/contributions", handlers.Tx.Contribute)

	// Transaction log.
	mux.HandleFunc("GET /api/transactions", handlers.Tx.ListTransactions)

	// AI evaluation.
	mux.HandleFunc("POST /api/evaluate", handlers.Evaluate.Evaluate)

	// Preferences.
	mux.HandleFunc("GET /api/preferences/theme", handlers.Preferences.GetTheme)
	mux.HandleFunc("PUT /api/preferences/theme", handlers.Preferences.PutTheme)

	// WebSocket endpoints.
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleListWS)
		mux.HandleFunc("GET /ws/markets/{id}", hub.HandleMarketWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	h = middleware.Logging(logger, metrics)(h)
	h = middleware.RequestID()(h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Writes wait for transaction receipts.
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the full middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

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
