// Package server wires the HTTP routes, middleware chain, and WebSocket hub.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Pablito-AI/playmark-mvp/internal/server/handler"
	"github.com/Pablito-AI/playmark-mvp/internal/server/middleware"
	"github.com/Pablito-AI/playmark-mvp/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health      *handler.HealthHandler
	Markets     *handler.MarketHandler
	Bets        *handler.BetHandler
	Profile     *handler.ProfileHandler
	Leaderboard *handler.LeaderboardHandler
	Admin       *handler.AdminHandler
	Cron        *handler.CronHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and builds the middleware chain.
func NewServer(cfg Config, handlers Handlers, verifier middleware.TokenVerifier, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check, no auth.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market endpoints.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("DELETE /api/markets/{id}", handlers.Markets.DeleteMarket)

	// Bet endpoints.
	mux.HandleFunc("POST /api/bets", handlers.Bets.PlaceBet)
	mux.HandleFunc("DELETE /api/bets/{id}", handlers.Bets.CancelBet)

	// Caller's own data.
	mux.HandleFunc("POST /api/me", handlers.Profile.Register)
	mux.HandleFunc("GET /api/me", handlers.Profile.Me)
	mux.HandleFunc("GET /api/me/transactions", handlers.Profile.Transactions)
	mux.HandleFunc("GET /api/me/bets", handlers.Profile.Bets)
	mux.HandleFunc("GET /api/me/balance-check", handlers.Profile.BalanceCheck)

	// Leaderboard.
	mux.HandleFunc("GET /api/leaderboard", handlers.Leaderboard.Leaderboard)

	// Admin endpoints.
	mux.HandleFunc("POST /api/markets/{id}/resolve", handlers.Admin.ResolveMarket)
	mux.HandleFunc("GET /api/markets/{id}/pool-check", handlers.Admin.VerifyPool)

	// Scheduler trigger.
	mux.HandleFunc("POST /api/cron/close-markets", handlers.Cron.CloseMarkets)

	// WebSocket event stream.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(verifier)(h)
	h = middleware.Logging(logger)(h)
	h = corsMiddleware(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, logger: logger}
}

// Start listens for requests. It blocks until the server fails or shuts
// down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// corsMiddleware sets CORS headers for the allowed origins; an empty list
// allows every origin.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				allowed := len(allowedOrigins) == 0
				for _, o := range allowedOrigins {
					if strings.EqualFold(o, "*") || strings.EqualFold(o, origin) {
						allowed = true
						break
					}
				}
				if allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
					w.Header().Set("Access-Control-Max-Age", "86400")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
