// Package server assembles the HTTP API: routing, middleware, and graceful
// shutdown around the engine services.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/outcomelab/predengine/internal/server/handler"
	"github.com/outcomelab/predengine/internal/server/middleware"
	"github.com/outcomelab/predengine/internal/server/ws"
)

// Config holds the HTTP server settings.
type Config struct {
	Port        int
	APIKey      string
	CORSOrigins []string
}

// Handlers aggregates the endpoint handlers the server mounts.
type Handlers struct {
	Health *handler.HealthHandler
	Orders *handler.OrderHandler
	Books  *handler.BookHandler
	Pools  *handler.PoolHandler
	Trades *handler.TradeHandler
	Events *handler.EventsHandler
	Hub    *ws.Hub
}

// Server is the HTTP front of the engine.
type Server struct {
	cfg    Config
	logger *slog.Logger
	http   *http.Server
}

// New builds a Server with all routes registered and the middleware chain
// applied: CORS, then request logging, then authentication.
func New(cfg Config, h Handlers, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.Health)

	mux.HandleFunc("POST /api/orders", h.Orders.PlaceOrder)
	mux.HandleFunc("GET /api/markets/{market}/orders", h.Orders.ListOrders)
	mux.HandleFunc("GET /api/markets/{market}/orders/{id}", h.Orders.GetOrder)
	mux.HandleFunc("DELETE /api/markets/{market}/orders/{id}", h.Orders.CancelOrder)
	mux.HandleFunc("POST /api/markets/{market}/match", h.Orders.MatchOrders)

	mux.HandleFunc("GET /api/markets/{market}/book", h.Books.Depth)
	mux.HandleFunc("GET /api/markets/{market}/book/stats", h.Books.Stats)

	mux.HandleFunc("POST /api/markets/{market}/pool", h.Pools.CreatePool)
	mux.HandleFunc("GET /api/markets/{market}/pool", h.Pools.GetPool)
	mux.HandleFunc("DELETE /api/markets/{market}/pool", h.Pools.DeactivatePool)
	mux.HandleFunc("POST /api/markets/{market}/pool/liquidity", h.Pools.AddLiquidity)
	mux.HandleFunc("DELETE /api/markets/{market}/pool/liquidity", h.Pools.RemoveLiquidity)
	mux.HandleFunc("POST /api/markets/{market}/pool/swap", h.Pools.Swap)
	mux.HandleFunc("GET /api/markets/{market}/pool/quote", h.Pools.Quote)
	mux.HandleFunc("GET /api/markets/{market}/pool/prices", h.Pools.Prices)
	mux.HandleFunc("GET /api/liquidity/tokens", h.Pools.ProviderTokens)

	mux.HandleFunc("GET /api/markets/{market}/trades", h.Trades.ListTrades)
	mux.HandleFunc("GET /api/markets/{market}/swaps", h.Trades.ListSwaps)

	if h.Events != nil {
		mux.HandleFunc("GET /api/events/{channel}", h.Events.Replay)
	}

	if h.Hub != nil {
		mux.HandleFunc("GET /ws", h.Hub.HandleWS)
	}

	var root http.Handler = mux
	root = middleware.Auth(cfg.APIKey)(root)
	root = middleware.Logging(logger)(root)
	root = corsMiddleware(cfg.CORSOrigins)(root)

	return &Server{
		cfg:    cfg,
		logger: logger,
		http: &http.Server{
			Addr:         ":" + strconv.Itoa(cfg.Port),
			Handler:      root,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start runs the server until it fails or Shutdown is called. It blocks.
func (s *Server) Start() error {
	s.logger.Info("http server listening", slog.Int("port", s.cfg.Port))

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.http.Shutdown(ctx)
}

// corsMiddleware applies CORS headers for the configured origins. An origins
// list containing "*" allows any origin.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				if allowAll {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else if _, ok := allowed[origin]; ok {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
				}
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key, X-Account-ID")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
