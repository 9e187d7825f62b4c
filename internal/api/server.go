// Package api exposes the conversation core over HTTP: chat turns, document
// uploads, conversation management, and diagnostics.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ServerConfig contains configuration for the API server.
type ServerConfig struct {
	Logger     *slog.Logger
	Core       Core          // Required
	Pool       *pgxpool.Pool // Optional: nil skips the db check in /ready
	RateLimit  float64
	RateBurst  int
	TrustProxy bool
}

// Server is the JSON API HTTP server.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
}

// NewServer creates the server with all routes and middleware configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Core == nil {
		return nil, errors.New("core is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &handler{core: cfg.Core, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", h.chat)
	mux.HandleFunc("POST /api/conversations/reset", h.resetAll)
	mux.HandleFunc("POST /api/conversations/{id}/document", h.uploadDocument)
	mux.HandleFunc("POST /api/conversations/{id}/reset", h.resetConversation)
	mux.HandleFunc("GET /api/conversations/{id}", h.getHistory)
	mux.HandleFunc("GET /api/conversations", h.listConversations)
	mux.HandleFunc("GET /api/users/{id}/conversations", h.listUserConversations)
	mux.HandleFunc("GET /api/diagnostics", h.diagnostics)

	perSecond := cfg.RateLimit
	if perSecond <= 0 {
		perSecond = 1.0
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	limiter := newIPLimiter(perSecond, burst)

	// Middleware stack, outermost first: recovery, request id, logging,
	// rate limit. Request id precedes logging so the id appears in log lines.
	var stack http.Handler = mux
	stack = rateLimitMiddleware(limiter, cfg.TrustProxy, logger)(stack)
	stack = loggingMiddleware(logger)(stack)
	stack = requestIDMiddleware()(stack)
	stack = recoveryMiddleware(logger)(stack)

	// Health probes bypass the middleware stack.
	top := http.NewServeMux()
	top.HandleFunc("GET /health", health)
	top.Handle("GET /ready", readiness(cfg.Pool))
	top.Handle("/", stack)

	return &Server{mux: top, logger: logger}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// health responds to liveness probes.
func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// readiness responds to readiness probes. When a pool is configured, the
// database must answer a ping for the probe to pass.
func readiness(pool *pgxpool.Pool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := pool.Ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded","db":"unreachable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})
}
