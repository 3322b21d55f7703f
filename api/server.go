// Package api exposes the service over HTTP REST.
//
// Endpoints:
//
//	GET    /health                    liveness probe
//	GET    /ready                     readiness probe (pings the database)
//	GET    /metrics                   Prometheus metrics
//	POST   /api/sources               create a source
//	GET    /api/sources               list sources
//	GET    /api/sources/{id}          fetch a source
//	DELETE /api/sources/{id}          delete a source from both stores
//	POST   /api/sources/{id}/index    run the indexing pipeline
//	GET    /api/index/stats           analytical store totals
//	POST   /api/agents                create an agent
//	GET    /api/agents                list agents
//	GET    /api/agents/{id}           fetch an agent
//	PUT    /api/agents/{id}/sources   replace the agent's active sources
//	POST   /api/agents/{id}/shares    share an agent with a principal
//	GET    /api/agents/{id}/messages  conversation history
//	POST   /api/search                vector search with assembled references
//	POST   /api/chat                  one chat turn
//
// Tenancy comes from the X-Tenant-ID header on every /api route;
// authentication happens upstream.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cairn-ai/cairn/internal/log"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:3400"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout = 60 * time.Second

	// IdleTimeout is the maximum wait for the next keep-alive request.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for the REST API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger
}

// Deps carries everything the handlers need.
type Deps struct {
	Pool    *pgxpool.Pool
	Sources *SourcesHandler
	Agents  *AgentsHandler
	Search  *SearchHandler
	Chat    *ChatHandler
	Logger  log.Logger
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = log.NewNop()
	}

	mux := http.NewServeMux()

	NewHealthHandler(d.Pool, d.Logger).RegisterRoutes(mux)
	registerMetricsRoute(mux)
	if d.Sources != nil {
		d.Sources.RegisterRoutes(mux)
	}
	if d.Agents != nil {
		d.Agents.RegisterRoutes(mux)
	}
	if d.Search != nil {
		d.Search.RegisterRoutes(mux)
	}
	if d.Chat != nil {
		d.Chat.RegisterRoutes(mux)
	}

	return &Server{mux: mux, logger: d.Logger}
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → metrics → logging → handler.
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware, metricsMiddleware, loggingMiddleware)
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// tenantID extracts the tenant from the request header. Every /api route
// requires it.
func tenantID(r *http.Request) string {
	return r.Header.Get("X-Tenant-ID")
}
