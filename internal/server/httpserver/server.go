// Package httpserver exposes token redemption to customers over HTTP.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/netip"
	"time"

	"github.com/dmitrijs2005/dlkeeper/internal/logging"
	"github.com/dmitrijs2005/dlkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/dlkeeper/internal/server/ratelimit"
	"github.com/dmitrijs2005/dlkeeper/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 10 * time.Second

type HTTPServer struct {
	address        string
	downloads      *services.DownloadService
	redemption     *services.RedemptionService
	limiter        ratelimit.Limiter
	metrics        *metrics.Metrics
	requestTimeout time.Duration
	logger         logging.Logger
	trustedProxies []netip.Prefix
}

// NewHTTPServer wires the handlers. limiter may be nil, which disables
// per-client throttling.
func NewHTTPServer(address string, l logging.Logger, ds *services.DownloadService, rs *services.RedemptionService,
	limiter ratelimit.Limiter, m *metrics.Metrics, requestTimeout time.Duration) *HTTPServer {
	return &HTTPServer{
		address:        address,
		downloads:      ds,
		redemption:     rs,
		limiter:        limiter,
		metrics:        m,
		requestTimeout: requestTimeout,
		logger:         l.With("module", "http_server"),
	}
}

// SetTrustedProxies lists the peers whose forwarding headers are believed
// when keying the rate limiter. Everyone else is keyed by socket address.
func (s *HTTPServer) SetTrustedProxies(proxies []netip.Prefix) {
	s.trustedProxies = proxies
}

// Router registers routes and the middleware stack.
func (s *HTTPServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.recoverMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/download", func(r chi.Router) {
		r.Use(corsMiddleware)
		r.Options("/", preflight)
		r.Options("/status", preflight)
		r.Get("/status", s.status)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimitMiddleware)
			r.Get("/", s.download)
		})
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
