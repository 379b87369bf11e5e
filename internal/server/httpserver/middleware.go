package httpserver

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/dmitrijs2005/dlkeeper/internal/common"
	"github.com/go-chi/chi/v5/middleware"
)

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":      "*",
	"Access-Control-Allow-Headers":     "authorization, x-client-info, apikey, content-type",
	"Access-Control-Allow-Methods":     "GET, OPTIONS",
	"Access-Control-Max-Age":           "86400",
	"Access-Control-Allow-Credentials": "false",
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range corsHeaders {
			w.Header().Set(k, v)
		}
		next.ServeHTTP(w, r)
	})
}

func preflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *HTTPServer) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error(r.Context(), "panic recovered",
					"request_id", middleware.GetReqID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
				)
				writeError(w, http.StatusInternalServerError, "DOWNLOAD_ERROR", "Internal server error occurred during download")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware never logs the query string: it carries bearer tokens.
func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		statusCode := ww.Status()
		if statusCode == 0 {
			statusCode = http.StatusOK
		}

		fields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", statusCode,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		}
		switch {
		case statusCode >= 500:
			s.logger.Error(r.Context(), "http request completed", fields...)
		case statusCode >= 400:
			s.logger.Warn(r.Context(), "http request completed", fields...)
		default:
			s.logger.Info(r.Context(), "http request completed", fields...)
		}
	})
}

func (s *HTTPServer) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		ok, err := s.limiter.Allow(r.Context(), s.clientIP(r))
		if err != nil {
			s.logger.Warn(r.Context(), "rate limiter unavailable", "error", err)
		}
		if !ok {
			status, code, msg, outcome := mapRedemptionError(common.ErrRateLimited)
			s.metrics.Redemptions.WithLabelValues(outcome).Inc()
			writeError(w, status, code, msg)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the socket peer unless it is a trusted proxy. Behind a
// trusted proxy the right-most X-Forwarded-For hop that is not itself a
// trusted proxy wins, then X-Real-IP.
func (s *HTTPServer) clientIP(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		peer = host
	}

	addr, err := netip.ParseAddr(peer)
	if err != nil || !s.isTrustedProxy(addr) {
		return peer
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		if !s.isTrustedProxy(hop) {
			return hop.String()
		}
	}

	if ip, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return ip.String()
	}
	return peer
}

func (s *HTTPServer) isTrustedProxy(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range s.trustedProxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
