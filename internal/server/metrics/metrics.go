// Package metrics holds the Prometheus collectors of the download service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Redemption outcomes used as the "outcome" label.
const (
	OutcomeGranted       = "granted"
	OutcomeMalformed     = "malformed"
	OutcomeInvalid       = "invalid_token"
	OutcomeExpired       = "expired"
	OutcomeLimitExceeded = "limit_exceeded"
	OutcomeUnavailable   = "file_unavailable"
	OutcomeRateLimited   = "rate_limited"
	OutcomeTimeout       = "timeout"
	OutcomeError         = "error"
)

// Metrics bundles the collectors on a private registry so that several
// instances (tests, for one) never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	TokensIssued       *prometheus.CounterVec
	IssuanceFailures   prometheus.Counter
	FallbackMappings   *prometheus.CounterVec
	Redemptions        *prometheus.CounterVec
	AccountingFailures prometheus.Counter
	TokensSwept        prometheus.Counter
	BytesServed        prometheus.Counter
	StreamDuration     prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dlkeeper_tokens_issued_total",
			Help: "Download tokens issued, by file key resolution kind",
		}, []string{"resolution"}),
		IssuanceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dlkeeper_issuance_failures_total",
			Help: "Line items for which no token could be persisted",
		}),
		FallbackMappings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dlkeeper_fallback_mappings_total",
			Help: "Line items resolved by substring match or the default artifact",
		}, []string{"resolution"}),
		Redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dlkeeper_redemptions_total",
			Help: "Download attempts, by outcome",
		}, []string{"outcome"}),
		AccountingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dlkeeper_accounting_failures_total",
			Help: "Downloads served whose counter increment failed",
		}),
		TokensSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dlkeeper_tokens_swept_total",
			Help: "Expired tokens removed by the background sweeper",
		}),
		BytesServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dlkeeper_bytes_served_total",
			Help: "Artifact bytes written to clients",
		}),
		StreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dlkeeper_stream_duration_seconds",
			Help:    "Time spent streaming one artifact",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.TokensIssued,
		m.IssuanceFailures,
		m.FallbackMappings,
		m.Redemptions,
		m.AccountingFailures,
		m.TokensSwept,
		m.BytesServed,
		m.StreamDuration,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
