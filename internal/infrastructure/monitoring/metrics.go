// Package monitoring provides the Prometheus metrics and OpenTelemetry
// tracing used by the HTTP layer.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the Prometheus collectors. All Record helpers are nil-safe
// so callers can run without metrics wired.
type Metrics struct {
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	Authorizations   *prometheus.CounterVec
	TokensIssued     *prometheus.CounterVec
	TokenValidations *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors with the given registerer.
// Tests pass a private registry to keep registrations isolated.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth2_http_requests_total",
				Help: "HTTP requests by method, endpoint class and status.",
			},
			[]string{"method", "endpoint", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oauth2_http_request_duration_seconds",
				Help:    "HTTP request latency by method and endpoint class.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		Authorizations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth2_authorizations_total",
				Help: "Finalized authorization requests by response type and outcome.",
			},
			[]string{"response_type", "outcome"},
		),
		TokensIssued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth2_tokens_issued_total",
				Help: "Access tokens issued by grant type.",
			},
			[]string{"grant_type"},
		),
		TokenValidations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth2_token_validations_total",
				Help: "Bearer token validations at the resource gate by result.",
			},
			[]string{"result"},
		),
	}
}

// RecordHTTPRequest records one handled request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, status).Inc()
	m.HTTPDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordAuthorization records a finalized authorization decision.
func (m *Metrics) RecordAuthorization(responseType, outcome string) {
	if m == nil {
		return
	}
	m.Authorizations.WithLabelValues(responseType, outcome).Inc()
}

// RecordTokenIssued records a token-endpoint success.
func (m *Metrics) RecordTokenIssued(grantType string) {
	if m == nil {
		return
	}
	m.TokensIssued.WithLabelValues(grantType).Inc()
}

// RecordTokenValidation records a resource-gate validation outcome.
func (m *Metrics) RecordTokenValidation(result string) {
	if m == nil {
		return
	}
	m.TokenValidations.WithLabelValues(result).Inc()
}
