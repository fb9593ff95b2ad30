// Package metrics define las métricas Prometheus del motor OAuth. Viven en
// un paquete aparte para que los servicios las incrementen sin importar la
// capa HTTP.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	TokensIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_tokens_issued_total",
		Help: "Tokens emitidos por grant_type",
	}, []string{"grant_type"})

	ClientAuthFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_client_auth_failures_total",
		Help: "Autenticaciones de client fallidas por método",
	}, []string{"method"})

	JWKSFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_jwks_fetch_total",
		Help: "Fetch de jwks_uri remotos por resultado (hit|miss|error)",
	}, []string{"result"})

	CleanupDeleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_cleanup_deleted_total",
		Help: "Entidades vencidas borradas por el sweep (code|token)",
	}, []string{"kind"})

	ConsentRevocations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauth_consent_revocations_total",
		Help: "Consents revocados",
	})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Número total de requests procesadas",
	}, []string{"method", "path", "status"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Latencia de los requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPInflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "http_inflight_requests",
		Help: "Requests en vuelo por método y ruta",
	}, []string{"method", "path"})

	RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Requests rechazadas por rate limit",
	}, []string{"path"})
)

// Register registra las métricas en reg (default si es nil). Registrar dos
// veces no es error.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		TokensIssued, ClientAuthFailures, JWKSFetches, CleanupDeleted, ConsentRevocations,
		HTTPRequests, HTTPDuration, HTTPInflight, RateLimited,
	} {
		if err := RegisterCollector(reg, c); err != nil {
			return err
		}
	}
	return nil
}

// RegisterCollector ignora AlreadyRegisteredError.
func RegisterCollector(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return nil
		}
		return err
	}
	return nil
}
