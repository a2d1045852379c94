package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the identity engine.
type Metrics struct {
	SignIns          prometheus.Counter
	TokenRefreshes   prometheus.Counter
	AuthFailures     prometheus.Counter
	ReplaysDetected  prometheus.Counter
	PasswordResets   prometheus.Counter
	EmailsVerified   prometheus.Counter
	LiveSessions     prometheus.Gauge
	TokensPruned     prometheus.Counter
	SessionsPruned   prometheus.Counter
	FlowLatency      *prometheus.HistogramVec
	AuthzChecks      *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		SignIns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "portico_sign_ins_total",
			Help: "Total number of successful sign-ins",
		}),
		TokenRefreshes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "portico_token_refreshes_total",
			Help: "Total number of successful token refreshes",
		}),
		AuthFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "portico_auth_failures_total",
			Help: "Total number of authentication failures",
		}),
		ReplaysDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "portico_refresh_replays_detected_total",
			Help: "Total number of revoked refresh tokens re-presented for refresh",
		}),
		PasswordResets: promauto.NewCounter(prometheus.CounterOpts{
			Name: "portico_password_resets_total",
			Help: "Total number of completed password resets",
		}),
		EmailsVerified: promauto.NewCounter(prometheus.CounterOpts{
			Name: "portico_emails_verified_total",
			Help: "Total number of completed email verifications",
		}),
		LiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "portico_live_sessions",
			Help: "Current number of live sessions",
		}),
		TokensPruned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "portico_refresh_tokens_pruned_total",
			Help: "Total number of refresh tokens removed by the cleanup sweep",
		}),
		SessionsPruned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "portico_sessions_pruned_total",
			Help: "Total number of sessions removed by the cleanup sweep",
		}),
		FlowLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portico_auth_flow_latency_seconds",
			Help:    "Latency of authentication flows in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"flow"}),
		AuthzChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "portico_authz_checks_total",
			Help: "Authorization predicate evaluations, labeled by predicate and outcome",
		}, []string{"predicate", "outcome"}),
	}
}

// IncrementSignIns increments the successful sign-in counter.
func (m *Metrics) IncrementSignIns() { m.SignIns.Inc() }

// IncrementTokenRefreshes increments the successful refresh counter.
func (m *Metrics) IncrementTokenRefreshes() { m.TokenRefreshes.Inc() }

// IncrementAuthFailures increments the authentication failure counter.
func (m *Metrics) IncrementAuthFailures() { m.AuthFailures.Inc() }

// IncrementReplaysDetected increments the replay detection counter.
func (m *Metrics) IncrementReplaysDetected() { m.ReplaysDetected.Inc() }

// IncrementPasswordResets increments the completed reset counter.
func (m *Metrics) IncrementPasswordResets() { m.PasswordResets.Inc() }

// IncrementEmailsVerified increments the completed verification counter.
func (m *Metrics) IncrementEmailsVerified() { m.EmailsVerified.Inc() }

// IncrementLiveSessions adjusts the live session gauge by delta.
func (m *Metrics) IncrementLiveSessions(delta float64) { m.LiveSessions.Add(delta) }

// SetLiveSessions replaces the live session gauge with an absolute count.
func (m *Metrics) SetLiveSessions(count int) { m.LiveSessions.Set(float64(count)) }

// AddTokensPruned records refresh tokens removed by a cleanup run.
func (m *Metrics) AddTokensPruned(n int) { m.TokensPruned.Add(float64(n)) }

// AddSessionsPruned records sessions removed by a cleanup run.
func (m *Metrics) AddSessionsPruned(n int) { m.SessionsPruned.Add(float64(n)) }

// ObserveFlowDuration records the duration of a named flow in seconds.
func (m *Metrics) ObserveFlowDuration(flow string, seconds float64) {
	m.FlowLatency.WithLabelValues(flow).Observe(seconds)
}

// ObserveAuthzCheck records an authorization predicate outcome.
func (m *Metrics) ObserveAuthzCheck(predicate, outcome string) {
	m.AuthzChecks.WithLabelValues(predicate, outcome).Inc()
}
