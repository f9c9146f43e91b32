package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records credential checks by result (success|failure) and reason.
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tippster_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result", "reason"},
	)

	// TokenRefreshes counts refresh token rotations by outcome.
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tippster_token_refreshes_total",
			Help: "Total number of refresh token presentations",
		},
		[]string{"result"},
	)

	// RefreshReplays counts presentations of refresh tokens that were already rotated away.
	RefreshReplays = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tippster_refresh_replays_total",
			Help: "Refresh tokens reused after rotation",
		},
	)

	// TokensRevoked counts refresh token revocations by reason.
	TokensRevoked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tippster_tokens_revoked_total",
			Help: "Refresh tokens revoked",
		},
		[]string{"reason"},
	)

	// GuardDecisions counts auth guard outcomes (authenticated|anonymous|rejected).
	GuardDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tippster_guard_decisions_total",
			Help: "Auth guard decisions",
		},
		[]string{"guard", "outcome"},
	)

	// ActiveSessions tracks open sessions observed by this instance.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tippster_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tippster_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

var (
	// MaintenanceRuns counts background job executions by job and result.
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tippster_maintenance_runs_total",
			Help: "Maintenance job executions",
		},
		[]string{"job", "result"},
	)

	// MaintenanceAffected counts rows touched by maintenance jobs.
	MaintenanceAffected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tippster_maintenance_affected_rows_total",
			Help: "Rows expired or purged by maintenance jobs",
		},
		[]string{"job"},
	)

	// MaintenanceLastSuccess records the unix time of the last successful run per job.
	MaintenanceLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tippster_maintenance_last_success_timestamp",
			Help: "Timestamp of the last successful maintenance run (seconds since epoch)",
		},
		[]string{"job"},
	)
)
