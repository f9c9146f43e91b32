package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Module bundles the health manager and the maintenance job tracker served by the API.
type Module struct {
	health *HealthManager
	jobs   *JobTracker
}

// NewModule constructs a monitoring module with empty probe sets.
func NewModule() *Module {
	return &Module{
		health: NewHealthManager(),
		jobs:   NewJobTracker(),
	}
}

// Health exposes the health manager responsible for liveness and readiness probes.
func (m *Module) Health() *HealthManager {
	if m == nil {
		return nil
	}
	return m.health
}

// Jobs exposes the maintenance job tracker.
func (m *Module) Jobs() *JobTracker {
	if m == nil {
		return nil
	}
	return m.jobs
}

// MetricsHandler serves the process-wide Prometheus registry.
func (m *Module) MetricsHandler() http.Handler {
	return promhttp.Handler()
}
