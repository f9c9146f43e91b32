package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/tippster/internal/monitoring"
	"github.com/charlesng35/tippster/pkg/response"
)

const probeTimeout = 5 * time.Second

// HealthHandler serves liveness and readiness probes backed by the monitoring module.
type HealthHandler struct {
	manager *monitoring.HealthManager
}

// NewHealthHandler exposes the health manager over HTTP.
func NewHealthHandler(manager *monitoring.HealthManager) *HealthHandler {
	if manager == nil {
		manager = monitoring.NewHealthManager()
	}
	return &HealthHandler{manager: manager}
}

// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	h.write(c, h.manager.EvaluateReadiness)
}

// GET /health/live
func (h *HealthHandler) Liveness(c *gin.Context) {
	h.write(c, h.manager.EvaluateLiveness)
}

// GET /health/ready
func (h *HealthHandler) Readiness(c *gin.Context) {
	h.write(c, h.manager.EvaluateReadiness)
}

func (h *HealthHandler) write(c *gin.Context, evaluate func(context.Context) monitoring.HealthReport) {
	ctx, cancel := context.WithTimeout(requestContext(c), probeTimeout)
	defer cancel()

	report := evaluate(ctx)
	status := http.StatusOK
	if report.Status == monitoring.StatusDown {
		status = http.StatusServiceUnavailable
	}
	response.Success(c, status, report)
}
