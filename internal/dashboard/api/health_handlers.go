package api

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
)

// ConnectivityReporter reports whether the lab coordinator was reachable on
// the last poll. Satisfied by *coordinator.Poller.
type ConnectivityReporter interface {
	Connected() bool
}

// HealthHandler reports service health including coordinator connectivity.
type HealthHandler struct {
	Coordinator ConnectivityReporter
	MockMode    bool
}

func NewHealthHandler(coordinator ConnectivityReporter, mockMode bool) *HealthHandler {
	return &HealthHandler{Coordinator: coordinator, MockMode: mockMode}
}

func (h *HealthHandler) Health(ctx context.Context, c *app.RequestContext) {
	connected := h.Coordinator.Connected()
	status := "healthy"
	if !connected {
		status = "degraded"
	}
	c.JSON(http.StatusOK, utils.H{
		"status":                status,
		"coordinator_connected": connected,
		"mock_mode":             h.MockMode,
		"service":               "dut-dashboard-service",
	})
}
