package gateway

import (
	"context"
	"fmt"
	"log"
	"strings"

	"dut-dashboard-service/internal/dashboard/models"
)

// MockGateway simulates a small lab for development without coordinator or
// hardware. Outputs are keyed on well-known command substrings so the
// standard presets produce plausible dashboard data.
type MockGateway struct{}

func NewMockGateway() *MockGateway {
	log.Println("Gateway running in mock mode - using simulated data")
	return &MockGateway{}
}

func (g *MockGateway) Execute(ctx context.Context, targetName, command string) (ExecResult, error) {
	if err := ctx.Err(); err != nil {
		return ExecResult{}, err
	}
	if targetName == "dut-3" {
		return ExecResult{Output: "connection refused", ExitCode: 1}, nil
	}

	switch {
	case strings.Contains(command, "loadavg"):
		return ExecResult{Output: "0.15 0.10 0.05 1/123 4567", ExitCode: 0}, nil
	case strings.Contains(command, "uptime"):
		return ExecResult{Output: "12:00:00 up 3 days, 1:23, load average: 0.15, 0.10, 0.05", ExitCode: 0}, nil
	case strings.Contains(command, "temp"):
		return ExecResult{Output: "42000", ExitCode: 0}, nil
	case strings.Contains(command, "free"):
		return ExecResult{Output: "Mem: 3906 612 2871", ExitCode: 0}, nil
	default:
		return ExecResult{Output: fmt.Sprintf("mock output for %q on %s", command, targetName), ExitCode: 0}, nil
	}
}

func (g *MockGateway) Places(ctx context.Context) ([]models.Target, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []models.Target{
		{Name: "dut-1", Status: models.StatusAvailable},
		{Name: "dut-2", Status: models.StatusAcquired, AcquiredBy: "developer@host"},
		{Name: "dut-3", Status: models.StatusOffline},
	}, nil
}
