// Package gateway abstracts command execution against remote targets through
// the lab coordinator. The engine only depends on the Gateway interface; the
// CLI and mock implementations are selected by configuration.
package gateway

import (
	"context"
	"errors"

	"dut-dashboard-service/internal/dashboard/config"
	"dut-dashboard-service/internal/dashboard/models"
)

// ErrTimeout is returned when an execution exceeds its bounded timeout. The
// in-flight call is abandoned and the result treated as a failure.
var ErrTimeout = errors.New("command execution timed out")

// ExecResult is the outcome of one command execution. A non-zero exit code is
// a result, not an error: the output (usually the error text) is preserved so
// operators can see it.
type ExecResult struct {
	Output   string
	ExitCode int
}

// Gateway executes commands on targets and lists the coordinator's places.
type Gateway interface {
	Execute(ctx context.Context, targetName, command string) (ExecResult, error)
	Places(ctx context.Context) ([]models.Target, error)
}

// GatewayModeMock selects the canned development gateway.
const GatewayModeMock = "mock"

// New selects a gateway implementation from settings.
func New(settings config.Settings) Gateway {
	if settings.GatewayMode == GatewayModeMock {
		return NewMockGateway()
	}
	return NewCLIGateway(settings.GatewayCLI, settings.ExecTimeout)
}
