package gateway

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"dut-dashboard-service/internal/dashboard/models"
)

// CLIGateway shells out to the coordinator client binary
// (labgrid-client compatible): `<cli> -p <place> ssh -- <command>` for
// execution, `<cli> places` and `<cli> who` for the place listing.
type CLIGateway struct {
	Binary  string
	Timeout time.Duration
}

func NewCLIGateway(binary string, timeout time.Duration) *CLIGateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CLIGateway{Binary: binary, Timeout: timeout}
}

// Execute runs the command on the target with a bounded timeout. On expiry
// the whole process group is killed and ErrTimeout returned.
func (g *CLIGateway) Execute(ctx context.Context, targetName, command string) (ExecResult, error) {
	cmd := exec.Command(g.Binary, "-p", targetName, "ssh", "--", command)
	// Own process group: a timeout must also take down whatever the client
	// spawned (its ssh child), or Wait blocks on the inherited pipes until
	// the orphan exits.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return ExecResult{}, fmt.Errorf("failed to start %s: %w", g.Binary, err)
	}

	killGroup := func() {
		if cmd.Process != nil {
			syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(g.Timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		killGroup()
		<-done
		return ExecResult{}, ctx.Err()
	case <-timer.C:
		killGroup()
		<-done
		log.Printf("CLIGateway: command on %q timed out after %s", targetName, g.Timeout)
		return ExecResult{}, ErrTimeout
	case err := <-done:
		output := strings.TrimSpace(stdout.String())
		if err != nil {
			exitErr, ok := err.(*exec.ExitError)
			if !ok {
				return ExecResult{}, fmt.Errorf("command execution failed: %w", err)
			}
			errOutput := strings.TrimSpace(stderr.String())
			if errOutput == "" {
				errOutput = output
			}
			return ExecResult{Output: errOutput, ExitCode: exitErr.ExitCode()}, nil
		}
		return ExecResult{Output: output, ExitCode: 0}, nil
	}
}

// Places lists the coordinator's places. Places acquired by someone (per
// `who`) are reported as acquired, the rest as available. The CLI cannot see
// exporter liveness, so offline detection is left to the state feed.
func (g *CLIGateway) Places(ctx context.Context) ([]models.Target, error) {
	placesOut, err := g.run(ctx, "places")
	if err != nil {
		return nil, fmt.Errorf("failed to list places: %w", err)
	}

	acquired := map[string]string{}
	if whoOut, err := g.run(ctx, "who"); err != nil {
		log.Printf("CLIGateway: who failed, acquisition info unavailable: %v", err)
	} else {
		for _, line := range strings.Split(whoOut, "\n") {
			fields := strings.Fields(line)
			// "<user> <host> <place> <changed>"
			if len(fields) >= 3 {
				acquired[fields[2]] = fields[0] + "@" + fields[1]
			}
		}
	}

	var targets []models.Target
	for _, line := range strings.Split(placesOut, "\n") {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		t := models.Target{Name: name, Status: models.StatusAvailable}
		if by, ok := acquired[name]; ok {
			t.Status = models.StatusAcquired
			t.AcquiredBy = by
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func (g *CLIGateway) run(ctx context.Context, args ...string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, g.Binary, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
