package models

import "time"

// Target statuses as reported by the lab coordinator.
const (
	StatusAvailable = "available"
	StatusAcquired  = "acquired"
	StatusOffline   = "offline"
)

// Target represents a DUT/place known to the lab coordinator.
// Status and AcquiredBy originate from the coordinator; ScheduledOutputs is
// filled from the result cache when a snapshot is rendered.
type Target struct {
	Name             string                            `json:"name"`
	Status           string                            `json:"status"`
	AcquiredBy       string                            `json:"acquired_by,omitempty"`
	ScheduledOutputs map[string]ScheduledCommandOutput `json:"scheduled_outputs,omitempty"`
}

// Runnable reports whether scheduled commands may execute on the target.
func (t Target) Runnable() bool {
	return t.Status != StatusOffline
}

// Command is a predefined command that can be executed on targets.
type Command struct {
	Name        string `json:"name" yaml:"name"`
	Command     string `json:"command" yaml:"command"`
	Description string `json:"description" yaml:"description"`
}

// ScheduledCommand is a command the engine runs periodically per target.
type ScheduledCommand struct {
	Name            string `json:"name" yaml:"name"`
	Command         string `json:"command" yaml:"command"`
	IntervalSeconds int    `json:"interval_seconds" yaml:"interval_seconds"`
	Description     string `json:"description" yaml:"description"`
}

// CommandOutput is the result of one ad-hoc command execution.
type CommandOutput struct {
	Command   string    `json:"command"`
	Output    string    `json:"output"`
	Timestamp time.Time `json:"timestamp"`
	ExitCode  int       `json:"exit_code"`
}

// ScheduledCommandOutput is the latest cached result of a scheduled command
// for one target. Each new run overwrites the previous value for its key.
type ScheduledCommandOutput struct {
	CommandName string    `json:"command_name"`
	Output      string    `json:"output"`
	Timestamp   time.Time `json:"timestamp"`
	ExitCode    int       `json:"exit_code"`
}

// Preset is the summary view of a preset (list endpoints).
type Preset struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// PresetDetail is a full preset definition from the catalog.
type PresetDetail struct {
	ID                  string             `json:"id"`
	Name                string             `json:"name"`
	Description         string             `json:"description"`
	Commands            []Command          `json:"commands"`
	ScheduledCommands   []ScheduledCommand `json:"scheduled_commands"`
	AutoRefreshCommands []string           `json:"auto_refresh_commands"`
}

// CommandByName returns the named ad-hoc command from the preset.
func (p PresetDetail) CommandByName(name string) (Command, bool) {
	for _, cmd := range p.Commands {
		if cmd.Name == name {
			return cmd, true
		}
	}
	return Command{}, false
}

// ScheduledCommandByName returns the named scheduled command from the preset.
func (p PresetDetail) ScheduledCommandByName(name string) (ScheduledCommand, bool) {
	for _, cmd := range p.ScheduledCommands {
		if cmd.Name == name {
			return cmd, true
		}
	}
	return ScheduledCommand{}, false
}

// TargetStateUpdate is one coordinator state-feed message.
type TargetStateUpdate struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	AcquiredBy string `json:"acquired_by,omitempty"`
}
