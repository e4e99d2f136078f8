// Package events defines the wire format shared by the websocket hub and the
// kafka event bridge.
package events

import "dut-dashboard-service/internal/dashboard/models"

// Event kinds, server -> client.
const (
	TypeTargetsList     = "targets_list"
	TypeTargetUpdate    = "target_update"
	TypeCommandOutput   = "command_output"
	TypeScheduledOutput = "scheduled_output"
	TypeError           = "error"
)

// Event is the envelope for every message sent to subscribers.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// CommandOutputPayload carries one ad-hoc command result.
type CommandOutputPayload struct {
	Target string               `json:"target"`
	Output models.CommandOutput `json:"output"`
}

// ScheduledOutputPayload carries one scheduled command result.
type ScheduledOutputPayload struct {
	Target      string                        `json:"target"`
	CommandName string                        `json:"command_name"`
	Output      models.ScheduledCommandOutput `json:"output"`
}

// ErrorPayload carries an error detail to one client.
type ErrorPayload struct {
	Detail string `json:"detail"`
}

// Broadcaster delivers an event concerning one target to interested
// subscribers. An empty target name addresses subscribers of all targets.
type Broadcaster interface {
	Broadcast(targetName string, ev Event)
}

// Fanout broadcasts to several sinks (websocket hub, kafka bridge).
type Fanout []Broadcaster

func (f Fanout) Broadcast(targetName string, ev Event) {
	for _, b := range f {
		b.Broadcast(targetName, ev)
	}
}
