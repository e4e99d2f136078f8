package api

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"dut-dashboard-service/internal/dashboard/cache"
	"dut-dashboard-service/internal/dashboard/catalog"
	"dut-dashboard-service/internal/dashboard/coordinator"
	"dut-dashboard-service/internal/dashboard/events"
	"dut-dashboard-service/internal/dashboard/gateway"
	"dut-dashboard-service/internal/dashboard/models"
	"dut-dashboard-service/internal/dashboard/store"
)

// TargetHandler serves target queries and ad-hoc command execution.
type TargetHandler struct {
	Registry    *coordinator.Registry
	Cache       *cache.ResultCache
	Catalog     *catalog.Catalog
	Assignments *store.AssignmentStore
	Gateway     gateway.Gateway
	Broadcaster events.Broadcaster
	ExecTimeout time.Duration
}

func NewTargetHandler(
	registry *coordinator.Registry,
	resultCache *cache.ResultCache,
	cat *catalog.Catalog,
	assignments *store.AssignmentStore,
	gw gateway.Gateway,
	broadcaster events.Broadcaster,
	execTimeout time.Duration,
) *TargetHandler {
	return &TargetHandler{
		Registry:    registry,
		Cache:       resultCache,
		Catalog:     cat,
		Assignments: assignments,
		Gateway:     gw,
		Broadcaster: broadcaster,
		ExecTimeout: execTimeout,
	}
}

func (h *TargetHandler) GetTargets(ctx context.Context, c *app.RequestContext) {
	c.JSON(http.StatusOK, targetsWithOutputs(h.Registry, h.Cache))
}

func (h *TargetHandler) GetTargetByName(ctx context.Context, c *app.RequestContext) {
	name := c.Param("name")
	target, ok := h.Registry.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, utils.H{"error": "Target not found"})
		return
	}
	target.ScheduledOutputs = h.Cache.OutputsFor(name)
	c.JSON(http.StatusOK, target)
}

// GetTargetCommands returns the commands of the target's effective preset.
func (h *TargetHandler) GetTargetCommands(ctx context.Context, c *app.RequestContext) {
	name := c.Param("name")
	if _, ok := h.Registry.Get(name); !ok {
		c.JSON(http.StatusNotFound, utils.H{"error": "Target not found"})
		return
	}

	presetID, err := h.Assignments.Get(name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to resolve preset: " + err.Error()})
		return
	}
	preset, ok := h.Catalog.Preset(presetID)
	if !ok {
		c.JSON(http.StatusInternalServerError, utils.H{"error": "Assigned preset not found in catalog: " + presetID})
		return
	}

	c.JSON(http.StatusOK, utils.H{
		"preset_id":             preset.ID,
		"commands":              preset.Commands,
		"scheduled_commands":    preset.ScheduledCommands,
		"auto_refresh_commands": preset.AutoRefreshCommands,
	})
}

type ExecuteCommandRequest struct {
	CommandName string `json:"command_name" validate:"required,gt=0"`
}

func (h *TargetHandler) ExecuteCommand(ctx context.Context, c *app.RequestContext) {
	name := c.Param("name")

	var req ExecuteCommandRequest
	if err := c.Bind(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	if err := c.Validate(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid request payload: " + err.Error()})
		return
	}

	output, status, errMsg := h.executeAdHoc(ctx, name, req.CommandName)
	if errMsg != "" {
		c.JSON(status, utils.H{"error": errMsg})
		return
	}
	c.JSON(http.StatusOK, utils.H{"target": name, "output": output})
}

// executeAdHoc runs a preset command on a target, broadcasts the result and
// returns it. Execution failures are reported as a CommandOutput with exit
// code 1 so the caller still sees the error text; errMsg is reserved for
// lookup failures.
func (h *TargetHandler) executeAdHoc(ctx context.Context, targetName, commandName string) (models.CommandOutput, int, string) {
	if _, ok := h.Registry.Get(targetName); !ok {
		return models.CommandOutput{}, http.StatusNotFound, "Target '" + targetName + "' not found"
	}

	presetID, err := h.Assignments.Get(targetName)
	if err != nil {
		return models.CommandOutput{}, http.StatusInternalServerError, "Failed to resolve preset: " + err.Error()
	}
	preset, ok := h.Catalog.Preset(presetID)
	if !ok {
		return models.CommandOutput{}, http.StatusInternalServerError, "Assigned preset not found in catalog: " + presetID
	}
	command, ok := preset.CommandByName(commandName)
	if !ok {
		return models.CommandOutput{}, http.StatusNotFound, "Command '" + commandName + "' not found in preset '" + presetID + "'"
	}

	log.Printf("Executing command %q on target %q", command.Name, targetName)

	execCtx, cancel := context.WithTimeout(ctx, h.ExecTimeout)
	defer cancel()

	var output models.CommandOutput
	result, err := h.Gateway.Execute(execCtx, targetName, command.Command)
	if err != nil {
		log.Printf("Command execution failed: %v", err)
		output = models.CommandOutput{
			Command:   command.Command,
			Output:    "Error executing command: " + err.Error(),
			Timestamp: time.Now().UTC(),
			ExitCode:  1,
		}
	} else {
		output = models.CommandOutput{
			Command:   command.Command,
			Output:    strings.TrimSpace(result.Output),
			Timestamp: time.Now().UTC(),
			ExitCode:  result.ExitCode,
		}
	}

	h.Broadcaster.Broadcast(targetName, events.Event{
		Type: events.TypeCommandOutput,
		Data: events.CommandOutputPayload{Target: targetName, Output: output},
	})
	return output, http.StatusOK, ""
}
