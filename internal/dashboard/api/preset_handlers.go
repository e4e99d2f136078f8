package api

import (
	"context"
	"log"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"dut-dashboard-service/internal/dashboard/cache"
	"dut-dashboard-service/internal/dashboard/catalog"
	"dut-dashboard-service/internal/dashboard/models"
	"dut-dashboard-service/internal/dashboard/store"
)

// Reconciler lets the API trigger engine reconciliation after an assignment
// change. Satisfied by *scheduler.Engine.
type Reconciler interface {
	Reconcile() (started, stopped int)
}

// TargetLister supplies the current targets for reload invalidation.
// Satisfied by *coordinator.Registry.
type TargetLister interface {
	Snapshot() []models.Target
}

// PresetHandler serves the preset catalog and target assignments.
type PresetHandler struct {
	Catalog     *catalog.Catalog
	Assignments *store.AssignmentStore
	Cache       *cache.ResultCache
	Engine      Reconciler
	Targets     TargetLister
}

func NewPresetHandler(cat *catalog.Catalog, assignments *store.AssignmentStore, resultCache *cache.ResultCache, engine Reconciler, targets TargetLister) *PresetHandler {
	return &PresetHandler{Catalog: cat, Assignments: assignments, Cache: resultCache, Engine: engine, Targets: targets}
}

func (h *PresetHandler) GetPresets(ctx context.Context, c *app.RequestContext) {
	c.JSON(http.StatusOK, utils.H{
		"default_preset": h.Catalog.DefaultPresetID(),
		"presets":        h.Catalog.Presets(),
	})
}

func (h *PresetHandler) GetPresetByID(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")
	preset, ok := h.Catalog.Preset(id)
	if !ok {
		c.JSON(http.StatusNotFound, utils.H{"error": "Preset not found"})
		return
	}
	c.JSON(http.StatusOK, preset)
}

func (h *PresetHandler) GetTargetPreset(ctx context.Context, c *app.RequestContext) {
	name := c.Param("name")
	presetID, err := h.Assignments.Get(name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to read assignment: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, utils.H{"target": name, "preset_id": presetID})
}

type SetTargetPresetRequest struct {
	PresetID string `json:"preset_id" validate:"required,gt=0"`
}

// SetTargetPreset assigns a preset to a target. Cached outputs of scheduled
// commands the new preset does not declare are invalidated, then the engine
// reconciles so the next tick boundary reflects the new preset.
func (h *PresetHandler) SetTargetPreset(ctx context.Context, c *app.RequestContext) {
	name := c.Param("name")

	var req SetTargetPresetRequest
	if err := c.Bind(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	if err := c.Validate(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid request payload: " + err.Error()})
		return
	}

	newPreset, ok := h.Catalog.Preset(req.PresetID)
	if !ok {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Unknown preset: " + req.PresetID})
		return
	}

	oldPresetID, err := h.Assignments.Get(name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to read assignment: " + err.Error()})
		return
	}

	if err := h.Assignments.Set(name, req.PresetID); err != nil {
		c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to save assignment: " + err.Error()})
		return
	}

	if oldPreset, ok := h.Catalog.Preset(oldPresetID); ok {
		for _, cmd := range oldPreset.ScheduledCommands {
			if _, kept := newPreset.ScheduledCommandByName(cmd.Name); !kept {
				h.Cache.Invalidate(name, cmd.Name)
			}
		}
	}

	started, stopped := h.Engine.Reconcile()
	log.Printf("Preset for %q set to %q (reconcile: %d started, %d stopped)", name, req.PresetID, started, stopped)
	c.JSON(http.StatusOK, utils.H{"target": name, "preset_id": req.PresetID})
}

// GetScheduledCommands returns the configured scheduled commands of every
// preset.
func (h *PresetHandler) GetScheduledCommands(ctx context.Context, c *app.RequestContext) {
	out := make(map[string][]models.ScheduledCommand)
	for _, p := range h.Catalog.Presets() {
		if detail, ok := h.Catalog.Preset(p.ID); ok {
			out[p.ID] = detail.ScheduledCommands
		}
	}
	c.JSON(http.StatusOK, utils.H{"scheduled_commands": out})
}

// ReloadCatalog re-reads the catalog file. Cached outputs of scheduled
// commands that a target's effective preset no longer declares are dropped,
// then the engine reconciles. A failed reload keeps the previous catalog.
func (h *PresetHandler) ReloadCatalog(ctx context.Context, c *app.RequestContext) {
	before := h.scheduledNamesPerTarget()

	if err := h.Catalog.Reload(); err != nil {
		c.JSON(http.StatusInternalServerError, utils.H{"error": "Catalog reload failed: " + err.Error()})
		return
	}

	after := h.scheduledNamesPerTarget()
	for target, names := range before {
		for name := range names {
			if !after[target][name] {
				h.Cache.Invalidate(target, name)
			}
		}
	}

	started, stopped := h.Engine.Reconcile()
	log.Printf("Catalog reloaded (reconcile: %d started, %d stopped)", started, stopped)
	c.JSON(http.StatusOK, utils.H{
		"message": "Catalog reloaded",
		"started": started,
		"stopped": stopped,
	})
}

// scheduledNamesPerTarget resolves each target's effective preset to the set
// of scheduled command names it declares.
func (h *PresetHandler) scheduledNamesPerTarget() map[string]map[string]bool {
	out := make(map[string]map[string]bool)
	for _, target := range h.Targets.Snapshot() {
		presetID, err := h.Assignments.Get(target.Name)
		if err != nil {
			continue
		}
		preset, ok := h.Catalog.Preset(presetID)
		if !ok {
			continue
		}
		names := make(map[string]bool, len(preset.ScheduledCommands))
		for _, cmd := range preset.ScheduledCommands {
			names[cmd.Name] = true
		}
		out[target.Name] = names
	}
	return out
}
