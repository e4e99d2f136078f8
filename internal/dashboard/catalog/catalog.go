// Package catalog loads the preset catalog from commands.yaml and serves it
// as a read model. Loading is all-or-nothing: a malformed file fails startup,
// and a failed reload keeps the previous catalog.
package catalog

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"dut-dashboard-service/internal/dashboard/models"
	"dut-dashboard-service/pkg/validation"
)

const (
	// DefaultPresetID is used when the file does not name a default preset
	// and as the single preset id for the legacy flat format.
	DefaultPresetID = "basic"
)

type presetEntry struct {
	Name                string                    `yaml:"name"`
	Description         string                    `yaml:"description"`
	Commands            []models.Command          `yaml:"commands"`
	ScheduledCommands   []models.ScheduledCommand `yaml:"scheduled_commands"`
	AutoRefreshCommands []string                  `yaml:"auto_refresh_commands"`
}

type catalogFile struct {
	DefaultPreset string                 `yaml:"default_preset"`
	Presets       map[string]presetEntry `yaml:"presets"`

	// Legacy flat format (no presets key): the top-level lists become a
	// single "basic" preset.
	Commands            []models.Command          `yaml:"commands"`
	ScheduledCommands   []models.ScheduledCommand `yaml:"scheduled_commands"`
	AutoRefreshCommands []string                  `yaml:"auto_refresh_commands"`
}

// Catalog is the loaded preset catalog. Safe for concurrent readers; Load and
// Reload swap the whole snapshot under a write lock.
type Catalog struct {
	path string

	mu            sync.RWMutex
	defaultPreset string
	presets       map[string]models.PresetDetail
}

// New creates a catalog bound to a commands.yaml path. Call Load before use.
func New(path string) *Catalog {
	return &Catalog{path: path}
}

// Load reads and validates the catalog file.
func (c *Catalog) Load() error {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("failed to read commands file %s: %w", c.path, err)
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to parse commands file %s: %w", c.path, err)
	}
	if doc == nil {
		return fmt.Errorf("commands file %s is empty", c.path)
	}

	_, hasPresets := doc["presets"]
	schema := legacySchema
	if hasPresets {
		schema = presetsSchema
	}

	// Round-trip through JSON so the schema validator sees json-decoded types.
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to normalize commands file %s: %w", c.path, err)
	}
	if err := validation.ValidateJSONWithSchema(schema, string(docJSON)); err != nil {
		return fmt.Errorf("commands file %s is invalid: %w", c.path, err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("failed to decode commands file %s: %w", c.path, err)
	}

	defaultPreset, presets, err := buildPresets(file, hasPresets)
	if err != nil {
		return fmt.Errorf("commands file %s is invalid: %w", c.path, err)
	}

	c.mu.Lock()
	c.defaultPreset = defaultPreset
	c.presets = presets
	c.mu.Unlock()

	log.Printf("Loaded %d presets from %s (default: %s)", len(presets), c.path, defaultPreset)
	return nil
}

// Reload re-reads the catalog file. On error the previous catalog stays
// active.
func (c *Catalog) Reload() error {
	return c.Load()
}

func buildPresets(file catalogFile, hasPresets bool) (string, map[string]models.PresetDetail, error) {
	presets := make(map[string]models.PresetDetail)

	if !hasPresets {
		basic := models.PresetDetail{
			ID:                  DefaultPresetID,
			Name:                "Basic",
			Description:         "Default commands",
			Commands:            file.Commands,
			ScheduledCommands:   file.ScheduledCommands,
			AutoRefreshCommands: file.AutoRefreshCommands,
		}
		if err := validatePreset(basic); err != nil {
			return "", nil, err
		}
		presets[DefaultPresetID] = basic
		return DefaultPresetID, presets, nil
	}

	defaultPreset := file.DefaultPreset
	if defaultPreset == "" {
		defaultPreset = DefaultPresetID
	}

	for id, entry := range file.Presets {
		name := entry.Name
		if name == "" {
			name = id
		}
		detail := models.PresetDetail{
			ID:                  id,
			Name:                name,
			Description:         entry.Description,
			Commands:            entry.Commands,
			ScheduledCommands:   entry.ScheduledCommands,
			AutoRefreshCommands: entry.AutoRefreshCommands,
		}
		if err := validatePreset(detail); err != nil {
			return "", nil, err
		}
		presets[id] = detail
	}

	if _, ok := presets[defaultPreset]; !ok {
		return "", nil, fmt.Errorf("default preset %q is not defined", defaultPreset)
	}
	return defaultPreset, presets, nil
}

func validatePreset(p models.PresetDetail) error {
	commandNames := make(map[string]bool, len(p.Commands))
	for _, cmd := range p.Commands {
		if commandNames[cmd.Name] {
			return fmt.Errorf("preset %q has duplicate command name %q", p.ID, cmd.Name)
		}
		commandNames[cmd.Name] = true
	}

	scheduledNames := make(map[string]bool, len(p.ScheduledCommands))
	for _, cmd := range p.ScheduledCommands {
		if scheduledNames[cmd.Name] {
			return fmt.Errorf("preset %q has duplicate scheduled command name %q", p.ID, cmd.Name)
		}
		scheduledNames[cmd.Name] = true
		if cmd.IntervalSeconds <= 0 {
			return fmt.Errorf("preset %q scheduled command %q has non-positive interval", p.ID, cmd.Name)
		}
	}

	for _, name := range p.AutoRefreshCommands {
		if !commandNames[name] {
			return fmt.Errorf("preset %q auto-refresh command %q is not a defined command", p.ID, name)
		}
	}
	return nil
}

// DefaultPresetID returns the configured default preset id.
func (c *Catalog) DefaultPresetID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaultPreset
}

// Has reports whether the preset id exists.
func (c *Catalog) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.presets[id]
	return ok
}

// Preset returns the full definition for a preset id.
func (c *Catalog) Preset(id string) (models.PresetDetail, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.presets[id]
	return p, ok
}

// Presets returns summaries of all presets, sorted by id.
func (c *Catalog) Presets() []models.Preset {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Preset, 0, len(c.presets))
	for _, p := range c.presets {
		out = append(out, models.Preset{ID: p.ID, Name: p.Name, Description: p.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
