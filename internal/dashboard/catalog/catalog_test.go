package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validCatalog = `
default_preset: basic
presets:
  basic:
    name: Basic
    description: Default commands
    commands:
      - name: Uptime
        command: uptime
        description: System uptime
    scheduled_commands:
      - name: Load
        command: cat /proc/loadavg
        interval_seconds: 30
    auto_refresh_commands:
      - Uptime
  thermal:
    commands:
      - name: Sensors
        command: cat /sys/class/thermal/thermal_zone0/temp
    scheduled_commands:
      - name: Temp
        command: cat /sys/class/thermal/thermal_zone0/temp
        interval_seconds: 60
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "commands.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadPresetsFormat(t *testing.T) {
	c := New(writeCatalog(t, validCatalog))
	require.NoError(t, c.Load())

	assert.Equal(t, "basic", c.DefaultPresetID())
	assert.True(t, c.Has("thermal"))

	presets := c.Presets()
	require.Len(t, presets, 2)
	assert.Equal(t, "basic", presets[0].ID)
	assert.Equal(t, "thermal", presets[1].ID)

	basic, ok := c.Preset("basic")
	require.True(t, ok)
	assert.Equal(t, "Basic", basic.Name)
	assert.Len(t, basic.Commands, 1)
	require.Len(t, basic.ScheduledCommands, 1)
	assert.Equal(t, 30, basic.ScheduledCommands[0].IntervalSeconds)

	// A preset without a name falls back to its id.
	thermal, ok := c.Preset("thermal")
	require.True(t, ok)
	assert.Equal(t, "thermal", thermal.Name)
}

func TestLoadLegacyFormat(t *testing.T) {
	c := New(writeCatalog(t, `
commands:
  - name: Uptime
    command: uptime
scheduled_commands:
  - name: Load
    command: cat /proc/loadavg
    interval_seconds: 30
auto_refresh_commands:
  - Uptime
`))
	require.NoError(t, c.Load())

	assert.Equal(t, DefaultPresetID, c.DefaultPresetID())
	basic, ok := c.Preset(DefaultPresetID)
	require.True(t, ok)
	assert.Len(t, basic.Commands, 1)
	assert.Len(t, basic.ScheduledCommands, 1)
}

func TestLoadMissingFileFails(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, c.Load())
}

func TestLoadEmptyFileFails(t *testing.T) {
	c := New(writeCatalog(t, ""))
	assert.Error(t, c.Load())
}

func TestLoadRejectsDuplicateScheduledCommandNames(t *testing.T) {
	c := New(writeCatalog(t, `
presets:
  basic:
    scheduled_commands:
      - name: Load
        command: cat /proc/loadavg
        interval_seconds: 30
      - name: Load
        command: uptime
        interval_seconds: 60
`))
	err := c.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate scheduled command name")
}

func TestLoadRejectsDuplicateCommandNames(t *testing.T) {
	c := New(writeCatalog(t, `
presets:
  basic:
    commands:
      - name: Uptime
        command: uptime
      - name: Uptime
        command: uptime -p
`))
	err := c.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate command name")
}

func TestLoadRejectsNonPositiveInterval(t *testing.T) {
	c := New(writeCatalog(t, `
presets:
  basic:
    scheduled_commands:
      - name: Load
        command: cat /proc/loadavg
        interval_seconds: 0
`))
	assert.Error(t, c.Load())
}

func TestLoadRejectsUnknownDefaultPreset(t *testing.T) {
	c := New(writeCatalog(t, `
default_preset: missing
presets:
  basic:
    commands: []
`))
	err := c.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default preset")
}

func TestLoadRejectsAutoRefreshOutsideCommands(t *testing.T) {
	c := New(writeCatalog(t, `
presets:
  basic:
    commands:
      - name: Uptime
        command: uptime
    auto_refresh_commands:
      - Memory
`))
	err := c.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auto-refresh")
}

func TestReloadKeepsOldCatalogOnError(t *testing.T) {
	path := writeCatalog(t, validCatalog)
	c := New(path)
	require.NoError(t, c.Load())

	require.NoError(t, os.WriteFile(path, []byte("presets: {not: [valid"), 0644))
	assert.Error(t, c.Reload())

	// Previous catalog stays active.
	assert.True(t, c.Has("basic"))
	assert.True(t, c.Has("thermal"))
}
