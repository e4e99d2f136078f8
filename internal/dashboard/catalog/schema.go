package catalog

// JSON schemas for the two supported commands.yaml layouts. Structural rules
// live here; uniqueness and cross-reference rules are enforced in
// validatePreset.

const commandSchema = `{
  "type": "object",
  "required": ["name", "command"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "command": {"type": "string", "minLength": 1},
    "description": {"type": "string"}
  }
}`

const scheduledCommandSchema = `{
  "type": "object",
  "required": ["name", "command", "interval_seconds"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "command": {"type": "string", "minLength": 1},
    "interval_seconds": {"type": "integer", "minimum": 1},
    "description": {"type": "string"}
  }
}`

const presetsSchema = `{
  "type": "object",
  "required": ["presets"],
  "properties": {
    "default_preset": {"type": "string", "minLength": 1},
    "presets": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "description": {"type": "string"},
          "commands": {"type": "array", "items": ` + commandSchema + `},
          "scheduled_commands": {"type": "array", "items": ` + scheduledCommandSchema + `},
          "auto_refresh_commands": {"type": "array", "items": {"type": "string"}}
        }
      }
    }
  }
}`

const legacySchema = `{
  "type": "object",
  "properties": {
    "commands": {"type": "array", "items": ` + commandSchema + `},
    "scheduled_commands": {"type": "array", "items": ` + scheduledCommandSchema + `},
    "auto_refresh_commands": {"type": "array", "items": {"type": "string"}}
  }
}`
