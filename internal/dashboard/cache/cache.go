// Package cache holds the latest scheduled command output per
// (target, command) pair. Staleness is a read-time policy, not background
// eviction: entries past the window, with a non-zero exit code, or with a
// broken timestamp are reported as unusable so the UI never renders
// confidently-wrong data as current.
package cache

import (
	"sync"
	"time"

	"dut-dashboard-service/internal/dashboard/models"
)

// DefaultStalenessWindow bounds how old a successful result may be and still
// be shown as current.
const DefaultStalenessWindow = 60 * time.Minute

type key struct {
	target  string
	command string
}

// ResultCache stores the latest output per (target, command). Writes replace
// whole entries; readers get value copies.
type ResultCache struct {
	window time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	entries map[key]models.ScheduledCommandOutput
}

// New creates a cache with the given staleness window (0 means the default).
func New(window time.Duration) *ResultCache {
	if window <= 0 {
		window = DefaultStalenessWindow
	}
	return &ResultCache{
		window:  window,
		now:     time.Now,
		entries: make(map[key]models.ScheduledCommandOutput),
	}
}

// Put unconditionally overwrites the entry for (target, commandName).
func (c *ResultCache) Put(target, commandName string, out models.ScheduledCommandOutput) {
	c.mu.Lock()
	c.entries[key{target, commandName}] = out
	c.mu.Unlock()
}

// Get returns the cached output for (target, commandName). ok is false when
// no usable entry exists: never written, failed last run, or past the
// staleness window.
func (c *ResultCache) Get(target, commandName string) (models.ScheduledCommandOutput, bool) {
	c.mu.RLock()
	out, ok := c.entries[key{target, commandName}]
	c.mu.RUnlock()
	if !ok || !c.usable(out) {
		return models.ScheduledCommandOutput{}, false
	}
	return out, true
}

// Peek returns the raw entry regardless of staleness, for operators who want
// to inspect the last error text.
func (c *ResultCache) Peek(target, commandName string) (models.ScheduledCommandOutput, bool) {
	c.mu.RLock()
	out, ok := c.entries[key{target, commandName}]
	c.mu.RUnlock()
	return out, ok
}

// OutputsFor returns all usable entries for a target, keyed by command name.
func (c *ResultCache) OutputsFor(target string) map[string]models.ScheduledCommandOutput {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]models.ScheduledCommandOutput)
	for k, v := range c.entries {
		if k.target == target && c.usable(v) {
			out[k.command] = v
		}
	}
	return out
}

// Invalidate removes the entry for (target, commandName).
func (c *ResultCache) Invalidate(target, commandName string) {
	c.mu.Lock()
	delete(c.entries, key{target, commandName})
	c.mu.Unlock()
}

// InvalidateAllFor removes every entry for a target.
func (c *ResultCache) InvalidateAllFor(target string) {
	c.mu.Lock()
	for k := range c.entries {
		if k.target == target {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

func (c *ResultCache) usable(out models.ScheduledCommandOutput) bool {
	if out.ExitCode != 0 {
		return false
	}
	if out.Timestamp.IsZero() {
		return false
	}
	return c.now().Sub(out.Timestamp) <= c.window
}
