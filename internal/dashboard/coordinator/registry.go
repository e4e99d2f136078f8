// Package coordinator tracks the universe of targets reported by the lab
// coordinator. The registry is the single source of truth for target status;
// scheduled outputs are attached from the cache at render time.
package coordinator

import (
	"sort"
	"sync"

	"dut-dashboard-service/internal/dashboard/models"
)

// Registry holds the current known targets.
type Registry struct {
	mu      sync.RWMutex
	targets map[string]models.Target
}

func NewRegistry() *Registry {
	return &Registry{targets: make(map[string]models.Target)}
}

// Get returns a copy of the named target.
func (r *Registry) Get(name string) (models.Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[name]
	return t, ok
}

// Snapshot returns copies of all known targets, sorted by name.
func (r *Registry) Snapshot() []models.Target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Target, 0, len(r.targets))
	for _, t := range r.targets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Apply merges one state update into the registry. It returns the resulting
// target and whether anything changed (new target, status or holder change).
func (r *Registry) Apply(update models.TargetStateUpdate) (models.Target, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, known := r.targets[update.Name]
	next := models.Target{
		Name:       update.Name,
		Status:     update.Status,
		AcquiredBy: update.AcquiredBy,
	}
	if known && current.Status == next.Status && current.AcquiredBy == next.AcquiredBy {
		return current, false
	}
	r.targets[update.Name] = next
	return next, true
}

// Replace swaps the whole universe of targets. It returns the targets whose
// state changed (including new ones) and the names that disappeared.
func (r *Registry) Replace(targets []models.Target) (changed []models.Target, removed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]models.Target, len(targets))
	for _, t := range targets {
		t.ScheduledOutputs = nil
		next[t.Name] = t
		current, known := r.targets[t.Name]
		if !known || current.Status != t.Status || current.AcquiredBy != t.AcquiredBy {
			changed = append(changed, t)
		}
	}
	for name := range r.targets {
		if _, ok := next[name]; !ok {
			removed = append(removed, name)
		}
	}
	r.targets = next
	return changed, removed
}
