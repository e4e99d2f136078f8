package api

import (
	"dut-dashboard-service/internal/dashboard/cache"
	"dut-dashboard-service/internal/dashboard/coordinator"
	"dut-dashboard-service/internal/dashboard/models"
)

// targetsWithOutputs renders a point-in-time snapshot of all targets with
// their usable scheduled outputs attached.
func targetsWithOutputs(registry *coordinator.Registry, resultCache *cache.ResultCache) []models.Target {
	targets := registry.Snapshot()
	for i := range targets {
		targets[i].ScheduledOutputs = resultCache.OutputsFor(targets[i].Name)
	}
	return targets
}
