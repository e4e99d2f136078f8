// Package scheduler owns one recurring timer per active
// (target, scheduled command) pair and the rules for when a tick may execute.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"dut-dashboard-service/internal/dashboard/cache"
	"dut-dashboard-service/internal/dashboard/events"
	"dut-dashboard-service/internal/dashboard/gateway"
	"dut-dashboard-service/internal/dashboard/models"
)

// TargetSource supplies the current universe of known targets.
type TargetSource interface {
	Snapshot() []models.Target
	Get(name string) (models.Target, bool)
}

// AssignmentSource resolves a target to its effective preset id.
type AssignmentSource interface {
	Get(targetName string) (string, error)
}

// PresetSource resolves preset ids to their definitions.
type PresetSource interface {
	Preset(id string) (models.PresetDetail, bool)
}

type pairKey struct {
	target  string
	command string
}

// Engine runs scheduled commands per (target, command) pair on fixed
// intervals. Reconcile is the only mutator of the pair→job table; ticks for
// a pair whose previous run is still executing are skipped, never queued.
type Engine struct {
	scheduler   gocron.Scheduler
	gateway     gateway.Gateway
	cache       *cache.ResultCache
	targets     TargetSource
	assignments AssignmentSource
	presets     PresetSource
	broadcaster events.Broadcaster
	execTimeout time.Duration

	// reconcileMu serializes whole reconciles, compute included, so a
	// reconcile stalled reading assignments can never apply a stale desired
	// set over a newer one. mu only guards the jobs table.
	reconcileMu sync.Mutex

	mu   sync.Mutex
	jobs map[pairKey]gocron.Job
}

func NewEngine(
	gw gateway.Gateway,
	resultCache *cache.ResultCache,
	targets TargetSource,
	assignments AssignmentSource,
	presets PresetSource,
	broadcaster events.Broadcaster,
	execTimeout time.Duration,
) (*Engine, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	if execTimeout <= 0 {
		execTimeout = 30 * time.Second
	}
	return &Engine{
		scheduler:   s,
		gateway:     gw,
		cache:       resultCache,
		targets:     targets,
		assignments: assignments,
		presets:     presets,
		broadcaster: broadcaster,
		execTimeout: execTimeout,
		jobs:        make(map[pairKey]gocron.Job),
	}, nil
}

// Start begins executing scheduled jobs and performs the initial reconcile.
func (e *Engine) Start() {
	e.scheduler.Start()
	started, stopped := e.Reconcile()
	log.Printf("Engine started: %d pair(s) scheduled (%d stopped)", started, stopped)
}

// Stop shuts the scheduler down. In-flight executions are not cancelled;
// their results are discarded if their pair is gone at completion time.
func (e *Engine) Stop() {
	if err := e.scheduler.Shutdown(); err != nil {
		log.Printf("Error shutting down gocron scheduler: %v", err)
	}
}

// Reconcile computes the desired set of (target, scheduled command) pairs
// from the current targets, assignments and presets, starts timers for new
// pairs and stops timers for pairs no longer desired. Offline targets keep
// their timers armed; their ticks are skipped until they return. Safe to call
// repeatedly and concurrently: with unchanged inputs the second call starts
// and stops nothing, and concurrent calls apply in sequence.
func (e *Engine) Reconcile() (started, stopped int) {
	e.reconcileMu.Lock()
	defer e.reconcileMu.Unlock()

	desired := e.desiredPairs()

	e.mu.Lock()
	defer e.mu.Unlock()

	for key, job := range e.jobs {
		if _, ok := desired[key]; ok {
			continue
		}
		if err := e.scheduler.RemoveJob(job.ID()); err != nil {
			log.Printf("Error removing job for %s/%s: %v", key.target, key.command, err)
		}
		delete(e.jobs, key)
		stopped++
	}

	for key, cmd := range desired {
		if _, ok := e.jobs[key]; ok {
			continue
		}
		job, err := e.scheduleJob(key, cmd)
		if err != nil {
			log.Printf("Error scheduling %q on %q every %ds: %v", cmd.Name, key.target, cmd.IntervalSeconds, err)
			continue
		}
		e.jobs[key] = job
		started++
	}
	return started, stopped
}

func (e *Engine) scheduleJob(key pairKey, cmd models.ScheduledCommand) (gocron.Job, error) {
	return e.scheduler.NewJob(
		gocron.DurationJob(time.Duration(cmd.IntervalSeconds)*time.Second),
		gocron.NewTask(e.runPair, key.target, cmd),
		gocron.WithName(fmt.Sprintf("%s/%s", key.target, cmd.Name)),
		gocron.WithTags("scheduled_pair", "target:"+key.target, "command:"+cmd.Name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
}

func (e *Engine) desiredPairs() map[pairKey]models.ScheduledCommand {
	desired := make(map[pairKey]models.ScheduledCommand)
	for _, target := range e.targets.Snapshot() {
		presetID, err := e.assignments.Get(target.Name)
		if err != nil {
			log.Printf("Error resolving preset for %q: %v", target.Name, err)
			continue
		}
		preset, ok := e.presets.Preset(presetID)
		if !ok {
			log.Printf("Target %q is assigned unknown preset %q, skipping", target.Name, presetID)
			continue
		}
		for _, cmd := range preset.ScheduledCommands {
			desired[pairKey{target: target.Name, command: cmd.Name}] = cmd
		}
	}
	return desired
}

// ActivePairCount returns the number of scheduled pair timers.
func (e *Engine) ActivePairCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.jobs)
}

// runPair is one timer tick for a (target, scheduled command) pair. Offline
// targets are skipped with the timer left armed. Executor failures and
// timeouts leave the cache untouched; the next tick is the retry.
func (e *Engine) runPair(targetName string, cmd models.ScheduledCommand) {
	target, known := e.targets.Get(targetName)
	if !known || !target.Runnable() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.execTimeout)
	defer cancel()

	result, err := e.gateway.Execute(ctx, targetName, cmd.Command)
	if err != nil {
		log.Printf("Failed to execute %q on %q: %v", cmd.Name, targetName, err)
		return
	}

	out := models.ScheduledCommandOutput{
		CommandName: cmd.Name,
		Output:      strings.TrimSpace(result.Output),
		Timestamp:   time.Now().UTC(),
		ExitCode:    result.ExitCode,
	}

	// A preset switch or target removal may have landed while the command was
	// in flight; results for pairs no longer desired are discarded.
	e.mu.Lock()
	_, stillDesired := e.jobs[pairKey{target: targetName, command: cmd.Name}]
	e.mu.Unlock()
	if !stillDesired {
		log.Printf("Discarding late result of %q on %q (pair no longer scheduled)", cmd.Name, targetName)
		return
	}

	e.cache.Put(targetName, cmd.Name, out)
	e.broadcaster.Broadcast(targetName, events.Event{
		Type: events.TypeScheduledOutput,
		Data: events.ScheduledOutputPayload{
			Target:      targetName,
			CommandName: cmd.Name,
			Output:      out,
		},
	})
}
