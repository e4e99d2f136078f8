package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dut-dashboard-service/internal/dashboard/cache"
	"dut-dashboard-service/internal/dashboard/coordinator"
	"dut-dashboard-service/internal/dashboard/events"
	"dut-dashboard-service/internal/dashboard/gateway"
	"dut-dashboard-service/internal/dashboard/models"
)

type staticAssignments struct {
	mu  sync.Mutex
	m   map[string]string
	def string
}

func (a *staticAssignments) Get(name string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if preset, ok := a.m[name]; ok {
		return preset, nil
	}
	return a.def, nil
}

func (a *staticAssignments) set(name, preset string) {
	a.mu.Lock()
	a.m[name] = preset
	a.mu.Unlock()
}

type staticPresets map[string]models.PresetDetail

func (p staticPresets) Preset(id string) (models.PresetDetail, bool) {
	detail, ok := p[id]
	return detail, ok
}

type fakeGateway struct {
	mu          sync.Mutex
	calls       []string
	inflight    int32
	maxInflight int32
	delay       time.Duration
	result      gateway.ExecResult
	err         error
}

func (g *fakeGateway) Execute(ctx context.Context, target, command string) (gateway.ExecResult, error) {
	cur := atomic.AddInt32(&g.inflight, 1)
	for {
		max := atomic.LoadInt32(&g.maxInflight)
		if cur <= max || atomic.CompareAndSwapInt32(&g.maxInflight, max, cur) {
			break
		}
	}
	defer atomic.AddInt32(&g.inflight, -1)

	g.mu.Lock()
	g.calls = append(g.calls, target+"/"+command)
	g.mu.Unlock()

	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	return g.result, g.err
}

func (g *fakeGateway) Places(ctx context.Context) ([]models.Target, error) {
	return nil, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBroadcaster) Broadcast(targetName string, ev events.Event) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

var testPresets = staticPresets{
	"thermal": {
		ID: "thermal",
		ScheduledCommands: []models.ScheduledCommand{
			{Name: "Load", Command: "cat /proc/loadavg", IntervalSeconds: 30},
			{Name: "Temp", Command: "cat /sys/class/thermal/thermal_zone0/temp", IntervalSeconds: 60},
		},
	},
	"basic": {
		ID: "basic",
		ScheduledCommands: []models.ScheduledCommand{
			{Name: "Load", Command: "cat /proc/loadavg", IntervalSeconds: 30},
		},
	},
	"empty": {ID: "empty"},
}

func newTestEngine(t *testing.T, gw gateway.Gateway, registry *coordinator.Registry, assignments *staticAssignments) (*Engine, *cache.ResultCache, *recordingBroadcaster) {
	t.Helper()
	resultCache := cache.New(0)
	broadcaster := &recordingBroadcaster{}
	engine, err := NewEngine(gw, resultCache, registry, assignments, testPresets, broadcaster, time.Second)
	require.NoError(t, err)
	t.Cleanup(engine.Stop)
	return engine, resultCache, broadcaster
}

func availableTarget(name string) models.TargetStateUpdate {
	return models.TargetStateUpdate{Name: name, Status: models.StatusAvailable}
}

func TestReconcileIdempotent(t *testing.T) {
	registry := coordinator.NewRegistry()
	registry.Apply(availableTarget("dut-1"))
	assignments := &staticAssignments{m: map[string]string{"dut-1": "thermal"}, def: "basic"}
	engine, _, _ := newTestEngine(t, &fakeGateway{}, registry, assignments)

	started, stopped := engine.Reconcile()
	assert.Equal(t, 2, started)
	assert.Equal(t, 0, stopped)

	started, stopped = engine.Reconcile()
	assert.Equal(t, 0, started, "unchanged inputs must start nothing")
	assert.Equal(t, 0, stopped, "unchanged inputs must stop nothing")
	assert.Equal(t, 2, engine.ActivePairCount())
}

func TestReconcileStopsPairsAfterPresetSwitch(t *testing.T) {
	registry := coordinator.NewRegistry()
	registry.Apply(availableTarget("dut-1"))
	assignments := &staticAssignments{m: map[string]string{"dut-1": "thermal"}, def: "basic"}
	gw := &fakeGateway{result: gateway.ExecResult{Output: "42000", ExitCode: 0}}
	engine, resultCache, _ := newTestEngine(t, gw, registry, assignments)

	engine.Reconcile()
	assert.Equal(t, 2, engine.ActivePairCount())

	// Switch to a preset without "Temp"; the handler layer invalidates the
	// dropped command's cache entry, the engine drops its timer.
	assignments.set("dut-1", "basic")
	resultCache.Invalidate("dut-1", "Temp")
	started, stopped := engine.Reconcile()
	assert.Equal(t, 0, started)
	assert.Equal(t, 1, stopped)
	assert.Equal(t, 1, engine.ActivePairCount())

	_, ok := resultCache.Get("dut-1", "Temp")
	assert.False(t, ok)
}

// stallingAssignments parks the first Get after resolving it, modelling a
// reconcile stuck on a slow assignment read.
type stallingAssignments struct {
	inner     *staticAssignments
	stallOnce sync.Once
	entered   chan struct{}
	release   chan struct{}
}

func (a *stallingAssignments) Get(name string) (string, error) {
	preset, err := a.inner.Get(name)
	a.stallOnce.Do(func() {
		close(a.entered)
		<-a.release
	})
	return preset, err
}

func TestConcurrentReconcileDoesNotResurrectRemovedPairs(t *testing.T) {
	registry := coordinator.NewRegistry()
	registry.Apply(availableTarget("dut-1"))
	assignments := &staticAssignments{m: map[string]string{"dut-1": "thermal"}, def: "basic"}
	stalling := &stallingAssignments{
		inner:   assignments,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}

	resultCache := cache.New(0)
	engine, err := NewEngine(&fakeGateway{}, resultCache, registry, stalling, testPresets, &recordingBroadcaster{}, time.Second)
	require.NoError(t, err)
	t.Cleanup(engine.Stop)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		engine.Reconcile()
	}()
	<-stalling.entered

	// The assignment changes while the first reconcile is stuck mid-read. Its
	// stale desired set must not land on top of the newer one.
	assignments.set("dut-1", "basic")
	go func() {
		defer wg.Done()
		engine.Reconcile()
	}()
	close(stalling.release)
	wg.Wait()

	assert.Equal(t, 1, engine.ActivePairCount(),
		"the pair removed by the newer assignment must stay removed")
}

func TestLateResultForRemovedPairIsDiscarded(t *testing.T) {
	registry := coordinator.NewRegistry()
	registry.Apply(availableTarget("dut-1"))
	assignments := &staticAssignments{m: map[string]string{"dut-1": "thermal"}, def: "basic"}
	gw := &fakeGateway{result: gateway.ExecResult{Output: "42000", ExitCode: 0}}
	engine, resultCache, broadcaster := newTestEngine(t, gw, registry, assignments)

	engine.Reconcile()
	assignments.set("dut-1", "basic")
	engine.Reconcile()

	// A run started under the old preset lands after the switch.
	engine.runPair("dut-1", models.ScheduledCommand{Name: "Temp", Command: "x", IntervalSeconds: 60})

	_, ok := resultCache.Get("dut-1", "Temp")
	assert.False(t, ok, "late result for a removed pair must be discarded")
	assert.Zero(t, broadcaster.count())
}

func TestReconcileStopsPairsForRemovedTarget(t *testing.T) {
	registry := coordinator.NewRegistry()
	registry.Apply(availableTarget("dut-1"))
	assignments := &staticAssignments{m: map[string]string{}, def: "basic"}
	engine, _, _ := newTestEngine(t, &fakeGateway{}, registry, assignments)

	engine.Reconcile()
	assert.Equal(t, 1, engine.ActivePairCount())

	registry.Replace(nil)
	_, stopped := engine.Reconcile()
	assert.Equal(t, 1, stopped)
	assert.Zero(t, engine.ActivePairCount())
}

func TestReconcileSkipsUnknownPreset(t *testing.T) {
	registry := coordinator.NewRegistry()
	registry.Apply(availableTarget("dut-1"))
	assignments := &staticAssignments{m: map[string]string{"dut-1": "ghost"}, def: "basic"}
	engine, _, _ := newTestEngine(t, &fakeGateway{}, registry, assignments)

	started, _ := engine.Reconcile()
	assert.Zero(t, started)
}

func TestOfflineTargetTickSkippedAndResumes(t *testing.T) {
	registry := coordinator.NewRegistry()
	registry.Apply(models.TargetStateUpdate{Name: "dut-1", Status: models.StatusOffline})
	assignments := &staticAssignments{m: map[string]string{}, def: "basic"}
	gw := &fakeGateway{result: gateway.ExecResult{Output: "0.15 0.10 0.05", ExitCode: 0}}
	engine, resultCache, broadcaster := newTestEngine(t, gw, registry, assignments)

	// Offline targets keep their timer armed so the schedule resumes by
	// itself once the target returns.
	started, _ := engine.Reconcile()
	assert.Equal(t, 1, started)

	load := models.ScheduledCommand{Name: "Load", Command: "cat /proc/loadavg", IntervalSeconds: 30}
	engine.runPair("dut-1", load)
	assert.Zero(t, gw.callCount(), "offline tick must not execute")
	assert.Zero(t, broadcaster.count())

	registry.Apply(availableTarget("dut-1"))
	engine.runPair("dut-1", load)
	assert.Equal(t, 1, gw.callCount())

	got, ok := resultCache.Get("dut-1", "Load")
	require.True(t, ok)
	assert.Equal(t, "0.15 0.10 0.05", got.Output)
	require.Equal(t, 1, broadcaster.count())
	assert.Equal(t, events.TypeScheduledOutput, broadcaster.events[0].Type)
}

func TestExecutorErrorLeavesCacheUntouched(t *testing.T) {
	registry := coordinator.NewRegistry()
	registry.Apply(availableTarget("dut-1"))
	assignments := &staticAssignments{m: map[string]string{}, def: "basic"}
	gw := &fakeGateway{err: gateway.ErrTimeout}
	engine, resultCache, broadcaster := newTestEngine(t, gw, registry, assignments)
	engine.Reconcile()

	previous := models.ScheduledCommandOutput{
		CommandName: "Load",
		Output:      "0.50 0.40 0.30",
		Timestamp:   time.Now(),
		ExitCode:    0,
	}
	resultCache.Put("dut-1", "Load", previous)

	engine.runPair("dut-1", models.ScheduledCommand{Name: "Load", Command: "cat /proc/loadavg", IntervalSeconds: 30})

	got, ok := resultCache.Get("dut-1", "Load")
	require.True(t, ok, "a timed-out run must not clobber the previous value")
	assert.Equal(t, previous.Output, got.Output)
	assert.Zero(t, broadcaster.count(), "no event for a failed execution")
}

func TestNonZeroExitIsCachedButUnusable(t *testing.T) {
	registry := coordinator.NewRegistry()
	registry.Apply(availableTarget("dut-1"))
	assignments := &staticAssignments{m: map[string]string{}, def: "basic"}
	gw := &fakeGateway{result: gateway.ExecResult{Output: "cat: no such file", ExitCode: 1}}
	engine, resultCache, broadcaster := newTestEngine(t, gw, registry, assignments)
	engine.Reconcile()

	engine.runPair("dut-1", models.ScheduledCommand{Name: "Load", Command: "cat /proc/loadavg", IntervalSeconds: 30})

	_, ok := resultCache.Get("dut-1", "Load")
	assert.False(t, ok, "failed run must not be served as current")

	raw, ok := resultCache.Peek("dut-1", "Load")
	require.True(t, ok, "the error text stays inspectable")
	assert.Equal(t, 1, raw.ExitCode)
	assert.Equal(t, 1, broadcaster.count(), "subscribers still learn about the failure")
}

func TestNoOverlappingRunsPerPair(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}

	registry := coordinator.NewRegistry()
	registry.Apply(availableTarget("dut-1"))
	assignments := &staticAssignments{m: map[string]string{"dut-1": "slow"}, def: "slow"}
	gw := &fakeGateway{
		delay:  1500 * time.Millisecond,
		result: gateway.ExecResult{Output: "ok", ExitCode: 0},
	}

	resultCache := cache.New(0)
	broadcaster := &recordingBroadcaster{}
	presets := staticPresets{
		"slow": {
			ID: "slow",
			ScheduledCommands: []models.ScheduledCommand{
				{Name: "Slow", Command: "sleep-ish", IntervalSeconds: 1},
			},
		},
	}
	engine, err := NewEngine(gw, resultCache, registry, assignments, presets, broadcaster, 5*time.Second)
	require.NoError(t, err)

	engine.Start()
	time.Sleep(3200 * time.Millisecond)
	engine.Stop()

	assert.Equal(t, int32(1), atomic.LoadInt32(&gw.maxInflight),
		"ticks firing during a run must be skipped, not run concurrently")
	assert.GreaterOrEqual(t, gw.callCount(), 2, "the schedule must keep firing")
}
