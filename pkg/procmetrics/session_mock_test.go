package procmetrics

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"go.opentelemetry.io/otel/metric"

	"github.com/grafana/procmetrics/pkg/imetrics"
	"github.com/grafana/procmetrics/pkg/internal/infraolly/gpu"
	"github.com/grafana/procmetrics/pkg/internal/infraolly/process"
)

// sourceMock is a thread-safe, in-memory process.Source
type sourceMock struct {
	mt        sync.Mutex
	procs     map[int32]process.Counters
	current   map[int32]*process.Counters
	cores     int
	refreshes int
}

func newSourceMock(procs ...process.Counters) *sourceMock {
	sm := &sourceMock{procs: map[int32]process.Counters{}, current: map[int32]*process.Counters{}, cores: 4}
	for _, p := range procs {
		sm.procs[p.PID] = p
	}
	return sm
}

func (sm *sourceMock) Refresh(scope process.Scope) error {
	sm.mt.Lock()
	defer sm.mt.Unlock()
	sm.refreshes++
	if scope.All() {
		sm.current = map[int32]*process.Counters{}
		for pid, c := range sm.procs {
			c := c
			sm.current[pid] = &c
		}
		return nil
	}
	delete(sm.current, scope.PID())
	if c, ok := sm.procs[scope.PID()]; ok {
		sm.current[scope.PID()] = &c
	}
	return nil
}

func (sm *sourceMock) Read(pid int32) (*process.Counters, bool) {
	sm.mt.Lock()
	defer sm.mt.Unlock()
	c, ok := sm.current[pid]
	return c, ok
}

func (sm *sourceMock) PhysicalCoreCount() (int, bool) {
	sm.mt.Lock()
	defer sm.mt.Unlock()
	return sm.cores, sm.cores > 0
}

// update the counters that will be read in the next refresh
func (sm *sourceMock) update(pid int32, fn func(c *process.Counters)) {
	sm.mt.Lock()
	defer sm.mt.Unlock()
	c := sm.procs[pid]
	fn(&c)
	sm.procs[pid] = c
}

func (sm *sourceMock) vanish(pid int32) {
	sm.mt.Lock()
	defer sm.mt.Unlock()
	delete(sm.procs, pid)
}

func (sm *sourceMock) refreshCount() int {
	sm.mt.Lock()
	defer sm.mt.Unlock()
	return sm.refreshes
}

// overrideSource makes the sessions use the passed source instead of the OS one
func overrideSource(t *testing.T, src process.Source) {
	old := newSource
	newSource = func(*process.SourceConfig) (process.Source, error) { return src, nil }
	t.Cleanup(func() { newSource = old })
}

type gpuMock struct {
	procs     []gpu.ProcessMemory
	err       error
	shutdowns atomic.Int32
}

func (g *gpuMock) ListComputeProcesses(_ int) ([]gpu.ProcessMemory, error) {
	return g.procs, g.err
}

func (g *gpuMock) Shutdown() error {
	g.shutdowns.Add(1)
	return nil
}

// unregistrableMeter rejects any callback registration
type unregistrableMeter struct {
	metric.Meter
}

func (unregistrableMeter) RegisterCallback(metric.Callback, ...metric.Observable) (metric.Registration, error) {
	return nil, errors.New("callbacks not accepted")
}

func overrideGPU(t *testing.T, iface gpu.Interface, err error) {
	old := initGPU
	initGPU = func() (gpu.Interface, error) { return iface, err }
	t.Cleanup(func() { initGPU = old })
}

// reporterMock counts the internal metrics events
type reporterMock struct {
	imetrics.NoopReporter
	started, stopped atomic.Int32
	sampled, skipped atomic.Int32
	gpuUnavailable   atomic.Int32
	mt               sync.Mutex
	dropped          []string
}

func (r *reporterMock) SessionStarted(_ string) { r.started.Add(1) }
func (r *reporterMock) SessionStopped(_ string) { r.stopped.Add(1) }
func (r *reporterMock) TickSampled()            { r.sampled.Add(1) }
func (r *reporterMock) TickSkipped()            { r.skipped.Add(1) }
func (r *reporterMock) GPUUnavailable()         { r.gpuUnavailable.Add(1) }

func (r *reporterMock) ObservationDropped(instrument string) {
	r.mt.Lock()
	defer r.mt.Unlock()
	r.dropped = append(r.dropped, instrument)
}

func (r *reporterMock) droppedInstruments() []string {
	r.mt.Lock()
	defer r.mt.Unlock()
	return append([]string(nil), r.dropped...)
}
