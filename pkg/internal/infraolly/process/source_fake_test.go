package process

import "errors"

// fakeSource is an in-memory Source for testing
type fakeSource struct {
	procs      map[int32]*Counters
	current    map[int32]*Counters
	refreshErr error
	cores      int
	refreshes  []Scope
}

func newFakeSource(procs ...*Counters) *fakeSource {
	fs := &fakeSource{procs: map[int32]*Counters{}, current: map[int32]*Counters{}, cores: 4}
	for _, p := range procs {
		fs.procs[p.PID] = p
	}
	return fs
}

func (f *fakeSource) Refresh(scope Scope) error {
	f.refreshes = append(f.refreshes, scope)
	if f.refreshErr != nil {
		return f.refreshErr
	}
	if scope.All() {
		f.current = map[int32]*Counters{}
		for pid, c := range f.procs {
			f.current[pid] = c
		}
		return nil
	}
	delete(f.current, scope.PID())
	if c, ok := f.procs[scope.PID()]; ok {
		f.current[scope.PID()] = c
	}
	return nil
}

func (f *fakeSource) Read(pid int32) (*Counters, bool) {
	c, ok := f.current[pid]
	return c, ok
}

func (f *fakeSource) PhysicalCoreCount() (int, bool) {
	return f.cores, f.cores > 0
}

var errFakeRefresh = errors.New("can't list processes")
