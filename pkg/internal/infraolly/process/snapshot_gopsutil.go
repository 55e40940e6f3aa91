package process

import (
	"fmt"
	"log/slog"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// gopsutilEntry keeps the gopsutil handle between refreshes, as it stores the
// previous CPU times required to calculate the CPU percent.
type gopsutilEntry struct {
	proc   *process.Process
	static staticInfo
}

type staticInfo struct {
	name string
	exe  string
	args []string
}

// gopsutilSource reads the process counters through the gopsutil library. It honors the
// HOST_PROC environment variable to locate the /proc filesystem.
type gopsutilSource struct {
	log     *slog.Logger
	handles *simplelru.LRU[int32, *gopsutilEntry]
	current map[int32]*Counters

	// overridable for testing
	listPids   func() ([]int32, error)
	coreCounts func(logical bool) (int, error)
}

func newGopsutilSource(cfg *SourceConfig) (*gopsutilSource, error) {
	handles, err := simplelru.NewLRU[int32, *gopsutilEntry](cfg.cacheSize(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating process handles cache: %w", err)
	}
	return &gopsutilSource{
		log:        srclog(SourceGopsutil),
		handles:    handles,
		current:    map[int32]*Counters{},
		listPids:   process.Pids,
		coreCounts: cpu.Counts,
	}, nil
}

func (gs *gopsutilSource) Refresh(scope Scope) error {
	if !scope.All() {
		gs.refreshPID(scope.PID())
		return nil
	}
	pids, err := gs.listPids()
	if err != nil {
		return fmt.Errorf("listing processes: %w", err)
	}
	gs.current = make(map[int32]*Counters, len(pids))
	for _, pid := range pids {
		gs.refreshPID(pid)
	}
	// forget the handles of the processes that don't exist anymore
	for _, pid := range gs.handles.Keys() {
		if _, ok := gs.current[pid]; !ok {
			gs.handles.Remove(pid)
		}
	}
	return nil
}

func (gs *gopsutilSource) refreshPID(pid int32) {
	delete(gs.current, pid)
	counters, err := gs.harvest(pid)
	if err != nil {
		gs.log.Debug("can't read process counters", "pid", pid, "error", err)
		gs.handles.Remove(pid)
		return
	}
	gs.current[pid] = counters
}

func (gs *gopsutilSource) harvest(pid int32) (*Counters, error) {
	entry, err := gs.entryFor(pid)
	if err != nil {
		return nil, err
	}
	proc := entry.proc

	cpuPercent, err := proc.Percent(0)
	if err != nil {
		return nil, fmt.Errorf("reading CPU times: %w", err)
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return nil, fmt.Errorf("reading memory info: %w", err)
	}
	c := &Counters{
		PID:                 pid,
		ExecutableName:      entry.static.name,
		ExecutablePath:      entry.static.exe,
		CommandArgs:         entry.static.args,
		CPUPercent:          cpuPercent,
		ResidentMemoryBytes: mem.RSS,
		VirtualMemoryBytes:  mem.VMS,
	}
	// IO counters can't be read for processes owned by other users unless we are privileged
	if io, err := proc.IOCounters(); err != nil {
		gs.log.Debug("can't read IO counters", "pid", pid, "error", err)
	} else {
		c.DiskReadBytes = io.ReadBytes
		c.DiskWriteBytes = io.WriteBytes
	}
	return c, nil
}

// entryFor reuses the cached handle of a process, unless it is not running anymore
// (e.g. its PID has been reused by another process)
func (gs *gopsutilSource) entryFor(pid int32) (*gopsutilEntry, error) {
	if entry, ok := gs.handles.Get(pid); ok {
		if running, err := entry.proc.IsRunning(); err == nil && running {
			return entry, nil
		}
		gs.handles.Remove(pid)
	}
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil, err
	}
	entry := &gopsutilEntry{proc: proc}
	// missing static data is accepted: it is reported as empty
	if entry.static.name, err = proc.Name(); err != nil {
		gs.log.Debug("can't read process name", "pid", pid, "error", err)
	}
	if entry.static.exe, err = proc.Exe(); err != nil {
		gs.log.Debug("can't read process executable path", "pid", pid, "error", err)
	}
	if entry.static.args, err = proc.CmdlineSlice(); err != nil {
		gs.log.Debug("can't read process command line", "pid", pid, "error", err)
	}
	gs.handles.Add(pid, entry)
	return entry, nil
}

func (gs *gopsutilSource) Read(pid int32) (*Counters, bool) {
	c, ok := gs.current[pid]
	return c, ok
}

func (gs *gopsutilSource) PhysicalCoreCount() (int, bool) {
	n, err := gs.coreCounts(false)
	if err != nil || n <= 0 {
		gs.log.Debug("can't get physical core count", "count", n, "error", err)
		return 0, false
	}
	return n, true
}
