package process

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/prometheus/procfs"

	"github.com/grafana/procmetrics/pkg/internal/helpers/convert"
)

var timeNow = time.Now

const defaultProcFSRoot = "/proc"

// procfsEntry keeps the data that is reused between refreshes of the same process
type procfsEntry struct {
	startTime uint64
	static    staticInfo
	lastCPU   float64
	lastTime  time.Time
}

// procfsSource reads the process counters directly from the /proc filesystem
type procfsSource struct {
	log     *slog.Logger
	fs      procfs.FS
	handles *simplelru.LRU[int32, *procfsEntry]
	current map[int32]*Counters
}

func newProcFSSource(cfg *SourceConfig) (*procfsSource, error) {
	root := cfg.ProcFSRoot
	if root == "" {
		root = defaultProcFSRoot
	}
	fs, err := procfs.NewFS(root)
	if err != nil {
		return nil, fmt.Errorf("opening procfs at %s: %w", root, err)
	}
	handles, err := simplelru.NewLRU[int32, *procfsEntry](cfg.cacheSize(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating process handles cache: %w", err)
	}
	return &procfsSource{
		log:     srclog(SourceProcFS),
		fs:      fs,
		handles: handles,
		current: map[int32]*Counters{},
	}, nil
}

func (ps *procfsSource) Refresh(scope Scope) error {
	if !scope.All() {
		ps.refreshPID(scope.PID())
		return nil
	}
	procs, err := ps.fs.AllProcs()
	if err != nil {
		return fmt.Errorf("listing processes: %w", err)
	}
	ps.current = make(map[int32]*Counters, len(procs))
	for _, p := range procs {
		pid, err := convert.Int[int32](p.PID)
		if err != nil {
			continue
		}
		ps.refreshPID(pid)
	}
	for _, pid := range ps.handles.Keys() {
		if _, ok := ps.current[pid]; !ok {
			ps.handles.Remove(pid)
		}
	}
	return nil
}

func (ps *procfsSource) refreshPID(pid int32) {
	delete(ps.current, pid)
	counters, err := ps.harvest(pid)
	if err != nil {
		ps.log.Debug("can't read process counters", "pid", pid, "error", err)
		ps.handles.Remove(pid)
		return
	}
	ps.current[pid] = counters
}

func (ps *procfsSource) harvest(pid int32) (*Counters, error) {
	proc, err := ps.fs.Proc(int(pid))
	if err != nil {
		return nil, err
	}
	stat, err := proc.Stat()
	if err != nil {
		return nil, fmt.Errorf("reading stat: %w", err)
	}
	now := timeNow()
	entry, ok := ps.handles.Get(pid)
	// a different start time means that the PID has been reused by another process
	if !ok || entry.startTime != stat.Starttime {
		entry = &procfsEntry{startTime: stat.Starttime, static: ps.readStatic(proc)}
		ps.handles.Add(pid, entry)
	}

	cpuTime := stat.CPUTime()
	cpuPercent := 0.0
	if !entry.lastTime.IsZero() {
		if elapsed := now.Sub(entry.lastTime).Seconds(); elapsed > 0 {
			cpuPercent = (cpuTime - entry.lastCPU) / elapsed * 100
		}
	}
	entry.lastCPU, entry.lastTime = cpuTime, now

	rss, err := convert.Int[uint64](stat.ResidentMemory())
	if err != nil {
		return nil, fmt.Errorf("reading resident memory: %w", err)
	}
	vms, err := convert.Int[uint64](stat.VirtualMemory())
	if err != nil {
		return nil, fmt.Errorf("reading virtual memory: %w", err)
	}
	c := &Counters{
		PID:                 pid,
		ExecutableName:      entry.static.name,
		ExecutablePath:      entry.static.exe,
		CommandArgs:         entry.static.args,
		CPUPercent:          cpuPercent,
		ResidentMemoryBytes: rss,
		VirtualMemoryBytes:  vms,
	}
	if io, err := proc.IO(); err != nil {
		ps.log.Debug("can't read IO counters", "pid", pid, "error", err)
	} else {
		c.DiskReadBytes = io.ReadBytes
		c.DiskWriteBytes = io.WriteBytes
	}
	return c, nil
}

func (ps *procfsSource) readStatic(proc procfs.Proc) staticInfo {
	var si staticInfo
	var err error
	if si.name, err = proc.Comm(); err != nil {
		ps.log.Debug("can't read process name", "pid", proc.PID, "error", err)
	}
	if si.exe, err = proc.Executable(); err != nil {
		ps.log.Debug("can't read process executable path", "pid", proc.PID, "error", err)
	}
	if si.args, err = proc.CmdLine(); err != nil {
		ps.log.Debug("can't read process command line", "pid", proc.PID, "error", err)
	}
	return si
}

func (ps *procfsSource) Read(pid int32) (*Counters, bool) {
	c, ok := ps.current[pid]
	return c, ok
}

// PhysicalCoreCount counts the distinct physical id/core id pairs in /proc/cpuinfo.
// Some architectures (e.g. ARM) don't report them, so the number of listed processors is used instead.
func (ps *procfsSource) PhysicalCoreCount() (int, bool) {
	cpus, err := ps.fs.CPUInfo()
	if err != nil {
		ps.log.Debug("can't read cpuinfo", "error", err)
		return 0, false
	}
	cores := map[[2]string]struct{}{}
	for i := range cpus {
		if cpus[i].CoreID == "" {
			continue
		}
		cores[[2]string{cpus[i].PhysicalID, cpus[i].CoreID}] = struct{}{}
	}
	if len(cores) > 0 {
		return len(cores), true
	}
	return len(cpus), len(cpus) > 0
}
