// Package process provides the OS-level view of the observed processes. It is divided in three main
// components:
//   - Source: refreshes and reads the counters of the processes (gopsutil or procfs backends)
//   - Resolver: validates that a process exists before a session observes it
//   - Identity: the static attributes that decorate every metric of an observed process
package process

import (
	"fmt"
	"log/slog"
)

func srclog(kind SourceKind) *slog.Logger {
	return slog.With("component", "process.Source", "source", kind)
}

type SourceKind string

const (
	SourceGopsutil SourceKind = "gopsutil"
	SourceProcFS   SourceKind = "procfs"
)

const defaultHandleCacheSize = 1024

type SourceConfig struct {
	// Kind of source used to read process counters. Accepted values: gopsutil (default), procfs.
	Kind SourceKind `yaml:"source" env:"PROCMETRICS_SOURCE"`
	// ProcFSRoot allows overriding the /proc filesystem location. We use the same HOST_PROC variable
	// that is used by the gopsutil library, so both sources read from the same place.
	ProcFSRoot string `yaml:"procfs_root" env:"HOST_PROC"`
	// HandleCacheSize is the maximum number of per-process handles kept between refreshes.
	HandleCacheSize int `yaml:"handle_cache_size" env:"PROCMETRICS_HANDLE_CACHE_SIZE"`
}

func (c *SourceConfig) Validate() error {
	switch c.Kind {
	case "", SourceGopsutil, SourceProcFS:
	default:
		return fmt.Errorf("invalid source %q. Accepted values are: %s, %s", c.Kind, SourceGopsutil, SourceProcFS)
	}
	if c.HandleCacheSize < 0 {
		return fmt.Errorf("handle_cache_size can't be negative: %d", c.HandleCacheSize)
	}
	return nil
}

func (c *SourceConfig) cacheSize() int {
	if c.HandleCacheSize == 0 {
		return defaultHandleCacheSize
	}
	return c.HandleCacheSize
}

// Scope of a Source refresh: either all the processes in the system or a single PID.
type Scope struct {
	all bool
	pid int32
}

func AllProcesses() Scope {
	return Scope{all: true}
}

func OnlyPID(pid int32) Scope {
	return Scope{pid: pid}
}

func (s Scope) All() bool { return s.all }

func (s Scope) PID() int32 { return s.pid }

func (s Scope) String() string {
	if s.all {
		return "all"
	}
	return fmt.Sprintf("pid:%d", s.pid)
}

// Counters is a point-in-time view of a process, as left by the last Source refresh.
// Instances must not be retained between ticks.
type Counters struct {
	PID int32

	// static data, read once per tracked process
	ExecutableName string
	ExecutablePath string
	CommandArgs    []string

	// CPUPercent is the CPU usage since the previous refresh, summed across all the cores
	// (0 to 100 * number of cores)
	CPUPercent          float64
	ResidentMemoryBytes uint64
	VirtualMemoryBytes  uint64
	// disk counters are cumulative since the process start
	DiskReadBytes  uint64
	DiskWriteBytes uint64
}

// Source is the OS process snapshot facility. It is not safe for concurrent use: each
// observation session must own its own Source instance.
type Source interface {
	// Refresh re-reads the counters for the given scope. A process that vanished is not
	// an error: it just won't be returned by Read.
	Refresh(scope Scope) error
	// Read returns the counters of the given process, as left by the last Refresh.
	Read(pid int32) (*Counters, bool)
	// PhysicalCoreCount returns the number of physical CPU cores of the host.
	PhysicalCoreCount() (int, bool)
}

// NewSource instantiates the Source of the configured kind.
func NewSource(cfg *SourceConfig) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var src Source
	var err error
	switch cfg.Kind {
	case SourceProcFS:
		src, err = newProcFSSource(cfg)
	default:
		src, err = newGopsutilSource(cfg)
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}
