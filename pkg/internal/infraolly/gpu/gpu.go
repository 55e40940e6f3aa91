// Package gpu provides the best-effort lookup of the GPU memory used by a process.
package gpu

import (
	"errors"
	"fmt"
	"log/slog"
)

func glog() *slog.Logger {
	return slog.With("component", "gpu.Sampler")
}

// ErrUnavailable is returned when there is no GPU management interface in the host
var ErrUnavailable = errors.New("GPU management interface unavailable")

// firstDevice is the only device that is inspected: processes using other GPUs are not attributed.
const firstDevice = 0

// ProcessMemory is the GPU memory used by a compute process
type ProcessMemory struct {
	PID uint32
	// UsedBytes is only meaningful when Known is true
	UsedBytes uint64
	Known     bool
}

// Interface to the GPU management library
type Interface interface {
	// ListComputeProcesses returns the compute processes running in the device with the given index
	ListComputeProcesses(device int) ([]ProcessMemory, error)
	Shutdown() error
}

// InitFunc initializes the GPU management interface, or returns ErrUnavailable
type InitFunc func() (Interface, error)

// Init is the default InitFunc for the current platform
var Init InitFunc = initNVML

// Sampler looks up the GPU memory of processes in the first GPU device.
// A nil Interface means that no GPU is available.
type Sampler struct {
	log   *slog.Logger
	iface Interface
}

// NewSampler initializes the GPU interface once. If it is unavailable, the returned Sampler
// still works but never finds any data, and the error wraps ErrUnavailable.
func NewSampler(init InitFunc) (*Sampler, error) {
	s := &Sampler{log: glog()}
	iface, err := init()
	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			err = fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return s, err
	}
	s.iface = iface
	return s, nil
}

// Disabled returns a Sampler that never looks up any GPU
func Disabled() *Sampler {
	return &Sampler{log: glog()}
}

// Available returns whether the GPU management interface was successfully initialized
func (s *Sampler) Available() bool {
	return s.iface != nil
}

// Sample returns the GPU memory used by the given process, and false if there is no data for it:
// no GPU interface, a failed query, the process is not running in the first device, or the driver
// does not know the memory usage.
func (s *Sampler) Sample(pid uint32) (uint64, bool) {
	if s.iface == nil {
		return 0, false
	}
	procs, err := s.iface.ListComputeProcesses(firstDevice)
	if err != nil {
		s.log.Debug("can't list GPU compute processes", "device", firstDevice, "error", err)
		return 0, false
	}
	for i := range procs {
		if procs[i].PID == pid {
			if !procs[i].Known {
				return 0, false
			}
			return procs[i].UsedBytes, true
		}
	}
	return 0, false
}

// Close releases the GPU management interface, if any
func (s *Sampler) Close() error {
	if s.iface == nil {
		return nil
	}
	err := s.iface.Shutdown()
	s.iface = nil
	return err
}
