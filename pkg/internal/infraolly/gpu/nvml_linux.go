//go:build linux && cgo

package gpu

import (
	"fmt"
	"math"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// nvmlInterface queries the NVIDIA Management Library. The library is loaded dynamically,
// so hosts without the NVIDIA driver just report ErrUnavailable.
type nvmlInterface struct{}

func initNVML() (Interface, error) {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, nvml.ErrorString(ret))
	}
	return nvmlInterface{}, nil
}

func (nvmlInterface) ListComputeProcesses(device int) ([]ProcessMemory, error) {
	dev, ret := nvml.DeviceGetHandleByIndex(device)
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("getting device %d: %s", device, nvml.ErrorString(ret))
	}
	infos, ret := dev.GetComputeRunningProcesses()
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("listing compute processes of device %d: %s", device, nvml.ErrorString(ret))
	}
	procs := make([]ProcessMemory, 0, len(infos))
	for _, info := range infos {
		procs = append(procs, ProcessMemory{
			PID:       info.Pid,
			UsedBytes: info.UsedGpuMemory,
			// NVML_VALUE_NOT_AVAILABLE, e.g. in Windows WDDM mode or without enough privileges
			Known: info.UsedGpuMemory != math.MaxUint64,
		})
	}
	return procs, nil
}

func (nvmlInterface) Shutdown() error {
	if ret := nvml.Shutdown(); ret != nvml.SUCCESS {
		return fmt.Errorf("shutting down NVML: %s", nvml.ErrorString(ret))
	}
	return nil
}
