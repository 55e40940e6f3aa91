package process

import (
	"fmt"
	"os"

	"github.com/grafana/procmetrics/pkg/internal/helpers/convert"
)

// overridable for testing
var currentPID = os.Getpid

// Handle to a process whose existence has been verified by the resolver.
// It becomes logically invalid once the OS process exits.
type Handle struct {
	pid      int32
	resolved bool
}

func (h Handle) PID() int32 { return h.pid }

func (h Handle) Resolved() bool { return h.resolved }

// ResolveCurrent returns the handle of the process that is running this code.
func ResolveCurrent(src Source) (Handle, error) {
	pid, err := convert.Int[uint32](currentPID())
	if err != nil || pid == 0 {
		return Handle{}, fmt.Errorf("%w: can't get the current process ID", ErrProcessNotFound)
	}
	return Resolve(src, pid)
}

// Resolve verifies that the given PID exists in a full snapshot of the system processes.
// Resolution is performed once, without retries.
func Resolve(src Source, pid uint32) (Handle, error) {
	p, err := convert.Int[int32](pid)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: invalid pid %d", ErrProcessNotFound, pid)
	}
	if err := src.Refresh(AllProcesses()); err != nil {
		return Handle{}, fmt.Errorf("%w: pid %d: %w", ErrProcessNotFound, pid, err)
	}
	if _, ok := src.Read(p); !ok {
		return Handle{}, fmt.Errorf("%w: pid %d", ErrProcessNotFound, pid)
	}
	return Handle{pid: p, resolved: true}, nil
}
