package procmetrics

import (
	"github.com/grafana/procmetrics/pkg/internal/helpers/convert"
	"github.com/grafana/procmetrics/pkg/internal/infraolly/gpu"
	"github.com/grafana/procmetrics/pkg/internal/infraolly/process"
)

// Start-time errors, returned synchronously by the StartObserving* functions
var (
	ErrProcessNotFound      = process.ErrProcessNotFound
	ErrIdentityUnavailable  = process.ErrIdentityUnavailable
	ErrCoreCountUnavailable = process.ErrCoreCountUnavailable
)

// Run-time errors. They never abort a session by themselves. ErrTickReadFailure is
// returned by Session.Wait when the configured miss policy or iteration budget ends it.
var (
	ErrTickReadFailure   = process.ErrTickReadFailure
	ErrNumericConversion = convert.ErrOutOfRange
	ErrGPUUnavailable    = gpu.ErrUnavailable
)

// ConfigError is returned when the sampler configuration is not valid
type ConfigError string

func (e ConfigError) Error() string {
	return string(e)
}
