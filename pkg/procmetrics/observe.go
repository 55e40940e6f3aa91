// Package procmetrics periodically samples the resource consumption of a process (CPU, memory,
// disk IO and GPU memory) and records it through the OpenTelemetry metrics API, tagged with
// the identity of the process.
//
// A Session can run in two modes:
//   - Push: the session runs its own loop that samples the process at a fixed interval and
//     records the values into synchronous gauges.
//   - Pull: the session registers a callback that samples the process each time the metrics
//     reader collects the observable gauges.
package procmetrics

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/grafana/procmetrics/pkg/internal/infraolly/process"
)

// StartObservingCurrentProcess starts a session that observes the process running this code.
// A nil configuration is read from the environment. The session runs in background until it is
// stopped, the context is cancelled or its iteration budget is completed.
func StartObservingCurrentProcess(ctx context.Context, meter metric.Meter, cfg *SamplerConfig) (*Session, error) {
	cfg, err := orFromEnv(cfg)
	if err != nil {
		return nil, err
	}
	return startSession(ctx, meter, cfg, cfg.ObservationMode(), process.ResolveCurrent)
}

// StartObservingPID starts a session that observes the process with the given pid.
func StartObservingPID(ctx context.Context, meter metric.Meter, pid uint32, cfg *SamplerConfig) (*Session, error) {
	cfg, err := orFromEnv(cfg)
	if err != nil {
		return nil, err
	}
	return startSession(ctx, meter, cfg, cfg.ObservationMode(), func(src process.Source) (process.Handle, error) {
		return process.Resolve(src, pid)
	})
}

// StartObservingCurrentProcessOnce records the counters of the current process exactly once, and
// returns when they have been recorded. The configured mode and iterations are ignored.
func StartObservingCurrentProcessOnce(ctx context.Context, meter metric.Meter, cfg *SamplerConfig) error {
	cfg, err := orFromEnv(cfg)
	if err != nil {
		return err
	}
	once := *cfg
	once.Mode = ModePush
	once.Iterations = 1
	s, err := startSession(ctx, meter, &once, Push(once.GetInterval()), process.ResolveCurrent)
	if err != nil {
		return err
	}
	return s.Wait()
}

func orFromEnv(cfg *SamplerConfig) (*SamplerConfig, error) {
	if cfg != nil {
		return cfg, nil
	}
	return SamplerConfigFromEnv()
}
