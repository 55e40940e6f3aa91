package procmetrics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/grafana/procmetrics/pkg/export/otel"
	"github.com/grafana/procmetrics/pkg/imetrics"
	"github.com/grafana/procmetrics/pkg/internal/infraolly/gpu"
	"github.com/grafana/procmetrics/pkg/internal/infraolly/process"
)

// overridable for testing
var (
	newSource = process.NewSource
	initGPU   = gpu.Init
)

// Session observes a single process. It owns the process snapshot source, the identity
// attributes and the instruments, which are created once when the session starts.
type Session struct {
	log      *slog.Logger
	cfg      SamplerConfig
	mode     ObservationMode
	src      process.Source
	gpu      *gpu.Sampler
	identity *process.Identity
	cores    int
	metrics  imetrics.Reporter

	// cached attribute sets
	noAttrs    attribute.Set
	readAttrs  attribute.Set
	writeAttrs attribute.Set

	// tick accounting. Guarded by mt, as pull-mode callbacks might be invoked concurrently
	mt        sync.Mutex
	ticks     int
	misses    int
	successes int
	finished  bool

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// startSession builds all the per-session state. Any failure is returned before
// creating any instrument.
func startSession(
	ctx context.Context,
	meter metric.Meter,
	cfg *SamplerConfig,
	mode ObservationMode,
	resolve func(process.Source) (process.Handle, error),
) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := mode.validate(); err != nil {
		return nil, ConfigError(err.Error())
	}
	src, err := newSource(&cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("creating process source: %w", err)
	}
	handle, err := resolve(src)
	if err != nil {
		return nil, err
	}
	identity, err := process.BuildIdentity(handle, src)
	if err != nil {
		return nil, err
	}
	cores, ok := src.PhysicalCoreCount()
	if !ok || cores <= 0 {
		return nil, fmt.Errorf("%w: observing pid %d", ErrCoreCountUnavailable, identity.PID)
	}

	s := &Session{
		log:        slog.With("component", "procmetrics.Session", "pid", identity.PID, "mode", mode.Kind()),
		cfg:        *cfg,
		mode:       mode,
		src:        src,
		identity:   identity,
		cores:      cores,
		metrics:    cfg.Reporter,
		noAttrs:    *attribute.EmptySet(),
		readAttrs:  identity.With(otel.DirectionRead),
		writeAttrs: identity.With(otel.DirectionWrite),
		done:       make(chan struct{}),
	}
	if s.metrics == nil {
		s.metrics = imetrics.NoopReporter{}
	}

	if err := s.start(ctx, meter); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) start(ctx context.Context, meter metric.Meter) error {
	switch s.mode.Kind() {
	case ModePush:
		gauges, err := otel.NewGauges(meter)
		if err != nil {
			return fmt.Errorf("creating process instruments: %w", err)
		}
		s.initGPU()
		ctx, s.cancel = context.WithCancel(ctx)
		s.metrics.SessionStarted(string(ModePush))
		s.log.Debug("starting push session", "interval", s.mode.Interval(), "cores", s.cores)
		go s.runPush(ctx, gauges)
	case ModePull:
		gauges, err := otel.NewObservableGauges(meter)
		if err != nil {
			return fmt.Errorf("creating process instruments: %w", err)
		}
		s.initGPU()
		ctx, s.cancel = context.WithCancel(ctx)
		// the gauges come from this same meter, so registration is not expected to fail after
		// they have been created
		reg, err := gauges.Register(s.observe)
		if err != nil {
			s.cancel()
			_ = s.gpu.Close()
			return fmt.Errorf("registering process metrics callback: %w", err)
		}
		s.metrics.SessionStarted(string(ModePull))
		s.log.Debug("starting pull session", "cores", s.cores)
		go s.waitPull(ctx, reg)
	}
	return nil
}

// initGPU is invoked once per session. It is never retried.
func (s *Session) initGPU() {
	if !s.cfg.GPU.Enabled {
		s.gpu = gpu.Disabled()
		return
	}
	var err error
	if s.gpu, err = gpu.NewSampler(initGPU); err != nil {
		s.metrics.GPUUnavailable()
		if s.cfg.GPU.ZeroFill {
			s.log.Warn("GPU memory can't be sampled. Reporting zero", "error", err)
		} else {
			s.log.Warn("GPU memory can't be sampled. Omitting it", "error", err)
		}
	}
}

func (s *Session) runPush(ctx context.Context, rec otel.Recorder) {
	defer s.finish()
	// cancellation takes effect at the sleep boundary, never in the middle of a tick
	tickCtx := context.WithoutCancel(ctx)
	timer := time.NewTimer(s.mode.Interval())
	defer timer.Stop()
	for {
		if end, err := s.account(s.tick(tickCtx, rec)); end {
			s.err = err
			return
		}
		timer.Reset(s.mode.Interval())
		select {
		case <-ctx.Done():
			s.log.Debug("session cancelled")
			return
		case <-timer.C:
		}
	}
}

// observe is the pull-mode callback. The reader invokes it synchronously on each collection.
func (s *Session) observe(ctx context.Context, rec otel.Recorder) error {
	s.mt.Lock()
	defer s.mt.Unlock()
	if s.finished {
		return nil
	}
	if end, err := s.accountLocked(s.tick(ctx, rec)); end {
		s.finished = true
		s.err = err
		// the callback can't be unregistered from inside the collection that invokes it,
		// so waitPull does it.
		s.cancel()
	}
	return nil
}

func (s *Session) waitPull(ctx context.Context, reg metric.Registration) {
	defer s.finish()
	<-ctx.Done()
	if err := reg.Unregister(); err != nil {
		s.log.Warn("can't unregister process metrics callback", "error", err)
	}
	s.mt.Lock()
	s.finished = true
	s.mt.Unlock()
}

func (s *Session) finish() {
	if err := s.gpu.Close(); err != nil {
		s.log.Debug("closing GPU interface", "error", err)
	}
	s.metrics.SessionStopped(string(s.mode.Kind()))
	s.log.Debug("session finished", "ticks", s.ticks, "successes", s.successes, "error", s.err)
	close(s.done)
}

func (s *Session) account(ok bool) (bool, error) {
	s.mt.Lock()
	defer s.mt.Unlock()
	return s.accountLocked(ok)
}

// accountLocked counts a tick and decides whether the session must end. Every tick
// consumes the iteration budget, even the skipped ones.
func (s *Session) accountLocked(ok bool) (bool, error) {
	s.ticks++
	if ok {
		s.successes++
		s.misses = 0
		s.metrics.TickSampled()
	} else {
		s.misses++
		s.metrics.TickSkipped()
	}
	if s.cfg.MaxConsecutiveMisses > 0 && s.misses >= s.cfg.MaxConsecutiveMisses {
		return true, fmt.Errorf("%w: pid %d unreadable in %d consecutive ticks",
			ErrTickReadFailure, s.identity.PID, s.misses)
	}
	if s.cfg.Iterations > 0 && s.ticks >= s.cfg.Iterations {
		if s.successes == 0 {
			return true, fmt.Errorf("%w: pid %d unreadable in all the %d ticks",
				ErrTickReadFailure, s.identity.PID, s.ticks)
		}
		return true, nil
	}
	return false, nil
}

// PID of the observed process
func (s *Session) PID() uint32 {
	return uint32(s.identity.PID)
}

// Identity of the observed process, as computed when the session started
func (s *Session) Identity() process.Identity {
	return *s.identity
}

// Mode of the session, resolved when it started
func (s *Session) Mode() ObservationMode {
	return s.mode
}

// Done is closed when the session finishes
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session finishes. It returns nil if the session finished because of
// cancellation or because the iteration budget was completed.
func (s *Session) Wait() error {
	<-s.done
	return s.err
}

// Stop cancels the session and waits for it to finish. A push session stops at its next
// sleep boundary. A pull session unregisters its callback. It can be invoked many times.
func (s *Session) Stop() error {
	s.cancel()
	return s.Wait()
}
