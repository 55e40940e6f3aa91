package procmetrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/grafana/procmetrics/pkg/export/otel"
	"github.com/grafana/procmetrics/pkg/internal/helpers/convert"
	"github.com/grafana/procmetrics/pkg/internal/infraolly/process"
)

// tick refreshes the observed process and records all the instruments from the same
// snapshot read. It returns false if the process could not be read.
func (s *Session) tick(ctx context.Context, rec otel.Recorder) bool {
	pid := s.identity.PID
	if err := s.src.Refresh(process.OnlyPID(pid)); err != nil {
		s.log.Debug("skipping tick", "error", err)
		return false
	}
	counters, ok := s.src.Read(pid)
	if !ok {
		s.log.Debug("skipping tick", "error", ErrTickReadFailure)
		return false
	}
	s.publish(ctx, rec, counters)
	return true
}

func (s *Session) publish(ctx context.Context, rec otel.Recorder, c *process.Counters) {
	attrs := s.identity.Attributes()

	s.recordFloat(ctx, rec, otel.CPUUsage, c.CPUPercent, s.noAttrs)
	s.recordFloat(ctx, rec, otel.CPUUtilization, c.CPUPercent/float64(s.cores), attrs)
	s.recordInt(ctx, rec, otel.MemoryUsage, c.ResidentMemoryBytes, attrs)
	s.recordInt(ctx, rec, otel.MemoryVirtual, c.VirtualMemoryBytes, attrs)
	s.recordInt(ctx, rec, otel.DiskIO, c.DiskReadBytes, s.readAttrs)
	s.recordInt(ctx, rec, otel.DiskIO, c.DiskWriteBytes, s.writeAttrs)

	// the pid is positive, as it has been resolved
	gpuMem, ok := s.gpu.Sample(uint32(s.identity.PID))
	if !ok {
		if s.cfg.GPU.ZeroFill {
			rec.RecordInt64(ctx, otel.GPUMemoryUsage, 0, attrs)
		}
		return
	}
	s.recordInt(ctx, rec, otel.GPUMemoryUsage, gpuMem, attrs)
}

func (s *Session) recordFloat(ctx context.Context, rec otel.Recorder, id otel.InstrumentID, v float64, attrs attribute.Set) {
	f, err := convert.Float(v)
	if err != nil {
		s.dropped(id, err)
		return
	}
	rec.RecordFloat64(ctx, id, f, attrs)
}

func (s *Session) recordInt(ctx context.Context, rec otel.Recorder, id otel.InstrumentID, v uint64, attrs attribute.Set) {
	n, err := convert.Int[int64](v)
	if err != nil {
		s.dropped(id, err)
		return
	}
	rec.RecordInt64(ctx, id, n, attrs)
}

func (s *Session) dropped(id otel.InstrumentID, err error) {
	s.log.Debug("skipping observation", "instrument", id, "error", err)
	s.metrics.ObservationDropped(id.String())
}
