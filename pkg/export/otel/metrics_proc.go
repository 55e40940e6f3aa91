package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ReporterName is the instrumentation scope of the process metrics
const ReporterName = "github.com/grafana/procmetrics"

// InstrumentID identifies each of the process metrics instruments
type InstrumentID int

const (
	CPUUsage InstrumentID = iota
	CPUUtilization
	MemoryUsage
	MemoryVirtual
	DiskIO
	GPUMemoryUsage
	numInstruments
)

type valueType int

const (
	float64Value valueType = iota
	int64Value
)

// Instrument describes one of the process metrics. All of them are gauges.
type Instrument struct {
	Name        string
	Unit        string
	Description string
	valueType   valueType
}

// Instruments is the fixed schema of the process metrics, indexed by InstrumentID
var Instruments = [numInstruments]Instrument{
	CPUUsage: {
		Name: "process.cpu.usage", Unit: "percent", valueType: float64Value,
		Description: "The percentage of CPU in use, summed across all the cores.",
	},
	CPUUtilization: {
		Name: "process.cpu.utilization", Unit: "percent", valueType: float64Value,
		Description: "The percentage of CPU in use, divided by the number of physical cores.",
	},
	MemoryUsage: {
		Name: "process.memory.usage", Unit: "byte", valueType: int64Value,
		Description: "The amount of physical memory in use.",
	},
	MemoryVirtual: {
		Name: "process.memory.virtual", Unit: "byte", valueType: int64Value,
		Description: "The amount of committed virtual memory.",
	},
	DiskIO: {
		Name: "process.disk.io", Unit: "byte", valueType: int64Value,
		Description: "Disk bytes transferred since the process start.",
	},
	GPUMemoryUsage: {
		Name: "process.gpu.memory.usage", Unit: "byte", valueType: int64Value,
		Description: "The amount of physical GPU memory in use.",
	},
}

var (
	DirectionKey   = attribute.Key("direction")
	DirectionRead  = DirectionKey.String("read")
	DirectionWrite = DirectionKey.String("write")
)

func (id InstrumentID) String() string {
	if id < 0 || id >= numInstruments {
		return fmt.Sprintf("InstrumentID(%d)", int(id))
	}
	return Instruments[id].Name
}

func (id InstrumentID) options() (string, []metric.InstrumentOption) {
	ins := &Instruments[id]
	return ins.Name, []metric.InstrumentOption{metric.WithUnit(ins.Unit), metric.WithDescription(ins.Description)}
}

// Recorder records one value into the instrument identified by id. The value type must
// match the instrument definition.
type Recorder interface {
	RecordFloat64(ctx context.Context, id InstrumentID, v float64, attrs attribute.Set)
	RecordInt64(ctx context.Context, id InstrumentID, v int64, attrs attribute.Set)
}

// Gauges are the synchronous instruments, used when the sampler drives its own schedule.
type Gauges struct {
	floats [numInstruments]metric.Float64Gauge
	ints   [numInstruments]metric.Int64Gauge
}

var _ Recorder = (*Gauges)(nil)

// NewGauges creates the six synchronous process gauges. They must be created once per session.
func NewGauges(meter metric.Meter) (*Gauges, error) {
	g := &Gauges{}
	var errs []error
	for id := InstrumentID(0); id < numInstruments; id++ {
		name, opts := id.options()
		var err error
		switch Instruments[id].valueType {
		case float64Value:
			g.floats[id], err = meter.Float64Gauge(name, float64GaugeOptions(opts)...)
		default:
			g.ints[id], err = meter.Int64Gauge(name, int64GaugeOptions(opts)...)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("creating gauge %s: %w", name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Gauges) RecordFloat64(ctx context.Context, id InstrumentID, v float64, attrs attribute.Set) {
	g.floats[id].Record(ctx, v, metric.WithAttributeSet(attrs))
}

func (g *Gauges) RecordInt64(ctx context.Context, id InstrumentID, v int64, attrs attribute.Set) {
	g.ints[id].Record(ctx, v, metric.WithAttributeSet(attrs))
}

// ObservableGauges are the asynchronous instruments, observed from a callback that is
// invoked by the metrics reader on its own schedule.
type ObservableGauges struct {
	meter  metric.Meter
	floats [numInstruments]metric.Float64ObservableGauge
	ints   [numInstruments]metric.Int64ObservableGauge
}

// NewObservableGauges creates the six asynchronous process gauges.
func NewObservableGauges(meter metric.Meter) (*ObservableGauges, error) {
	og := &ObservableGauges{meter: meter}
	var errs []error
	for id := InstrumentID(0); id < numInstruments; id++ {
		name, opts := id.options()
		var err error
		switch Instruments[id].valueType {
		case float64Value:
			og.floats[id], err = meter.Float64ObservableGauge(name, float64ObservableOptions(opts)...)
		default:
			og.ints[id], err = meter.Int64ObservableGauge(name, int64ObservableOptions(opts)...)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("creating observable gauge %s: %w", name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return og, nil
}

// Register the callback that observes all the gauges. The callback receives a Recorder
// that is only valid during the callback invocation.
func (og *ObservableGauges) Register(cb func(ctx context.Context, rec Recorder) error) (metric.Registration, error) {
	observables := make([]metric.Observable, 0, numInstruments)
	for id := InstrumentID(0); id < numInstruments; id++ {
		if Instruments[id].valueType == float64Value {
			observables = append(observables, og.floats[id])
		} else {
			observables = append(observables, og.ints[id])
		}
	}
	return og.meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		return cb(ctx, &observerRecorder{gauges: og, observer: o})
	}, observables...)
}

type observerRecorder struct {
	gauges   *ObservableGauges
	observer metric.Observer
}

func (r *observerRecorder) RecordFloat64(_ context.Context, id InstrumentID, v float64, attrs attribute.Set) {
	r.observer.ObserveFloat64(r.gauges.floats[id], v, metric.WithAttributeSet(attrs))
}

func (r *observerRecorder) RecordInt64(_ context.Context, id InstrumentID, v int64, attrs attribute.Set) {
	r.observer.ObserveInt64(r.gauges.ints[id], v, metric.WithAttributeSet(attrs))
}

func float64GaugeOptions(opts []metric.InstrumentOption) []metric.Float64GaugeOption {
	out := make([]metric.Float64GaugeOption, 0, len(opts))
	for _, o := range opts {
		out = append(out, o)
	}
	return out
}

func int64GaugeOptions(opts []metric.InstrumentOption) []metric.Int64GaugeOption {
	out := make([]metric.Int64GaugeOption, 0, len(opts))
	for _, o := range opts {
		out = append(out, o)
	}
	return out
}

func float64ObservableOptions(opts []metric.InstrumentOption) []metric.Float64ObservableGaugeOption {
	out := make([]metric.Float64ObservableGaugeOption, 0, len(opts))
	for _, o := range opts {
		out = append(out, o)
	}
	return out
}

func int64ObservableOptions(opts []metric.InstrumentOption) []metric.Int64ObservableGaugeOption {
	out := make([]metric.Int64ObservableGaugeOption, 0, len(opts))
	for _, o := range opts {
		out = append(out, o)
	}
	return out
}
