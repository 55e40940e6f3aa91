package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestInstruments_Schema(t *testing.T) {
	expected := map[InstrumentID]struct{ name, unit string }{
		CPUUsage:       {"process.cpu.usage", "percent"},
		CPUUtilization: {"process.cpu.utilization", "percent"},
		MemoryUsage:    {"process.memory.usage", "byte"},
		MemoryVirtual:  {"process.memory.virtual", "byte"},
		DiskIO:         {"process.disk.io", "byte"},
		GPUMemoryUsage: {"process.gpu.memory.usage", "byte"},
	}
	require.Len(t, expected, int(numInstruments))
	for id, exp := range expected {
		assert.Equal(t, exp.name, Instruments[id].Name)
		assert.Equal(t, exp.unit, Instruments[id].Unit)
		assert.NotEmpty(t, Instruments[id].Description)
		assert.Equal(t, exp.name, id.String())
	}
	assert.Equal(t, "InstrumentID(42)", InstrumentID(42).String())
}

func TestGauges_Record(t *testing.T) {
	ctx := t.Context()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	gauges, err := NewGauges(mp.Meter(ReporterName))
	require.NoError(t, err)

	attrs := attribute.NewSet(attribute.Int("process.pid", 33))
	gauges.RecordFloat64(ctx, CPUUsage, 150, *attribute.EmptySet())
	gauges.RecordFloat64(ctx, CPUUtilization, 37.5, attrs)
	gauges.RecordInt64(ctx, MemoryUsage, 1024, attrs)
	gauges.RecordInt64(ctx, DiskIO, 10, attribute.NewSet(append(attrs.ToSlice(), DirectionRead)...))
	gauges.RecordInt64(ctx, DiskIO, 20, attribute.NewSet(append(attrs.ToSlice(), DirectionWrite)...))

	rm := collect(t, reader)
	usage := floatPoints(t, rm, "process.cpu.usage")
	require.Len(t, usage, 1)
	assert.Equal(t, 150.0, usage[0].Value)
	assert.Equal(t, 0, usage[0].Attributes.Len())

	utilization := floatPoints(t, rm, "process.cpu.utilization")
	require.Len(t, utilization, 1)
	assert.Equal(t, 37.5, utilization[0].Value)
	assert.True(t, attrs.Equals(&utilization[0].Attributes))

	mem := intPoints(t, rm, "process.memory.usage")
	require.Len(t, mem, 1)
	assert.Equal(t, int64(1024), mem[0].Value)

	disk := intPoints(t, rm, "process.disk.io")
	require.Len(t, disk, 2)
	byDirection := map[string]int64{}
	for _, dp := range disk {
		dir, ok := dp.Attributes.Value(DirectionKey)
		require.True(t, ok)
		byDirection[dir.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"read": 10, "write": 20}, byDirection)

	// unrecorded instruments don't report anything
	assert.Empty(t, intPoints(t, rm, "process.gpu.memory.usage"))
}

func TestObservableGauges_Register(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	og, err := NewObservableGauges(mp.Meter(ReporterName))
	require.NoError(t, err)

	calls := 0
	reg, err := og.Register(func(ctx context.Context, rec Recorder) error {
		calls++
		rec.RecordFloat64(ctx, CPUUsage, float64(calls), *attribute.EmptySet())
		rec.RecordInt64(ctx, GPUMemoryUsage, int64(calls*100), *attribute.EmptySet())
		return nil
	})
	require.NoError(t, err)

	rm := collect(t, reader)
	assert.Equal(t, 1, calls)
	require.Len(t, floatPoints(t, rm, "process.cpu.usage"), 1)
	assert.Equal(t, 1.0, floatPoints(t, rm, "process.cpu.usage")[0].Value)
	assert.Equal(t, int64(100), intPoints(t, rm, "process.gpu.memory.usage")[0].Value)

	rm = collect(t, reader)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2.0, floatPoints(t, rm, "process.cpu.usage")[0].Value)

	require.NoError(t, reg.Unregister())
	collect(t, reader)
	assert.Equal(t, 2, calls)
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	rm := &metricdata.ResourceMetrics{}
	require.NoError(t, reader.Collect(t.Context(), rm))
	return rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func floatPoints(t *testing.T, rm *metricdata.ResourceMetrics, name string) []metricdata.DataPoint[float64] {
	m, ok := findMetric(rm, name)
	if !ok {
		return nil
	}
	g, ok := m.Data.(metricdata.Gauge[float64])
	require.Truef(t, ok, "%s is not a float64 gauge: %T", name, m.Data)
	return g.DataPoints
}

func intPoints(t *testing.T, rm *metricdata.ResourceMetrics, name string) []metricdata.DataPoint[int64] {
	m, ok := findMetric(rm, name)
	if !ok {
		return nil
	}
	g, ok := m.Data.(metricdata.Gauge[int64])
	require.Truef(t, ok, "%s is not an int64 gauge: %T", name, m.Data)
	return g.DataPoints
}
