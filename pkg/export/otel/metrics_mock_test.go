package otel

import (
	"context"

	"github.com/stretchr/testify/mock"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/grafana/procmetrics/pkg/imetrics"
)

type exporterMock struct {
	mock.Mock
}

func (e *exporterMock) Temporality(k metric.InstrumentKind) metricdata.Temporality {
	return metric.DefaultTemporalitySelector(k)
}

func (e *exporterMock) Aggregation(k metric.InstrumentKind) metric.Aggregation {
	return metric.DefaultAggregationSelector(k)
}

func (e *exporterMock) Export(ctx context.Context, md *metricdata.ResourceMetrics) error {
	args := e.Called(ctx, md)
	return args.Error(0)
}

func (e *exporterMock) ForceFlush(_ context.Context) error { return nil }

func (e *exporterMock) Shutdown(_ context.Context) error { return nil }

type reporterMock struct {
	imetrics.NoopReporter
	exported []int
	errors   []error
}

func (r *reporterMock) OTELMetricExport(l int) {
	r.exported = append(r.exported, l)
}

func (r *reporterMock) OTELMetricExportError(err error) {
	r.errors = append(r.errors, err)
}
