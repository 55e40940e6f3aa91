// Package imetrics supports recording and submission of internal metrics about the process sampler itself
package imetrics

import (
	"context"
)

// Config options for the different internal metrics exporters
type Config struct {
	Prometheus PrometheusConfig `yaml:"prometheus,omitempty"`
}

// Enabled returns whether the internal metrics must be reported
func (c *Config) Enabled() bool {
	return c.Prometheus.Port != 0
}

// Reporter of internal metrics
type Reporter interface {
	// Start the reporter
	Start(ctx context.Context)
	// SessionStarted is invoked every time a new observation session starts, for the given mode (push/pull)
	SessionStarted(mode string)
	// SessionStopped is invoked every time an observation session finishes
	SessionStopped(mode string)
	// TickSampled is invoked every time a tick successfully records the process counters
	TickSampled()
	// TickSkipped is invoked every time a tick can't read the process counters
	TickSkipped()
	// ObservationDropped is invoked every time a value is not recorded because it doesn't fit
	// the type of the instrument
	ObservationDropped(instrument string)
	// GPUUnavailable is invoked every time a session starts without a GPU management interface
	GPUUnavailable()
	// OTELMetricExport is invoked every time the OpenTelemetry Metrics exporter successfully exports metrics to
	// a remote collector. It accounts the length, in metrics, for each invocation.
	OTELMetricExport(len int)
	// OTELMetricExportError is invoked every time the OpenTelemetry Metrics export fails with an error
	OTELMetricExportError(err error)
	// PrometheusRequest is invoked every time the Prometheus exporter is invoked, for a given port and path
	PrometheusRequest(port, path string)
}

// NoopReporter is a metrics Reporter that just does nothing
type NoopReporter struct{}

func (n NoopReporter) Start(_ context.Context)       {}
func (n NoopReporter) SessionStarted(_ string)       {}
func (n NoopReporter) SessionStopped(_ string)       {}
func (n NoopReporter) TickSampled()                  {}
func (n NoopReporter) TickSkipped()                  {}
func (n NoopReporter) ObservationDropped(_ string)   {}
func (n NoopReporter) GPUUnavailable()               {}
func (n NoopReporter) OTELMetricExport(_ int)        {}
func (n NoopReporter) OTELMetricExportError(_ error) {}
func (n NoopReporter) PrometheusRequest(_, _ string) {}
