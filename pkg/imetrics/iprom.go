package imetrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/grafana/procmetrics/pkg/connector"
)

type PrometheusConfig struct {
	Port int    `yaml:"port,omitempty" env:"PROCMETRICS_INTERNAL_METRICS_PROMETHEUS_PORT"`
	Path string `yaml:"path,omitempty" env:"PROCMETRICS_INTERNAL_METRICS_PROMETHEUS_PATH"`
}

// PrometheusReporter is an internal metrics Reporter that exports to Prometheus
type PrometheusReporter struct {
	connector            *connector.PrometheusManager
	sessions             *prometheus.GaugeVec
	ticksSampled         prometheus.Counter
	ticksSkipped         prometheus.Counter
	observationsDropped  *prometheus.CounterVec
	gpuUnavailable       prometheus.Counter
	otelMetricExports    prometheus.Counter
	otelMetricExportErrs *prometheus.CounterVec
	prometheusRequests   *prometheus.CounterVec
}

func NewPrometheusReporter(cfg *PrometheusConfig, manager *connector.PrometheusManager) *PrometheusReporter {
	pr := &PrometheusReporter{
		connector: manager,
		sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "procmetrics_sessions",
			Help: "number of active process observation sessions",
		}, []string{"mode"}),
		ticksSampled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "procmetrics_ticks_sampled_total",
			Help: "sampling ticks that recorded the process counters",
		}),
		ticksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "procmetrics_ticks_skipped_total",
			Help: "sampling ticks that couldn't read the observed process",
		}),
		observationsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procmetrics_observations_dropped_total",
			Help: "values that were not recorded because they don't fit the instrument type",
		}, []string{"instrument"}),
		gpuUnavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "procmetrics_gpu_unavailable_total",
			Help: "sessions started without a GPU management interface",
		}),
		otelMetricExports: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "procmetrics_otel_metric_exports_total",
			Help: "length of the metric batches submitted to the remote OTEL collector",
		}),
		otelMetricExportErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procmetrics_otel_metric_export_errors_total",
			Help: "error count on each failed OTEL metric export",
		}, []string{"error"}),
		prometheusRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procmetrics_prometheus_http_requests_total",
			Help: "requests towards the Prometheus Scrape endpoint",
		}, []string{"port", "path"}),
	}
	manager.Register(cfg.Port, cfg.Path,
		pr.sessions,
		pr.ticksSampled,
		pr.ticksSkipped,
		pr.observationsDropped,
		pr.gpuUnavailable,
		pr.otelMetricExports,
		pr.otelMetricExportErrs,
		pr.prometheusRequests)

	return pr
}

func (p *PrometheusReporter) Start(ctx context.Context) {
	p.connector.StartHTTP(ctx)
}

func (p *PrometheusReporter) SessionStarted(mode string) {
	p.sessions.WithLabelValues(mode).Inc()
}

func (p *PrometheusReporter) SessionStopped(mode string) {
	p.sessions.WithLabelValues(mode).Dec()
}

func (p *PrometheusReporter) TickSampled() {
	p.ticksSampled.Inc()
}

func (p *PrometheusReporter) TickSkipped() {
	p.ticksSkipped.Inc()
}

func (p *PrometheusReporter) ObservationDropped(instrument string) {
	p.observationsDropped.WithLabelValues(instrument).Inc()
}

func (p *PrometheusReporter) GPUUnavailable() {
	p.gpuUnavailable.Inc()
}

func (p *PrometheusReporter) OTELMetricExport(len int) {
	p.otelMetricExports.Add(float64(len))
}

func (p *PrometheusReporter) OTELMetricExportError(err error) {
	p.otelMetricExportErrs.WithLabelValues(err.Error()).Inc()
}

func (p *PrometheusReporter) PrometheusRequest(port, path string) {
	p.prometheusRequests.WithLabelValues(port, path).Inc()
}
