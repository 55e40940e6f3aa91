package otel

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"google.golang.org/grpc/credentials"

	"github.com/grafana/procmetrics/pkg/pipe/global"
)

// overridable for testing
var stdout io.Writer = os.Stdout

func mlog() *slog.Logger {
	return slog.With("component", "otel.MetricsConfig")
}

// ExporterKind selects where the process metrics are sent to
type ExporterKind string

const (
	ExporterOTLP       ExporterKind = "otlp"
	ExporterPrometheus ExporterKind = "prometheus"
	ExporterStdout     ExporterKind = "stdout"
)

type Protocol string

const (
	ProtocolUnset        Protocol = ""
	ProtocolGRPC         Protocol = "grpc"
	ProtocolHTTPProtobuf Protocol = "http/protobuf"
	ProtocolHTTPJSON     Protocol = "http/json"
)

const (
	UsualPortGRPC = "4317"
	UsualPortHTTP = "4318"

	defaultInterval = 30 * time.Second
)

type MetricsConfig struct {
	Exporter    ExporterKind `yaml:"exporter" env:"PROCMETRICS_EXPORTER"`
	ServiceName string       `yaml:"service_name" env:"OTEL_SERVICE_NAME"`

	Interval time.Duration `yaml:"interval" env:"PROCMETRICS_METRICS_INTERVAL"`
	// OTELIntervalMS supports metric intervals as specified by the standard OTEL definition.
	// PROCMETRICS_METRICS_INTERVAL takes precedence over it.
	OTELIntervalMS int `yaml:"-" env:"OTEL_METRIC_EXPORT_INTERVAL"`

	CommonEndpoint  string `yaml:"-" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	MetricsEndpoint string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"`

	Protocol        Protocol `yaml:"protocol" env:"OTEL_EXPORTER_OTLP_PROTOCOL"`
	MetricsProtocol Protocol `yaml:"-" env:"OTEL_EXPORTER_OTLP_METRICS_PROTOCOL"`

	// InsecureSkipVerify is not standard, so we don't follow the same naming convention
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" env:"PROCMETRICS_INSECURE_SKIP_VERIFY"`

	// SDKLogLevel works independently of the global log level, as the OTEL SDK is very verbose in debug mode
	SDKLogLevel string `yaml:"otel_sdk_log_level" env:"PROCMETRICS_OTEL_SDK_LOG_LEVEL"`

	Prometheus PrometheusConfig `yaml:"prometheus"`
}

// PrometheusConfig for the OTEL-to-Prometheus exporter. It is served through the
// same HTTP manager as the internal metrics, so both can share port and path.
type PrometheusConfig struct {
	Port int    `yaml:"port" env:"PROCMETRICS_PROMETHEUS_PORT"`
	Path string `yaml:"path" env:"PROCMETRICS_PROMETHEUS_PATH"`
}

// GetInterval returns the export period of the periodic readers
func (m *MetricsConfig) GetInterval() time.Duration {
	if m.Interval != 0 {
		return m.Interval
	}
	if m.OTELIntervalMS > 0 {
		return time.Duration(m.OTELIntervalMS) * time.Millisecond
	}
	return defaultInterval
}

func (m *MetricsConfig) GetProtocol() Protocol {
	if m.MetricsProtocol != "" {
		return m.MetricsProtocol
	}
	if m.Protocol != "" {
		return m.Protocol
	}
	return m.GuessProtocol()
}

func (m *MetricsConfig) GuessProtocol() Protocol {
	// If no explicit protocol is set, we guess it from the metrics endpoint port
	// (assuming it uses a standard port or a development-like form like 14317, 24317, 14318...)
	ep, _, err := parseMetricsEndpoint(m)
	if err == nil {
		if strings.HasSuffix(ep.Port(), UsualPortGRPC) {
			return ProtocolGRPC
		} else if strings.HasSuffix(ep.Port(), UsualPortHTTP) {
			return ProtocolHTTPProtobuf
		}
	}
	return ProtocolHTTPProtobuf
}

// OTLPMetricsEndpoint returns the OTLP endpoint, and whether it is the common
// endpoint for all the signals.
func (m *MetricsConfig) OTLPMetricsEndpoint() (string, bool) {
	if m.MetricsEndpoint != "" {
		return m.MetricsEndpoint, false
	}
	if m.CommonEndpoint != "" {
		return m.CommonEndpoint, true
	}
	return "", false
}

func (m *MetricsConfig) Validate() error {
	switch m.Exporter {
	case ExporterOTLP:
		if ep, _ := m.OTLPMetricsEndpoint(); ep == "" {
			return fmt.Errorf("the %s exporter requires an endpoint", m.Exporter)
		}
		switch p := m.GetProtocol(); p {
		case ProtocolGRPC, ProtocolHTTPProtobuf, ProtocolHTTPJSON:
		default:
			return fmt.Errorf("invalid protocol value: %q. Accepted values are: %s, %s, %s",
				p, ProtocolGRPC, ProtocolHTTPJSON, ProtocolHTTPProtobuf)
		}
	case ExporterPrometheus:
		if m.Prometheus.Port == 0 {
			return fmt.Errorf("the %s exporter requires a port", m.Exporter)
		}
		if !strings.HasPrefix(m.Prometheus.Path, "/") {
			return fmt.Errorf("the %s exporter path must start with '/'. Got: %q", m.Exporter, m.Prometheus.Path)
		}
	case ExporterStdout:
	default:
		return fmt.Errorf("invalid exporter %q. Accepted values are: %s, %s, %s",
			m.Exporter, ExporterOTLP, ExporterPrometheus, ExporterStdout)
	}
	if m.Interval < 0 || m.OTELIntervalMS < 0 {
		return fmt.Errorf("metrics export interval can't be negative")
	}
	return nil
}

// NewMeterProvider instantiates the OTEL meter provider whose reader sends the metrics
// to the configured exporter. The caller is responsible for shutting it down.
func NewMeterProvider(ctx context.Context, cfg *MetricsConfig, ctxInfo *global.ContextInfo) (*sdkmetric.MeterProvider, error) {
	reader, err := newReader(ctx, cfg, ctxInfo)
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(otelResource(cfg.ServiceName, ctxInfo.HostID)),
		sdkmetric.WithReader(reader),
	), nil
}

func newReader(ctx context.Context, cfg *MetricsConfig, ctxInfo *global.ContextInfo) (sdkmetric.Reader, error) {
	log := mlog().With("exporter", cfg.Exporter)
	switch cfg.Exporter {
	case ExporterOTLP:
		exp, err := instantiateOTLP(ctx, cfg)
		if err != nil {
			return nil, err
		}
		log.Debug("instantiating periodic reader", "interval", cfg.GetInterval())
		return sdkmetric.NewPeriodicReader(
			&instrumentedMetricsExporter{Exporter: exp, internal: ctxInfo.Metrics},
			sdkmetric.WithInterval(cfg.GetInterval())), nil
	case ExporterStdout:
		exp, err := stdoutmetric.New(stdoutmetric.WithEncoder(json.NewEncoder(stdout)))
		if err != nil {
			return nil, fmt.Errorf("creating stdout metric exporter: %w", err)
		}
		log.Debug("instantiating periodic reader", "interval", cfg.GetInterval())
		return sdkmetric.NewPeriodicReader(
			&instrumentedMetricsExporter{Exporter: exp, internal: ctxInfo.Metrics},
			sdkmetric.WithInterval(cfg.GetInterval())), nil
	case ExporterPrometheus:
		log.Debug("registering prometheus exporter", "port", cfg.Prometheus.Port, "path", cfg.Prometheus.Path)
		reader, err := otelprom.New(
			otelprom.WithRegisterer(ctxInfo.Prometheus.Registry(cfg.Prometheus.Port, cfg.Prometheus.Path)),
		)
		if err != nil {
			return nil, fmt.Errorf("creating prometheus exporter: %w", err)
		}
		return reader, nil
	default:
		return nil, fmt.Errorf("invalid exporter %q", cfg.Exporter)
	}
}

func instantiateOTLP(ctx context.Context, cfg *MetricsConfig) (sdkmetric.Exporter, error) {
	switch proto := cfg.GetProtocol(); proto {
	case ProtocolHTTPJSON, ProtocolHTTPProtobuf:
		mlog().Debug("instantiating HTTP metrics exporter", "protocol", proto)
		opts, err := httpMetricEndpointOptions(cfg)
		if err != nil {
			return nil, err
		}
		mexp, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating HTTP metric exporter: %w", err)
		}
		return mexp, nil
	case ProtocolGRPC:
		mlog().Debug("instantiating GRPC metrics exporter", "protocol", proto)
		opts, err := grpcMetricEndpointOptions(cfg)
		if err != nil {
			return nil, err
		}
		mexp, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating GRPC metric exporter: %w", err)
		}
		return mexp, nil
	default:
		return nil, fmt.Errorf("invalid protocol value: %q. Accepted values are: %s, %s, %s",
			proto, ProtocolGRPC, ProtocolHTTPJSON, ProtocolHTTPProtobuf)
	}
}

func httpMetricEndpointOptions(cfg *MetricsConfig) ([]otlpmetrichttp.Option, error) {
	log := mlog().With("transport", "http")
	murl, isCommon, err := parseMetricsEndpoint(cfg)
	if err != nil {
		return nil, err
	}
	log.Debug("Configuring exporter", "protocol", cfg.GetProtocol(), "endpoint", murl.Host)

	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(murl.Host)}
	if murl.Scheme == "http" || murl.Scheme == "unix" {
		log.Debug("Specifying insecure connection", "scheme", murl.Scheme)
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	// If the value is set from the OTEL_EXPORTER_OTLP_ENDPOINT common property, we need to add /v1/metrics to the path
	// otherwise, we leave the path that is explicitly set by the user
	urlPath := murl.Path
	if isCommon {
		urlPath = strings.TrimSuffix(urlPath, "/") + "/v1/metrics"
	}
	if urlPath != "" {
		log.Debug("Specifying path", "path", urlPath)
		opts = append(opts, otlpmetrichttp.WithURLPath(urlPath))
	}
	if cfg.InsecureSkipVerify {
		log.Debug("Setting InsecureSkipVerify")
		opts = append(opts, otlpmetrichttp.WithTLSClientConfig(&tls.Config{InsecureSkipVerify: true}))
	}
	return opts, nil
}

func grpcMetricEndpointOptions(cfg *MetricsConfig) ([]otlpmetricgrpc.Option, error) {
	log := mlog().With("transport", "grpc")
	murl, _, err := parseMetricsEndpoint(cfg)
	if err != nil {
		return nil, err
	}
	log.Debug("Configuring exporter", "protocol", cfg.GetProtocol(), "endpoint", murl.Host)

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(murl.Host)}
	if murl.Scheme == "http" || murl.Scheme == "unix" {
		log.Debug("Specifying insecure connection", "scheme", murl.Scheme)
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	if cfg.InsecureSkipVerify {
		log.Debug("Setting InsecureSkipVerify")
		opts = append(opts, otlpmetricgrpc.WithTLSCredentials(credentials.NewTLS(&tls.Config{InsecureSkipVerify: true})))
	}
	return opts, nil
}

func parseMetricsEndpoint(cfg *MetricsConfig) (*url.URL, bool, error) {
	endpoint, isCommon := cfg.OTLPMetricsEndpoint()

	murl, err := url.Parse(endpoint)
	if err != nil {
		return nil, isCommon, fmt.Errorf("parsing endpoint URL %s: %w", endpoint, err)
	}
	if murl.Scheme == "" || murl.Host == "" {
		return nil, isCommon, fmt.Errorf("URL %q must have a scheme and a host", endpoint)
	}
	return murl, isCommon, nil
}
