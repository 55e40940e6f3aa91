package otel

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const defaultServiceName = "procmetrics"

func otelResource(cfgSvcName, hostID string) *resource.Resource {
	svcName := cfgSvcName
	if svcName == "" {
		svcName = defaultServiceName
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceName(svcName),
		semconv.TelemetrySDKLanguageGo,
	}
	if hostID != "" {
		attrs = append(attrs, semconv.HostID(hostID))
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

// LogrAdaptor allows using our own logger to peek any warning or error in the OTEL exporters
type LogrAdaptor struct {
	inner *slog.Logger
}

// SetupInternalOTELSDKLogger redirects the OTEL SDK internal logs to slog, if a level is provided
func SetupInternalOTELSDKLogger(levelStr string) {
	log := slog.With("component", "otel.SDK")
	if levelStr == "" {
		return
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(levelStr)); err != nil {
		log.Warn("can't setup internal SDK logger level value. Ignoring", "error", err)
		return
	}
	log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: &lvl,
	})).With("component", "otel.SDK")
	otel.SetLogger(logr.New(&LogrAdaptor{inner: log}))
}

func (l *LogrAdaptor) Init(_ logr.RuntimeInfo) {}

// Enabled returns, according to OTEL internal description:
// To see Warn messages use a logger with `l.V(1).Enabled() == true`
// To see Info messages use a logger with `l.V(4).Enabled() == true`
// To see Debug messages use a logger with `l.V(8).Enabled() == true`.
// Info messages are degraded to debug.
func (l *LogrAdaptor) Enabled(level int) bool {
	if level < 4 {
		return l.inner.Enabled(context.TODO(), slog.LevelWarn)
	}
	return l.inner.Enabled(context.TODO(), slog.LevelDebug)
}

func (l *LogrAdaptor) Info(level int, msg string, keysAndValues ...any) {
	if level > 1 {
		l.inner.Debug(msg, keysAndValues...)
	} else {
		l.inner.Warn(msg, keysAndValues...)
	}
}

func (l *LogrAdaptor) Error(err error, msg string, keysAndValues ...any) {
	l.inner.Error(msg, append(keysAndValues, "error", err)...)
}

func (l *LogrAdaptor) WithValues(keysAndValues ...any) logr.LogSink {
	return &LogrAdaptor{inner: l.inner.With(keysAndValues...)}
}

func (l *LogrAdaptor) WithName(name string) logr.LogSink {
	return &LogrAdaptor{inner: l.inner.With("name", name)}
}
