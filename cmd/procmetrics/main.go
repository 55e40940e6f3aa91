package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/grafana/procmetrics/pkg/connector"
	"github.com/grafana/procmetrics/pkg/export/otel"
	"github.com/grafana/procmetrics/pkg/imetrics"
	"github.com/grafana/procmetrics/pkg/pipe/global"
	"github.com/grafana/procmetrics/pkg/procmetrics"
)

func main() {
	lvl := slog.LevelVar{}
	lvl.Set(slog.LevelInfo)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: &lvl,
	})))

	configPath := flag.String("config", "", "path to the configuration file")
	once := flag.Bool("once", false, "record the process metrics once and exit")
	flag.Parse()

	config := loadConfig(configPath)

	if err := lvl.UnmarshalText([]byte(config.LogLevel)); err != nil {
		slog.Error("unknown log level specified, choices are [DEBUG, INFO, WARN, ERROR]", "error", err)
		os.Exit(-1)
	}
	if err := config.Validate(); err != nil {
		slog.Error("wrong configuration", "error", err)
		os.Exit(-1)
	}
	otel.SetupInternalOTELSDKLogger(config.Metrics.SDKLogLevel)

	// Adding shutdown hook for graceful stop.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctxInfo := buildContextInfo(ctx, config)
	provider, err := otel.NewMeterProvider(ctx, &config.Metrics, ctxInfo)
	if err != nil {
		slog.Error("can't instantiate metrics exporter", "error", err)
		os.Exit(-1)
	}
	ctxInfo.Metrics.Start(ctx)
	ctxInfo.Prometheus.StartHTTP(ctx)

	samplerCfg := config.Sampler
	samplerCfg.Reporter = ctxInfo.Metrics
	if *once {
		samplerCfg.Mode = procmetrics.ModePush
		samplerCfg.Iterations = 1
	}
	runErr := observe(ctx, provider.Meter(otel.ReporterName), config.PIDs, &samplerCfg)

	// the metrics are flushed on shutdown, even if the main context has been cancelled
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.ShutdownTimeout)
	defer cancel()
	if err := provider.Shutdown(sctx); err != nil {
		slog.Warn("error shutting down metrics provider", "error", err)
	}
	if runErr != nil {
		slog.Error("process observation failed", "error", runErr)
		os.Exit(1)
	}
}

// observe runs one independent session per pid, or a session observing this process if
// no pids are provided, until all of them finish or the context is cancelled.
func observe(ctx context.Context, meter metric.Meter, pids []uint32, cfg *procmetrics.SamplerConfig) error {
	g, gctx := errgroup.WithContext(ctx)
	start := func(start func() (*procmetrics.Session, error)) {
		g.Go(func() error {
			s, err := start()
			if err != nil {
				return err
			}
			slog.Info("observing process", "pid", s.PID(), "mode", s.Mode(),
				"executable", s.Identity().ExecutablePath)
			return s.Wait()
		})
	}
	if len(pids) == 0 {
		start(func() (*procmetrics.Session, error) {
			return procmetrics.StartObservingCurrentProcess(gctx, meter, cfg)
		})
	}
	for _, pid := range pids {
		start(func() (*procmetrics.Session, error) {
			return procmetrics.StartObservingPID(gctx, meter, pid, cfg)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func buildContextInfo(ctx context.Context, config *procmetrics.Config) *global.ContextInfo {
	promMgr := &connector.PrometheusManager{}
	ctxInfo := &global.ContextInfo{
		Prometheus: promMgr,
		Metrics:    imetrics.NoopReporter{},
	}
	if config.InternalMetrics.Enabled() {
		slog.Debug("reporting internal metrics as Prometheus")
		reporter := imetrics.NewPrometheusReporter(&config.InternalMetrics.Prometheus, promMgr)
		promMgr.OnRequest = reporter.PrometheusRequest
		ctxInfo.Metrics = reporter
	}
	if config.HostID.Override == "" {
		ctxInfo.FetchHostID(ctx, config.HostID.FetchTimeout)
	} else {
		ctxInfo.HostID = config.HostID.Override
	}
	return ctxInfo
}

func loadConfig(configPath *string) *procmetrics.Config {
	var configReader io.ReadCloser
	if configPath != nil && *configPath != "" {
		var err error
		if configReader, err = os.Open(*configPath); err != nil {
			slog.Error("can't open "+*configPath, "error", err)
			os.Exit(-1)
		}
		defer configReader.Close()
	}
	config, err := procmetrics.LoadConfig(configReader)
	if err != nil {
		slog.Error("wrong configuration", "error", err)
		os.Exit(-1)
	}
	return config
}
