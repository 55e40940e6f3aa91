// Package connector provides tools for sharing the connection of diverse exporters
// (process metrics, internal metrics...) through the same Prometheus scrape endpoints
package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultPath is used by registrars that don't specify any path
const DefaultPath = "/metrics"

func log() *slog.Logger {
	return slog.With("component", "connector.PrometheusManager")
}

// PrometheusManager allows exporting metrics from different sources (process metrics, internal metrics...)
// sharing the same port and path, or using different ones, depending on the configuration provided by the registrars.
type PrometheusManager struct {
	// OnRequest, if set, is invoked on each scrape request
	OnRequest func(port, path string)

	started atomic.Bool
	mutex   sync.Mutex
	// key 1: port. Key 2: path
	registries map[int]map[string]*prometheus.Registry
}

// Register a set of prometheus metrics to be accessible through an HTTP port/path.
func (pm *PrometheusManager) Register(port int, path string, collectors ...prometheus.Collector) {
	log().Debug("registering Prometheus metrics collectors",
		"len", len(collectors), "port", port, "path", path)
	pm.Registry(port, path).MustRegister(collectors...)
}

// Registry returns the registry for the given port and path, creating it if it does not exist.
// An empty path is registered as DefaultPath.
func (pm *PrometheusManager) Registry(port int, path string) *prometheus.Registry {
	if path == "" {
		path = DefaultPath
	}
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	if pm.registries == nil {
		pm.registries = map[int]map[string]*prometheus.Registry{}
	}
	paths, ok := pm.registries[port]
	if !ok {
		paths = map[string]*prometheus.Registry{}
		pm.registries[port] = paths
	}
	reg, ok := paths[path]
	if !ok {
		reg = prometheus.NewRegistry()
		paths[path] = reg
	}
	return reg
}

// StartHTTP serves metrics in background. Its invocation won't have effect if it has been invoked previously,
// so invoke it only after you are sure that all the registries have been created.
func (pm *PrometheusManager) StartHTTP(ctx context.Context) {
	if pm.started.Swap(true) {
		return
	}
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	log := log()
	// Creating a serve mux for each port
	for port, paths := range pm.registries {
		mux := http.NewServeMux()
		for path, registry := range paths {
			log.Info("opening prometheus scrape endpoint", "port", port, "path", path)
			promHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
			mux.Handle(path, pm.wrapHandler(log, port, path, promHandler))
		}
		pm.listenAndServe(ctx, port, mux)
	}
}

func (pm *PrometheusManager) wrapHandler(log *slog.Logger, port int, path string, promHandler http.Handler) http.HandlerFunc {
	portStr := strconv.Itoa(port)
	return func(rw http.ResponseWriter, req *http.Request) {
		log.Debug("received metrics request", "uri", req.RequestURI, "remoteAddr", req.RemoteAddr)
		if pm.OnRequest != nil {
			pm.OnRequest(portStr, path)
		}
		promHandler.ServeHTTP(rw, req)
	}
}

func (pm *PrometheusManager) listenAndServe(ctx context.Context, port int, handler http.Handler) {
	server := http.Server{Addr: fmt.Sprintf(":%d", port), Handler: handler}
	log := log().With("port", port)
	go func() {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			log.Debug("HTTP server was closed", "error", err)
		} else {
			log.Error("HTTP service ended unexpectedly", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		if err := server.Close(); err != nil {
			log.Warn("error closing HTTP server", "error", err)
		}
	}()
}
