package global

import (
	"github.com/grafana/procmetrics/pkg/connector"
	"github.com/grafana/procmetrics/pkg/imetrics"
)

// ContextInfo stores the information that must be shared between the components
// that are instantiated from the command line: exporters, sessions and internal metrics.
type ContextInfo struct {
	// HostID of the host running the sampler. Unless testing environments, this value must be
	// automatically set after invoking FetchHostID
	HostID string
	// Metrics that are internal to the sampler
	Metrics imetrics.Reporter
	// Prometheus connection manager to coordinate metrics exposition from diverse components
	Prometheus *connector.PrometheusManager
}
