package global

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/contrib/detectors/aws/ec2/v2"
	"go.opentelemetry.io/contrib/detectors/azure/azurevm"
	"go.opentelemetry.io/contrib/detectors/gcp"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type hostIDFetcher func(context.Context, time.Duration) (string, error)

type fetcher struct {
	name  string
	fetch hostIDFetcher
}

func cilog() *slog.Logger {
	return slog.With("component", "ContextInfo")
}

// overridable for testing
var (
	cloudFetchers = []fetcher{
		{name: "AWS", fetch: ec2HostIDFetcher},
		{name: "Azure", fetch: azureHostIDFetcher},
		{name: "GCP", fetch: gcpHostIDFetcher},
	}
	machineIDFiles = []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}
	hostname       = os.Hostname
)

// FetchHostID tries to get the host ID from one of the following sources, by priority
// 1. If the sampler runs in AWS, GCP or Azure, it will take the instance ID
// 2. Otherwise, will try to read the machine ID from the local OS filesystem
// 3. Otherwise, will fallback to the Hostname
func (ci *ContextInfo) FetchHostID(ctx context.Context, timeout time.Duration) {
	log := cilog().With("func", "fetchHostID")
	fetchers := make([]fetcher, 0, len(cloudFetchers)+1)
	fetchers = append(fetchers, cloudFetchers...)
	fetchers = append(fetchers, fetcher{name: "local", fetch: localMachineIDFetcher})
	var err error
	for _, f := range fetchers {
		log := log.With("fetcher", f.name)
		log.Debug("trying to fetch host ID")
		var id string
		if id, err = f.fetch(ctx, timeout); err == nil {
			log.Info("got host ID", "hostID", id)
			ci.HostID = id
			return
		}
		log.Debug("didn't get host ID", "cause", err)
	}
	log.Debug("falling back to local host ID. This might be inaccurate in containerized systems")
	ci.HostID, err = hostname()
	if err != nil {
		log.Warn("getting host ID from host name", "error", err)
	}
}

func azureHostIDFetcher(ctx context.Context, timeout time.Duration) (string, error) {
	return detectHostID(ctx, timeout, azurevm.New())
}

func gcpHostIDFetcher(ctx context.Context, timeout time.Duration) (string, error) {
	return detectHostID(ctx, timeout, gcp.NewDetector())
}

func ec2HostIDFetcher(ctx context.Context, timeout time.Duration) (string, error) {
	return detectHostID(ctx, timeout, ec2.NewResourceDetector())
}

func detectHostID(ctx context.Context, timeout time.Duration, detector resource.Detector) (string, error) {
	// passing a cancellable context to detector.Detect does not always
	// end the connection prematurely, so we wrap its invocation into a goroutine
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resCh := make(chan *resource.Resource, 1)
	errCh := make(chan error, 1)
	go func() {
		if res, err := detector.Detect(cctx); err != nil {
			errCh <- err
		} else {
			resCh <- res
		}
	}()
	var res *resource.Resource
	select {
	case res = <-resCh:
	case err := <-errCh:
		return "", err
	case <-cctx.Done():
		return "", errors.New("timed out waiting for host ID connection")
	}
	for _, attr := range res.Attributes() {
		if attr.Key == semconv.HostIDKey {
			return attr.Value.Emit(), nil
		}
	}
	return "", fmt.Errorf("can't find host.id in %v", res.Attributes())
}

func localMachineIDFetcher(_ context.Context, _ time.Duration) (string, error) {
	var err error
	for _, file := range machineIDFiles {
		var result []byte
		if result, err = os.ReadFile(file); err == nil && len(bytes.TrimSpace(result)) > 0 {
			return string(bytes.TrimSpace(result)), nil
		}
	}
	return "", fmt.Errorf("can't read host ID: %w", err)
}
