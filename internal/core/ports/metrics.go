package ports

import (
	"context"

	"github.com/theblitlabs/parity-monitor/internal/core/models"
)

// TickSampler reads the per-core CPU tick counters of the host.
type TickSampler interface {
	Sample(ctx context.Context) (models.TickSnapshot, error)
}

// HostReader reads the instantaneous, non-paired host metrics.
type HostReader interface {
	MemoryUsage(ctx context.Context) (models.MemoryUsage, error)
	LoadAverages(ctx context.Context) (models.LoadAverages, error)
}

// MetricsCollector produces one UtilizationSample per call.
type MetricsCollector interface {
	Collect(ctx context.Context) (models.UtilizationSample, error)
	Probe(ctx context.Context) error
}
