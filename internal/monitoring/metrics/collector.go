package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/theblitlabs/parity-monitor/internal/core/models"
	"github.com/theblitlabs/parity-monitor/internal/core/ports"
)

// DefaultMeasureWindow is the gap between the two tick snapshots of a cycle.
// Shorter windows leave too few ticks for a stable percentage.
const DefaultMeasureWindow = time.Second

// Collector pairs two tick snapshots around a fixed measurement window and
// combines the result with memory and load readings.
type Collector struct {
	sampler ports.TickSampler
	host    ports.HostReader
	window  time.Duration
	wait    func(ctx context.Context, d time.Duration) error
}

func NewCollector(sampler ports.TickSampler, host ports.HostReader, window time.Duration) *Collector {
	if window <= 0 {
		window = DefaultMeasureWindow
	}
	return &Collector{
		sampler: sampler,
		host:    host,
		window:  window,
		wait:    sleepContext,
	}
}

// Window returns the measurement window between the paired snapshots.
func (c *Collector) Window() time.Duration {
	return c.window
}

// Collect takes snapshot A, waits the measurement window, takes snapshot B
// and derives a full sample. The wait is only cut short by ctx.
func (c *Collector) Collect(ctx context.Context) (models.UtilizationSample, error) {
	before, err := c.sampler.Sample(ctx)
	if err != nil {
		return models.UtilizationSample{}, err
	}

	if err := c.wait(ctx, c.window); err != nil {
		return models.UtilizationSample{}, err
	}

	after, err := c.sampler.Sample(ctx)
	if err != nil {
		return models.UtilizationSample{}, err
	}

	cpuPercent, err := CPUPercent(before, after)
	if err != nil {
		return models.UtilizationSample{}, err
	}

	memory, err := c.host.MemoryUsage(ctx)
	if err != nil {
		return models.UtilizationSample{}, err
	}

	loadAvg, err := c.host.LoadAverages(ctx)
	if err != nil {
		return models.UtilizationSample{}, err
	}

	sample := models.UtilizationSample{
		CPUPercent: cpuPercent,
		Memory:     memory,
		Load:       loadAvg,
	}
	logSample(sample)
	return sample, nil
}

// Probe reads every host source once without pairing. It fails with
// ErrHostMetricsUnavailable when the host cannot be sampled.
func (c *Collector) Probe(ctx context.Context) error {
	if _, err := c.sampler.Sample(ctx); err != nil {
		return fmt.Errorf("cpu probe: %w", err)
	}
	if _, err := c.host.MemoryUsage(ctx); err != nil {
		return fmt.Errorf("memory probe: %w", err)
	}
	if _, err := c.host.LoadAverages(ctx); err != nil {
		return fmt.Errorf("load probe: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ ports.MetricsCollector = (*Collector)(nil)
