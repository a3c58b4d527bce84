package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/theblitlabs/parity-monitor/internal/config"
	"github.com/theblitlabs/parity-monitor/internal/core/models"
	"github.com/theblitlabs/parity-monitor/internal/core/ports"
	"github.com/theblitlabs/parity-monitor/internal/monitoring/metrics"
)

// RunSnapshot measures the host once and writes a single stats frame to out.
func RunSnapshot(configPath string, out io.Writer) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	sampler := metrics.NewHostSampler()
	collector := metrics.NewCollector(sampler, sampler, cfg.Sampler.MeasureWindow)

	ctx, cancel := context.WithTimeout(context.Background(), collector.Window()+probeTimeout)
	defer cancel()

	return writeSnapshot(ctx, collector, out)
}

func writeSnapshot(ctx context.Context, collector ports.MetricsCollector, out io.Writer) error {
	sample, err := collector.Collect(ctx)
	if err != nil {
		return fmt.Errorf("failed to measure host: %w", err)
	}

	payload, err := models.NewStatsFrame(sample).Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	_, err = fmt.Fprintln(out, string(payload))
	return err
}
