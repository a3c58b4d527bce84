package metrics

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/theblitlabs/parity-monitor/internal/core/models"
	"github.com/theblitlabs/parity-monitor/internal/core/ports"
	"github.com/theblitlabs/parity-monitor/pkg/logger"
)

// TicksPerSecond converts the CPU seconds reported by gopsutil back into
// kernel ticks (USER_HZ).
const TicksPerSecond = 100

// HostSampler reads CPU ticks, memory and load averages from the host.
type HostSampler struct {
	cpuTimes      func(ctx context.Context, percpu bool) ([]cpu.TimesStat, error)
	virtualMemory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	loadAvg       func(ctx context.Context) (*load.AvgStat, error)
}

// NewHostSampler creates a sampler backed by gopsutil.
func NewHostSampler() *HostSampler {
	return &HostSampler{
		cpuTimes:      cpu.TimesWithContext,
		virtualMemory: mem.VirtualMemoryWithContext,
		loadAvg:       load.AvgWithContext,
	}
}

// Sample returns one CoreTicks entry per logical core.
func (s *HostSampler) Sample(ctx context.Context) (models.TickSnapshot, error) {
	times, err := s.cpuTimes(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("%w: reading cpu times: %w", ErrHostMetricsUnavailable, err)
	}
	if len(times) == 0 {
		return nil, fmt.Errorf("%w: no cpu times reported on %s/%s", ErrHostMetricsUnavailable, runtime.GOOS, runtime.GOARCH)
	}

	snapshot := make(models.TickSnapshot, len(times))
	for i, t := range times {
		snapshot[i] = coreTicks(t)
	}
	return snapshot, nil
}

// MemoryUsage reports used memory as total minus available.
func (s *HostSampler) MemoryUsage(ctx context.Context) (models.MemoryUsage, error) {
	vm, err := s.virtualMemory(ctx)
	if err != nil {
		return models.MemoryUsage{}, fmt.Errorf("%w: reading memory: %w", ErrHostMetricsUnavailable, err)
	}
	if vm == nil || vm.Total == 0 {
		return models.MemoryUsage{}, fmt.Errorf("%w: host reported zero total memory", ErrHostMetricsUnavailable)
	}
	return memoryUsage(vm.Total, vm.Available), nil
}

// LoadAverages returns the OS load averages unchanged.
func (s *HostSampler) LoadAverages(ctx context.Context) (models.LoadAverages, error) {
	avg, err := s.loadAvg(ctx)
	if err != nil {
		return models.LoadAverages{}, fmt.Errorf("%w: reading load averages: %w", ErrHostMetricsUnavailable, err)
	}
	if avg == nil {
		return models.LoadAverages{}, fmt.Errorf("%w: no load averages reported", ErrHostMetricsUnavailable)
	}
	return models.LoadAverages{Load1: avg.Load1, Load5: avg.Load5, Load15: avg.Load15}, nil
}

func memoryUsage(total, free uint64) models.MemoryUsage {
	if free > total {
		free = total
	}
	used := total - free
	return models.MemoryUsage{
		TotalBytes: total,
		UsedBytes:  used,
		FreeBytes:  free,
		Percent:    100 * float64(used) / float64(total),
	}
}

// coreTicks folds iowait into idle. Guest time is already part of user on
// Linux, so it is not added again. Tools that ignore iowait, softirq and steal
// report a higher CPU% than this on hosts with heavy disk wait.
func coreTicks(t cpu.TimesStat) models.CoreTicks {
	idle := toTicks(t.Idle) + toTicks(t.Iowait)
	busy := toTicks(t.User) + toTicks(t.Nice) + toTicks(t.System) +
		toTicks(t.Irq) + toTicks(t.Softirq) + toTicks(t.Steal)
	return models.CoreTicks{Idle: idle, Total: idle + busy}
}

func toTicks(seconds float64) uint64 {
	if seconds <= 0 {
		return 0
	}
	return uint64(math.Round(seconds * TicksPerSecond))
}

func logSample(sample models.UtilizationSample) {
	log := logger.WithComponent("metrics")
	log.Debug().
		Float64("cpu_percent", sample.CPUPercent).
		Uint64("memory_used", sample.Memory.UsedBytes).
		Uint64("memory_total", sample.Memory.TotalBytes).
		Float64("load1", sample.Load.Load1).
		Msg("System metrics collected")
}

var (
	_ ports.TickSampler = (*HostSampler)(nil)
	_ ports.HostReader  = (*HostSampler)(nil)
)
