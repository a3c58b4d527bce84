package metrics

import "errors"

var (
	// ErrHostMetricsUnavailable means the host does not expose CPU timing,
	// memory or load information. It is fatal for the process.
	ErrHostMetricsUnavailable = errors.New("host metrics unavailable")

	// ErrDegenerateInterval means two paired snapshots show no tick progress,
	// so no utilization can be derived for that cycle.
	ErrDegenerateInterval = errors.New("degenerate sampling interval")

	// ErrCoreCountMismatch means two snapshots were taken on different core sets.
	ErrCoreCountMismatch = errors.New("core count changed between snapshots")
)
