package metrics

import (
	"fmt"

	"github.com/theblitlabs/parity-monitor/internal/core/models"
)

// CPUPercent derives aggregate utilization from two snapshots of the same
// core set, b taken after a. The result is not rounded.
func CPUPercent(a, b models.TickSnapshot) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d cores before, %d after", ErrCoreCountMismatch, len(a), len(b))
	}

	var idleSum, totalSum int64
	for i := range a {
		idleSum += int64(b[i].Idle) - int64(a[i].Idle)
		totalSum += int64(b[i].Total) - int64(a[i].Total)
	}
	if totalSum <= 0 {
		return 0, fmt.Errorf("%w: total tick delta %d", ErrDegenerateInterval, totalSum)
	}

	pct := 100 * (1 - float64(idleSum)/float64(totalSum))
	switch {
	case pct < 0:
		return 0, nil
	case pct > 100:
		return 100, nil
	}
	return pct, nil
}
