package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func parseNumber(t *testing.T, s, suffix string) float64 {
	t.Helper()
	require.True(t, strings.HasSuffix(s, suffix), "%q should end with %q", s, suffix)
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, suffix), 64)
	require.NoError(t, err)
	return v
}

func TestNewStatsFrame(t *testing.T) {
	t.Run("memory_scenario", func(t *testing.T) {
		sample := UtilizationSample{
			CPUPercent: 50,
			Memory: MemoryUsage{
				TotalBytes: 16_000_000_000,
				UsedBytes:  12_000_000_000,
				FreeBytes:  4_000_000_000,
				Percent:    75,
			},
			Load: LoadAverages{Load1: 1, Load5: 0.5, Load15: 0.25},
		}

		frame := NewStatsFrame(sample)
		assert.Equal(t, "50.00%", frame.CPU)
		assert.Equal(t, "14.90 GB", frame.TotalMemory)
		assert.Equal(t, "11.18 GB", frame.UsedMemory)
		assert.Equal(t, "3.73 GB", frame.FreeMemory)
		assert.Equal(t, "75.00%", frame.MemoryUsage)
		assert.Equal(t, [3]string{"1.00", "0.50", "0.25"}, frame.LoadAvg)
	})

	t.Run("json_field_names", func(t *testing.T) {
		data, err := NewStatsFrame(UtilizationSample{CPUPercent: 23.4678}).Marshal()
		require.NoError(t, err)

		var raw map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &raw))
		assert.Len(t, raw, 6)
		assert.Equal(t, "23.47%", raw["cpu"])
		assert.Equal(t, "0.00 GB", raw["totalMemory"])
		assert.Contains(t, raw, "usedMemory")
		assert.Contains(t, raw, "freeMemory")
		assert.Equal(t, "0.00%", raw["memoryUsage"])
		assert.Equal(t, []interface{}{"0.00", "0.00", "0.00"}, raw["loadAvg"])
	})

	t.Run("round_trip", func(t *testing.T) {
		samples := []UtilizationSample{
			{
				CPUPercent: 23.4678,
				Memory:     MemoryUsage{TotalBytes: 8_589_934_592, UsedBytes: 3_221_225_472, FreeBytes: 5_368_709_120, Percent: 37.5},
				Load:       LoadAverages{Load1: 1.234, Load5: 0.5, Load15: 7.899},
			},
			{
				CPUPercent: 99.991,
				Memory:     MemoryUsage{TotalBytes: 33_554_432_000, UsedBytes: 31_000_000_000, FreeBytes: 2_554_432_000, Percent: 92.3874},
				Load:       LoadAverages{Load1: 12.3456, Load5: 10.0001, Load15: 3.14159},
			},
			{},
		}

		for _, s := range samples {
			data, err := NewStatsFrame(s).Marshal()
			require.NoError(t, err)

			var frame StatsFrame
			require.NoError(t, json.Unmarshal(data, &frame))

			assert.InDelta(t, round2(s.CPUPercent), parseNumber(t, frame.CPU, "%"), 1e-9)
			assert.InDelta(t, round2(s.Memory.Percent), parseNumber(t, frame.MemoryUsage, "%"), 1e-9)
			assert.InDelta(t, round2(float64(s.Memory.TotalBytes)/bytesPerGB), parseNumber(t, frame.TotalMemory, " GB"), 1e-9)
			assert.InDelta(t, round2(float64(s.Memory.UsedBytes)/bytesPerGB), parseNumber(t, frame.UsedMemory, " GB"), 1e-9)
			assert.InDelta(t, round2(float64(s.Memory.FreeBytes)/bytesPerGB), parseNumber(t, frame.FreeMemory, " GB"), 1e-9)

			loads := []float64{s.Load.Load1, s.Load.Load5, s.Load.Load15}
			for i, l := range loads {
				assert.InDelta(t, round2(l), parseNumber(t, frame.LoadAvg[i], ""), 1e-9)
			}
		}
	})
}
