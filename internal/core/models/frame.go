package models

import (
	"encoding/json"
	"strconv"
)

const bytesPerGB = 1 << 30

// StatsFrame is the message pushed to clients once per cycle. Every number is
// pre-formatted with two decimals because dashboards render the strings as-is.
type StatsFrame struct {
	CPU         string    `json:"cpu"`
	TotalMemory string    `json:"totalMemory"`
	UsedMemory  string    `json:"usedMemory"`
	FreeMemory  string    `json:"freeMemory"`
	MemoryUsage string    `json:"memoryUsage"`
	LoadAvg     [3]string `json:"loadAvg"`
}

func NewStatsFrame(s UtilizationSample) StatsFrame {
	return StatsFrame{
		CPU:         formatFixed(s.CPUPercent) + "%",
		TotalMemory: formatGB(s.Memory.TotalBytes),
		UsedMemory:  formatGB(s.Memory.UsedBytes),
		FreeMemory:  formatGB(s.Memory.FreeBytes),
		MemoryUsage: formatFixed(s.Memory.Percent) + "%",
		LoadAvg: [3]string{
			formatFixed(s.Load.Load1),
			formatFixed(s.Load.Load5),
			formatFixed(s.Load.Load15),
		},
	}
}

// Marshal encodes the frame as a single JSON object.
func (f StatsFrame) Marshal() ([]byte, error) {
	return json.Marshal(f)
}

func formatFixed(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatGB(b uint64) string {
	return formatFixed(float64(b)/bytesPerGB) + " GB"
}
