package models

// MemoryUsage is an instantaneous reading of host memory.
type MemoryUsage struct {
	TotalBytes uint64  `json:"total_bytes"`
	UsedBytes  uint64  `json:"used_bytes"`
	FreeBytes  uint64  `json:"free_bytes"`
	Percent    float64 `json:"percent"`
}

// LoadAverages are the 1, 5 and 15 minute run-queue averages as reported by the OS.
type LoadAverages struct {
	Load1  float64 `json:"load1"`
	Load5  float64 `json:"load5"`
	Load15 float64 `json:"load15"`
}

// UtilizationSample is the result of one sampling cycle. It is recomputed
// every cycle and never stored.
type UtilizationSample struct {
	CPUPercent float64      `json:"cpu_percent"`
	Memory     MemoryUsage  `json:"memory"`
	Load       LoadAverages `json:"load"`
}
