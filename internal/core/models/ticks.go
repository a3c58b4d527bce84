package models

// CoreTicks is the cumulative CPU time of one logical core, in ticks.
// Total covers every accounted state, idle included.
type CoreTicks struct {
	Idle  uint64 `json:"idle"`
	Total uint64 `json:"total"`
}

// TickSnapshot holds one CoreTicks entry per logical core, captured at a
// single instant. Only two snapshots of the same core set can be compared.
type TickSnapshot []CoreTicks
