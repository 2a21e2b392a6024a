package monitor

import "time"

// Diagnostics is a point-in-time read of the scheduler's counters, exposed to
// the CLI for one-shot inspection.
type Diagnostics struct {
	Phase          Phase          `json:"phase"`
	Cycles         int            `json:"cycles"`
	LastCycle      time.Time      `json:"last_cycle,omitzero"`
	TrackedPanes   int            `json:"tracked_panes"`
	ClearedPanes   int            `json:"cleared_panes"`
	HistoryEntries int            `json:"history_entries"`
	CountsByStatus map[string]int `json:"counts_by_status"`
}

// Diagnostics snapshots current counts by status and role.
func (s *Scheduler) Diagnostics() Diagnostics {
	counts := make(map[string]int)
	for st, n := range s.tracker.CountByStatus() {
		counts[string(st)] = n
	}
	return Diagnostics{
		Phase:          s.phase,
		Cycles:         s.cycles,
		LastCycle:      s.lastCycle,
		TrackedPanes:   s.tracker.Len(),
		ClearedPanes:   s.clearer.ClearedCount(),
		HistoryEntries: s.detect.HistorySize(),
		CountsByStatus: counts,
	}
}
