// Package status infers a discrete worker status for a pane from its title
// and current command, via an ordered first-match-wins rule chain.
package status

import "strings"

// WorkerStatus is the discrete lifecycle state assigned to a worker pane.
type WorkerStatus string

const (
	StatusIdle       WorkerStatus = "idle"
	StatusWorking    WorkerStatus = "working"
	StatusBlocked    WorkerStatus = "blocked"
	StatusDone       WorkerStatus = "done"
	StatusTerminated WorkerStatus = "terminated"
	StatusUnknown    WorkerStatus = "unknown"
)

// Token returns the uppercase form stamped into pane titles.
func (s WorkerStatus) Token() string {
	return strings.ToUpper(string(s))
}

// titleTokenOrder is the scan order for title tokens. Statuses that announce
// attention or completion are checked before the catch-all working token so a
// title like "DONE (was WORKING)" resolves to the most recent stamp first.
var titleTokenOrder = []WorkerStatus{
	StatusBlocked,
	StatusTerminated,
	StatusDone,
	StatusWorking,
	StatusIdle,
	StatusUnknown,
}

// FromTitle returns the status whose token appears in the title
// (case-insensitive substring), if any. Stamped titles are authoritative.
func FromTitle(title string) (WorkerStatus, bool) {
	upper := strings.ToUpper(title)
	for _, s := range titleTokenOrder {
		if strings.Contains(upper, s.Token()) {
			return s, true
		}
	}
	return StatusUnknown, false
}

// Parse maps a config string to a WorkerStatus, defaulting to working.
func Parse(s string) WorkerStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "idle":
		return StatusIdle
	case "working":
		return StatusWorking
	case "blocked":
		return StatusBlocked
	case "done":
		return StatusDone
	case "terminated":
		return StatusTerminated
	case "unknown":
		return StatusUnknown
	default:
		return StatusWorking
	}
}
