// Package tracker records the current and previous worker status per pane id
// and reports transitions between monitoring cycles.
package tracker

import (
	"sort"

	"github.com/asheshgoplani/panewatch/internal/status"
)

// Record is the per-pane status entry. Previous is set only when a real
// transition happened and is cleared after reporting.
type Record struct {
	Current  status.WorkerStatus
	Previous *status.WorkerStatus
}

// Tracker holds one Record per observed pane id. Records are never expired
// within a run; pane ids are stable for the underlying pane's lifetime.
type Tracker struct {
	records map[string]*Record
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{records: make(map[string]*Record)}
}

// UpdateStatus records an observation. It returns true iff this is the first
// observation of the pane or the status differs from the current one.
// Repeated observations of the same status report a change only once.
func (t *Tracker) UpdateStatus(paneID string, s status.WorkerStatus) bool {
	rec, ok := t.records[paneID]
	if !ok {
		t.records[paneID] = &Record{Current: s}
		return true
	}
	if rec.Current == s {
		return false
	}
	prev := rec.Current
	rec.Previous = &prev
	rec.Current = s
	return true
}

// Status returns the current status for a pane, if observed.
func (t *Tracker) Status(paneID string) (status.WorkerStatus, bool) {
	rec, ok := t.records[paneID]
	if !ok {
		return status.StatusUnknown, false
	}
	return rec.Current, true
}

// ChangedPanes returns the ids whose record currently carries a previous
// status, sorted for deterministic reporting.
func (t *Tracker) ChangedPanes() []string {
	var ids []string
	for id, rec := range t.records {
		if rec.Previous != nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Transition returns (previous, current) for a pane that changed this cycle.
func (t *Tracker) Transition(paneID string) (from, to status.WorkerStatus, ok bool) {
	rec, exists := t.records[paneID]
	if !exists || rec.Previous == nil {
		return status.StatusUnknown, status.StatusUnknown, false
	}
	return *rec.Previous, rec.Current, true
}

// ClearChangeFlags removes the previous status from every record, marking the
// pending transitions as reported.
func (t *Tracker) ClearChangeFlags() {
	for _, rec := range t.records {
		rec.Previous = nil
	}
}

// DoneAndIdlePanes returns ids currently done or idle, sorted.
func (t *Tracker) DoneAndIdlePanes() []string {
	return t.filter(func(s status.WorkerStatus) bool {
		return s == status.StatusDone || s == status.StatusIdle
	})
}

// DonePanes returns ids currently done, sorted.
func (t *Tracker) DonePanes() []string {
	return t.filter(func(s status.WorkerStatus) bool {
		return s == status.StatusDone
	})
}

// PaneIDs returns every observed pane id, sorted.
func (t *Tracker) PaneIDs() []string {
	return t.filter(func(status.WorkerStatus) bool { return true })
}

// CountByStatus returns how many panes currently hold each status.
func (t *Tracker) CountByStatus() map[status.WorkerStatus]int {
	counts := make(map[status.WorkerStatus]int)
	for _, rec := range t.records {
		counts[rec.Current]++
	}
	return counts
}

// Len reports how many panes have been observed.
func (t *Tracker) Len() int {
	return len(t.records)
}

func (t *Tracker) filter(keep func(status.WorkerStatus) bool) []string {
	var ids []string
	for id, rec := range t.records {
		if keep(rec.Current) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
