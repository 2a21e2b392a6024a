// Package capture diffs successive pane-content snapshots, classifies
// activity, and maps the result to a worker status with a reasoning trail.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/asheshgoplani/panewatch/internal/logging"
	"github.com/asheshgoplani/panewatch/internal/status"
)

var captureLog = logging.ForComponent(logging.CompCapture)

// ActivityStatus summarizes whether pane content changed between two
// observations.
type ActivityStatus string

const (
	ActivityWorking      ActivityStatus = "working"
	ActivityIdle         ActivityStatus = "idle"
	ActivityNotEvaluated ActivityStatus = "not_evaluated"
)

// ContentSource supplies the current visible content of a pane.
type ContentSource interface {
	CapturePane(ctx context.Context, paneID string) (string, error)
}

// Hints carries the pane attributes the secondary mapping consults.
type Hints struct {
	Title   string
	Command string
}

// Result is the outcome of one detection pass over one pane.
type Result struct {
	PaneID            string
	HasContentChanged bool
	FirstObservation  bool
	InputField        InputFieldState
	Activity          ActivityStatus
	Status            status.WorkerStatus

	// Reasoning is the ordered trail of mapping decisions, for observability.
	Reasoning []string
}

// Detector compares successive content snapshots per pane. The history map is
// only touched by the single monitoring flow; the mutex exists for the
// batched fan-out, where per-pane goroutines store their snapshots.
type Detector struct {
	source ContentSource

	mu      sync.Mutex
	history map[string]string
}

// NewDetector creates a detector reading content from source.
func NewDetector(source ContentSource) *Detector {
	return &Detector{
		source:  source,
		history: make(map[string]string),
	}
}

// Detect runs the detection pipeline for one pane. Capture failures propagate
// as errors with no retry; everything after a successful capture is total.
// The stored snapshot is overwritten unconditionally once capture succeeds.
func (d *Detector) Detect(ctx context.Context, paneID string, hints Hints) (Result, error) {
	if strings.TrimSpace(paneID) == "" {
		return Result{}, fmt.Errorf("detect: empty pane id")
	}

	content, err := d.source.CapturePane(ctx, paneID)
	if err != nil {
		return Result{}, fmt.Errorf("detect %s: %w", paneID, err)
	}

	d.mu.Lock()
	prev, seen := d.history[paneID]
	d.history[paneID] = content
	d.mu.Unlock()

	res := Result{
		PaneID:           paneID,
		FirstObservation: !seen,
	}

	// First observation is the baseline: by definition nothing changed yet.
	if seen && content != prev {
		res.HasContentChanged = true
	}

	res.InputField = ParseInputField(content)

	switch {
	case !seen:
		res.Activity = ActivityNotEvaluated
	case res.HasContentChanged:
		res.Activity = ActivityWorking
	default:
		res.Activity = ActivityIdle
	}

	res.Status, res.Reasoning = mapActivity(res, hints)

	logging.Aggregate(logging.CompCapture, "pane_detect",
		slog.String("activity", string(res.Activity)),
		slog.String("input_field", string(res.InputField)))

	return res, nil
}

// mapActivity is the secondary table from (activity, input state, hints) to a
// worker status. Rows are evaluated in order; every consulted row leaves a
// trail entry.
func mapActivity(res Result, hints Hints) (status.WorkerStatus, []string) {
	var trail []string

	// Stamped titles win over anything observed in content.
	if s, ok := status.FromTitle(hints.Title); ok {
		trail = append(trail, fmt.Sprintf("title carries status token %s", s.Token()))
		return s, trail
	}
	trail = append(trail, "title carries no status token")

	switch res.Activity {
	case ActivityNotEvaluated:
		trail = append(trail, "first observation, baseline only")
		return status.StatusUnknown, trail

	case ActivityWorking:
		trail = append(trail, "content changed since last observation")
		return status.StatusWorking, trail
	}

	trail = append(trail, "content stable since last observation")

	switch res.InputField {
	case InputHasText:
		trail = append(trail, "input field holds unsent text, waiting on user")
		return status.StatusBlocked, trail
	case InputEmpty:
		trail = append(trail, "input field empty")
		return status.StatusIdle, trail
	case InputNoField:
		trail = append(trail, "no input field visible")
		if isShellHint(hints.Command) {
			trail = append(trail, fmt.Sprintf("command %q is a shell", hints.Command))
			return status.StatusIdle, trail
		}
		return status.StatusDone, trail
	default:
		trail = append(trail, "input field unparseable")
		return status.StatusUnknown, trail
	}
}

func isShellHint(command string) bool {
	switch strings.ToLower(strings.TrimSpace(command)) {
	case "bash", "zsh", "sh", "fish", "dash", "ksh", "tcsh":
		return true
	}
	return false
}

// BatchItem names one pane in a batched detection pass.
type BatchItem struct {
	PaneID string
	Hints  Hints
}

// DetectAll fans the detection pipeline out across panes concurrently.
// A single pane's failure is collected without aborting the others, but the
// aggregate call reports an error if any pane failed.
func (d *Detector) DetectAll(ctx context.Context, items []BatchItem) ([]Result, error) {
	results := make([]Result, len(items))
	failed := make([]error, len(items))

	var g errgroup.Group
	for i, item := range items {
		g.Go(func() error {
			res, err := d.Detect(ctx, item.PaneID, item.Hints)
			if err != nil {
				captureLog.Warn("pane_detect_failed",
					slog.String("pane", item.PaneID),
					slog.String("error", err.Error()))
				failed[i] = err
				return nil // keep the rest of the batch running
			}
			results[i] = res
			return nil
		})
	}
	// Detect never returns through the group; Wait only joins.
	_ = g.Wait()

	var ok []Result
	for i, res := range results {
		if failed[i] == nil {
			ok = append(ok, res)
		}
	}
	sort.Slice(ok, func(i, j int) bool { return ok[i].PaneID < ok[j].PaneID })

	if err := errors.Join(failed...); err != nil {
		return ok, fmt.Errorf("detect batch: %w", err)
	}
	return ok, nil
}

// ClearHistory drops all stored snapshots. The next observation of every pane
// becomes a fresh baseline.
func (d *Detector) ClearHistory() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = make(map[string]string)
}

// HistorySize reports how many panes have a stored snapshot.
func (d *Detector) HistorySize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.history)
}
