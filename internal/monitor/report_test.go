package monitor

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/panewatch/internal/status"
	"github.com/asheshgoplani/panewatch/internal/tracker"
)

func TestComposeReport_SummaryLine(t *testing.T) {
	tr := tracker.New()
	tr.UpdateStatus("%1", status.StatusWorking)
	tr.UpdateStatus("%2", status.StatusWorking)
	tr.UpdateStatus("%3", status.StatusIdle)

	report := ComposeReport(tr, time.Date(2026, 8, 27, 9, 30, 0, 0, time.UTC))
	lines := strings.Split(report, "\n")
	require.Len(t, lines, 4)

	assert.Equal(t, "panewatch 09:30:00 | 3 panes | working:2 idle:1", lines[0])
}

func TestComposeReport_RowsSortedAndAligned(t *testing.T) {
	tr := tracker.New()
	tr.UpdateStatus("%3", status.StatusDone)
	tr.UpdateStatus("%1", status.StatusBlocked)

	report := ComposeReport(tr, time.Now())
	lines := strings.Split(report, "\n")
	require.Len(t, lines, 3)

	assert.True(t, strings.HasPrefix(lines[1], "%1"))
	assert.True(t, strings.HasPrefix(lines[2], "%3"))

	// Status column starts at a fixed offset regardless of pane id width
	assert.Equal(t, strings.Index(lines[1], "blocked"), strings.Index(lines[2], "done"))
}

func TestComposeReport_TransitionsCalledOut(t *testing.T) {
	tr := tracker.New()
	tr.UpdateStatus("%1", status.StatusWorking)
	tr.UpdateStatus("%1", status.StatusDone)
	tr.UpdateStatus("%2", status.StatusWorking)

	report := ComposeReport(tr, time.Now())
	assert.Contains(t, report, "working -> done")
	for _, line := range strings.Split(report, "\n") {
		if strings.HasPrefix(line, "%2") {
			assert.NotContains(t, line, "->", "no transition marker without a change")
		}
	}

	// After flags are cleared the transition marker disappears
	tr.ClearChangeFlags()
	report = ComposeReport(tr, time.Now())
	assert.NotContains(t, report, "->")
}

func TestComposeReport_LongPaneIDTruncated(t *testing.T) {
	tr := tracker.New()
	tr.UpdateStatus("%very-long-pane-identifier", status.StatusIdle)

	report := ComposeReport(tr, time.Now())
	assert.Contains(t, report, "…")
	assert.NotContains(t, report, "%very-long-pane-identifier")
}

func TestComposeReport_Empty(t *testing.T) {
	report := ComposeReport(tracker.New(), time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, "panewatch 12:00:00 | 0 panes | no panes", report)
}
