package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/asheshgoplani/panewatch/internal/status"
	"github.com/asheshgoplani/panewatch/internal/tracker"
)

// reportStatusOrder fixes the column order of the summary line.
var reportStatusOrder = []status.WorkerStatus{
	status.StatusWorking,
	status.StatusIdle,
	status.StatusBlocked,
	status.StatusDone,
	status.StatusTerminated,
	status.StatusUnknown,
}

const (
	reportColID     = 12
	reportColStatus = 11
)

// ComposeReport renders the consolidated status report delivered to the
// operator pane: a summary line plus one aligned row per worker pane, with
// transitions called out.
func ComposeReport(t *tracker.Tracker, now time.Time) string {
	counts := t.CountByStatus()

	var summary []string
	for _, s := range reportStatusOrder {
		if n := counts[s]; n > 0 {
			summary = append(summary, fmt.Sprintf("%s:%d", s, n))
		}
	}
	if len(summary) == 0 {
		summary = append(summary, "no panes")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "panewatch %s | %d panes | %s\n",
		now.Format("15:04:05"), t.Len(), strings.Join(summary, " "))

	changed := make(map[string]bool)
	for _, id := range t.ChangedPanes() {
		changed[id] = true
	}

	for _, id := range t.PaneIDs() {
		cur, _ := t.Status(id)
		row := runewidth.FillRight(runewidth.Truncate(id, reportColID, "…"), reportColID) +
			" " + runewidth.FillRight(string(cur), reportColStatus)
		if changed[id] {
			if from, to, ok := t.Transition(id); ok {
				row += fmt.Sprintf(" %s -> %s", from, to)
			}
		}
		b.WriteString(strings.TrimRight(row, " "))
		b.WriteByte('\n')
	}

	return strings.TrimRight(b.String(), "\n")
}
