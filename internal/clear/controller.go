// Package clear drives the clear directive against newly idle or done panes,
// verifies the pane actually reached the post-clear state, and runs a bounded
// recovery sequence when verification fails.
package clear

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/asheshgoplani/panewatch/internal/logging"
	"github.com/asheshgoplani/panewatch/internal/tmuxc"
)

var clearLog = logging.ForComponent(logging.CompClear)

// State is the per-pane position in the clear/recovery machine.
type State string

const (
	StateNotCleared        State = "not_cleared"
	StateClearSent         State = "clear_sent"
	StateVerifying         State = "verifying"
	StateClearedConfirmed  State = "cleared_confirmed"
	StateRecoveryAttempted State = "recovery_attempted"
)

// Mismatch classification after a failed verification.
type Mismatch string

const (
	MismatchNone            Mismatch = ""
	MismatchDuplicateToken  Mismatch = "duplicate_clear_token"
	MismatchMissingNoMarker Mismatch = "missing_no_content_marker"
	MismatchOther           Mismatch = "unexpected_content"
)

// Recovery sequence delays. Clear commands can silently fail against a wedged
// input handler; the cancel/confirm/cancel dance unwedges the common cases.
const (
	recoveryCancelDelay  = 1 * time.Second
	recoveryConfirmDelay = 1 * time.Second
	recoveryFinalDelay   = 2 * time.Second
)

// PaneCommander is the slice of the tmux client the controller needs.
type PaneCommander interface {
	CapturePane(ctx context.Context, paneID string) (string, error)
	SendText(ctx context.Context, paneID, text string) error
	SendKey(ctx context.Context, paneID, key string) error
}

// Settings holds the clear-policy tunables.
type Settings struct {
	// ProtectedPaneQuota many lexicographically-smallest idle/done panes are
	// never cleared, keeping a fixed set of panes readable for the operator.
	ProtectedPaneQuota int

	// MaxRetries bounds recovery to avoid unbounded clear loops. One retry
	// favors "possibly unclean" over infinite recovery.
	MaxRetries int

	// SettleDelay is the wait between sending the clear and verifying.
	SettleDelay time.Duration

	// Command is the clear directive text.
	Command string

	// NoContentMarker is the text an emptied conversation shows.
	NoContentMarker string
}

// Outcome reports what happened to one pane during a clearing pass.
type Outcome struct {
	PaneID   string
	State    State
	Mismatch Mismatch
	Err      error
}

// Controller owns the cleared set and the per-pane clear/verify/recover flow.
// It is driven by the single monitoring flow; no locking needed.
type Controller struct {
	commander PaneCommander
	settings  Settings

	// cleared holds pane ids known to be in the post-clear state since their
	// last working observation.
	cleared map[string]struct{}

	// sleep is replaceable in tests; production waits on the clock or on
	// cancellation, whichever comes first.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewController creates a controller with the given policy.
func NewController(commander PaneCommander, settings Settings) *Controller {
	if settings.MaxRetries < 0 {
		settings.MaxRetries = 0
	}
	return &Controller{
		commander: commander,
		settings:  settings,
		cleared:   make(map[string]struct{}),
		sleep:     sleepCtx,
	}
}

// UpdateSettings swaps the policy tunables (hot config reload) while keeping
// the cleared set.
func (c *Controller) UpdateSettings(settings Settings) {
	if settings.MaxRetries < 0 {
		settings.MaxRetries = 0
	}
	c.settings = settings
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// IsCleared reports whether a pane is in the cleared set.
func (c *Controller) IsCleared(paneID string) bool {
	_, ok := c.cleared[paneID]
	return ok
}

// ClearedCount reports the cleared-set size.
func (c *Controller) ClearedCount() int {
	return len(c.cleared)
}

// MarkWorking evicts a pane from the cleared set. Called the moment a pane is
// observed working again; it becomes eligible for clearing on its next
// idle/done transition.
func (c *Controller) MarkWorking(paneID string) {
	delete(c.cleared, paneID)
}

// ProtectedPanes returns the quota of lexicographically-smallest ids among
// all currently idle/done panes. These are never sent a clear directive,
// regardless of input ordering.
func (c *Controller) ProtectedPanes(allIdleDone []string) map[string]struct{} {
	sorted := append([]string(nil), allIdleDone...)
	sort.Strings(sorted)

	n := c.settings.ProtectedPaneQuota
	if n > len(sorted) {
		n = len(sorted)
	}
	protected := make(map[string]struct{}, n)
	for _, id := range sorted[:n] {
		protected[id] = struct{}{}
	}
	return protected
}

// ProcessNewlyIdle runs the clear flow for panes that just transitioned to
// idle/done. allIdleDone is every pane currently idle or done, used to compute
// the protected quota. Per-pane failures never abort the pass.
func (c *Controller) ProcessNewlyIdle(ctx context.Context, newlyIdle, allIdleDone []string) []Outcome {
	protected := c.ProtectedPanes(allIdleDone)

	candidates := append([]string(nil), newlyIdle...)
	sort.Strings(candidates)

	var outcomes []Outcome
	for _, id := range candidates {
		if ctx.Err() != nil {
			break
		}
		if _, ok := protected[id]; ok {
			clearLog.Debug("pane_protected", slog.String("pane", id))
			continue
		}
		if c.IsCleared(id) {
			continue
		}
		outcome := c.clearPane(ctx, id)
		if outcome.Err != nil {
			clearLog.Warn("clear_failed",
				slog.String("pane", id),
				slog.String("state", string(outcome.State)),
				slog.String("error", outcome.Err.Error()))
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// clearPane walks one pane through NotCleared → ClearSent → Verifying →
// {ClearedConfirmed | RecoveryAttempted}.
func (c *Controller) clearPane(ctx context.Context, paneID string) Outcome {
	outcome := Outcome{PaneID: paneID, State: StateNotCleared}

	if err := c.sendClear(ctx, paneID); err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.State = StateClearSent

	if err := c.sleep(ctx, c.settings.SettleDelay); err != nil {
		outcome.Err = err
		return outcome
	}

	outcome.State = StateVerifying
	mismatch, err := c.verify(ctx, paneID)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	if mismatch == MismatchNone {
		outcome.State = StateClearedConfirmed
		c.cleared[paneID] = struct{}{}
		clearLog.Info("pane_cleared", slog.String("pane", paneID))
		return outcome
	}

	outcome.Mismatch = mismatch
	clearLog.Info("clear_verification_failed",
		slog.String("pane", paneID),
		slog.String("mismatch", string(mismatch)))

	// Bounded recovery: at most MaxRetries attempts, then give up until the
	// pane's next idle/done transition.
	for attempt := 0; attempt < c.settings.MaxRetries; attempt++ {
		outcome.State = StateRecoveryAttempted
		mismatch, err = c.recover(ctx, paneID)
		if err != nil {
			outcome.Err = err
			return outcome
		}
		if mismatch == MismatchNone {
			outcome.State = StateClearedConfirmed
			outcome.Mismatch = MismatchNone
			c.cleared[paneID] = struct{}{}
			clearLog.Info("pane_cleared_after_recovery", slog.String("pane", paneID))
			return outcome
		}
		outcome.Mismatch = mismatch
	}

	// Pane stays outside the cleared set; retried on its next transition.
	return outcome
}

func (c *Controller) sendClear(ctx context.Context, paneID string) error {
	if err := c.commander.SendText(ctx, paneID, c.settings.Command); err != nil {
		return fmt.Errorf("send clear: %w", err)
	}
	if err := c.commander.SendKey(ctx, paneID, "Enter"); err != nil {
		return fmt.Errorf("submit clear: %w", err)
	}
	return nil
}

// recover runs the fixed unwedge sequence, resends the clear directive, and
// verifies exactly once.
func (c *Controller) recover(ctx context.Context, paneID string) (Mismatch, error) {
	steps := []struct {
		key   string
		delay time.Duration
	}{
		{"Escape", recoveryCancelDelay},
		{"Enter", recoveryConfirmDelay},
		{"Escape", recoveryFinalDelay},
	}
	for _, step := range steps {
		if err := c.commander.SendKey(ctx, paneID, step.key); err != nil {
			return MismatchOther, fmt.Errorf("recovery key %s: %w", step.key, err)
		}
		if err := c.sleep(ctx, step.delay); err != nil {
			return MismatchOther, err
		}
	}

	if err := c.sendClear(ctx, paneID); err != nil {
		return MismatchOther, err
	}
	if err := c.sleep(ctx, c.settings.SettleDelay); err != nil {
		return MismatchOther, err
	}
	return c.verify(ctx, paneID)
}

// verify captures the pane and compares its normalized content against the
// expected cleared signature. Exact match means confirmed.
func (c *Controller) verify(ctx context.Context, paneID string) (Mismatch, error) {
	content, err := c.commander.CapturePane(ctx, paneID)
	if err != nil {
		return MismatchOther, fmt.Errorf("verify capture: %w", err)
	}
	return c.classify(content), nil
}

// classify compares normalized content to the cleared signature and names the
// failure mode on mismatch.
func (c *Controller) classify(content string) Mismatch {
	norm := Normalize(content)
	token := Normalize(c.settings.Command)
	marker := Normalize(c.settings.NoContentMarker)

	if norm == c.ExpectedSignature() {
		return MismatchNone
	}
	if strings.Count(norm, token) >= 2 {
		// The clear echoed twice: the input handler replayed the directive.
		return MismatchDuplicateToken
	}
	if strings.Contains(norm, token) && !strings.Contains(norm, marker) {
		// Directive visible but the conversation never emptied.
		return MismatchMissingNoMarker
	}
	return MismatchOther
}

// ExpectedSignature is the normalized content a cleanly cleared pane shows:
// the echoed directive followed by the no-content marker.
func (c *Controller) ExpectedSignature() string {
	return Normalize(c.settings.Command + c.settings.NoContentMarker)
}

// Normalize strips ANSI sequences and all whitespace and lowercases, so the
// comparison ignores prompt redraws and cursor noise.
func Normalize(content string) string {
	stripped := tmuxc.StripANSI(content)
	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
