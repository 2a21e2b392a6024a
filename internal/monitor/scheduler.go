// Package monitor drives the repeating supervision cycle: discover panes,
// infer status, report to the operator pane, send keepalives, and run
// clear/recovery on newly idle panes, honoring cooperative cancellation and a
// hard wall-clock runtime ceiling.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/asheshgoplani/panewatch/internal/capture"
	"github.com/asheshgoplani/panewatch/internal/clear"
	"github.com/asheshgoplani/panewatch/internal/config"
	"github.com/asheshgoplani/panewatch/internal/logging"
	"github.com/asheshgoplani/panewatch/internal/status"
	"github.com/asheshgoplani/panewatch/internal/tmuxc"
	"github.com/asheshgoplani/panewatch/internal/tracker"
)

var monitorLog = logging.ForComponent(logging.CompMonitor)
var reportLog = logging.ForComponent(logging.CompReport)

// Cycle-level failures. They abort only the current cycle; continuous mode
// proceeds to the next cycle regardless.
var (
	ErrNoPanes        = errors.New("no panes discoverable")
	ErrNoOperatorPane = errors.New("no operator pane found")
)

// Phase is the scheduler's position in the cycle state machine.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseWaitingForSchedule Phase = "waiting_for_schedule"
	PhaseDiscovering        Phase = "discovering"
	PhaseProcessing         Phase = "processing"
	PhaseReporting          Phase = "reporting"
	PhaseKeepaliveCycling   Phase = "keepalive_cycling"
	PhaseClearRecovery      Phase = "clear_recovery"
	PhaseTerminated         Phase = "terminated"
)

// MuxClient is the slice of the tmux client the scheduler consumes.
type MuxClient interface {
	ListPanes(ctx context.Context, session string) ([]tmuxc.PaneSnapshot, error)
	CapturePane(ctx context.Context, paneID string) (string, error)
	SendText(ctx context.Context, paneID, text string) error
	SendKey(ctx context.Context, paneID, key string) error
	SetPaneTitle(ctx context.Context, paneID, title string) error
}

// ConfigSource yields the current config; a config.Watcher satisfies it and
// makes tunables take effect between cycles.
type ConfigSource interface {
	Current() *config.Config
}

// StaticConfig adapts a fixed config to ConfigSource.
type StaticConfig struct{ Cfg *config.Config }

func (s StaticConfig) Current() *config.Config { return s.Cfg }

// Scheduler owns the process-scoped status/history/cleared state and the
// single cooperative control flow that touches it. No locking: there is no
// concurrent writer.
type Scheduler struct {
	client  MuxClient
	cfgSrc  ConfigSource
	engine  *status.Engine
	tracker *tracker.Tracker
	detect  *capture.Detector
	clearer *clear.Controller
	cancel  *CancelFlag

	// limiter bounds keepalive send-keys bursts across large fleets.
	limiter *rate.Limiter

	// stamped remembers the titles this scheduler wrote, so its own stamps
	// are not read back as authoritative on the next cycle.
	stamped map[string]string

	startedAt time.Time
	phase     Phase
	cycles    int
	lastCycle time.Time

	sleep func(ctx context.Context, d time.Duration) error
}

// New wires a scheduler from its collaborators.
func New(client MuxClient, cfgSrc ConfigSource, cancel *CancelFlag) *Scheduler {
	cfg := cfgSrc.Current()
	if cancel == nil {
		cancel = NewCancelFlag()
	}
	perSec := cfg.Monitor.KeepalivePerSecond
	if perSec <= 0 {
		perSec = 10
	}

	s := &Scheduler{
		client:  client,
		cfgSrc:  cfgSrc,
		engine:  newEngine(cfg),
		tracker: tracker.New(),
		detect:  capture.NewDetector(client),
		clearer: clear.NewController(client, clearSettings(cfg)),
		cancel:  cancel,
		limiter: rate.NewLimiter(rate.Limit(perSec), 1),
		stamped: make(map[string]string),
		phase:   PhaseIdle,
	}
	s.sleep = s.interruptibleSleep
	return s
}

func newEngine(cfg *config.Config) *status.Engine {
	opts := []status.Option{
		status.WithFallback(status.Parse(cfg.Status.OptimisticDefault)),
	}
	if len(cfg.Status.ExtraShells) > 0 {
		opts = append(opts, status.WithExtraShells(cfg.Status.ExtraShells))
	}
	if len(cfg.Status.ExtraAssistantTokens) > 0 {
		opts = append(opts, status.WithExtraAssistants(cfg.Status.ExtraAssistantTokens))
	}
	return status.NewEngine(opts...)
}

func clearSettings(cfg *config.Config) clear.Settings {
	return clear.Settings{
		ProtectedPaneQuota: cfg.Clear.ProtectedPaneQuota,
		MaxRetries:         cfg.Clear.MaxRetries,
		SettleDelay:        cfg.SettleDelay(),
		Command:            cfg.Clear.Command,
		NoContentMarker:    cfg.Clear.NoContentMarker,
	}
}

// Cancel requests a cooperative stop with a reason.
func (s *Scheduler) Cancel(reason string) {
	s.cancel.Cancel(reason)
}

// OneTimeMonitor runs exactly one monitoring cycle and returns.
func (s *Scheduler) OneTimeMonitor(ctx context.Context) error {
	s.startedAt = time.Now()
	defer s.setPhase(PhaseTerminated)
	if err := s.waitForSchedule(ctx); err != nil {
		return nil
	}
	return s.runCycle(ctx)
}

// Monitor runs full cycles with the inner keepalive/report loop in between,
// until cancellation, the runtime ceiling, or an irrecoverable discovery
// failure. It returns only on termination.
func (s *Scheduler) Monitor(ctx context.Context) error {
	s.startedAt = time.Now()
	defer s.setPhase(PhaseTerminated)

	if err := s.waitForSchedule(ctx); err != nil {
		return nil // cancellation during the wait ends the run cleanly
	}

	for {
		if s.shouldStop(ctx) {
			return nil
		}
		if err := s.runCycle(ctx); err != nil {
			monitorLog.Error("cycle_failed", slog.String("error", err.Error()))
			return err
		}
		if s.innerLoop(ctx) {
			return nil
		}
	}
}

// StartContinuousMonitoring is Monitor with per-cycle failures tolerated:
// a failed cycle is logged and the next cycle proceeds. Returns only on
// cancellation or the runtime ceiling.
func (s *Scheduler) StartContinuousMonitoring(ctx context.Context) error {
	s.startedAt = time.Now()
	defer s.setPhase(PhaseTerminated)

	if err := s.waitForSchedule(ctx); err != nil {
		return nil
	}

	for {
		if s.shouldStop(ctx) {
			return nil
		}
		if err := s.runCycle(ctx); err != nil {
			monitorLog.Warn("cycle_failed_retrying_next",
				slog.String("error", err.Error()))
		}
		if s.innerLoop(ctx) {
			return nil
		}
	}
}

// runCycle performs one full pass: discover, process, report, keepalive,
// clear/recovery. Per-pane failures are logged and skipped; only discovery
// failures abort the cycle.
func (s *Scheduler) runCycle(ctx context.Context) error {
	cfg := s.cfgSrc.Current()
	s.clearer.UpdateSettings(clearSettings(cfg))

	s.setPhase(PhaseDiscovering)
	panes, err := s.client.ListPanes(ctx, cfg.Monitor.Session)
	if err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	if len(panes) == 0 {
		return ErrNoPanes
	}

	operator, workers := splitOperator(panes)
	if operator == nil {
		return ErrNoOperatorPane
	}

	s.setPhase(PhaseProcessing)
	s.processWorkers(ctx, workers)
	newlyIdle := s.newlyIdleDonePanes()

	s.setPhase(PhaseReporting)
	s.sendReport(ctx, operator.ID)
	s.tracker.ClearChangeFlags()

	s.setPhase(PhaseKeepaliveCycling)
	s.sendKeepalives(ctx, panes)

	s.setPhase(PhaseClearRecovery)
	s.clearer.ProcessNewlyIdle(ctx, newlyIdle, s.tracker.DoneAndIdlePanes())

	s.cycles++
	s.lastCycle = time.Now()
	return nil
}

// splitOperator separates the single operator-facing pane from the workers.
func splitOperator(panes []tmuxc.PaneSnapshot) (*tmuxc.PaneSnapshot, []tmuxc.PaneSnapshot) {
	var operator *tmuxc.PaneSnapshot
	var workers []tmuxc.PaneSnapshot
	for i := range panes {
		if operator == nil && panes[i].Active {
			operator = &panes[i]
			continue
		}
		workers = append(workers, panes[i])
	}
	return operator, workers
}

// processWorkers infers a status per worker pane and updates the tracker.
// Content detection fans out concurrently; heuristic inference fills in for
// panes whose capture failed.
func (s *Scheduler) processWorkers(ctx context.Context, workers []tmuxc.PaneSnapshot) {
	items := make([]capture.BatchItem, 0, len(workers))
	for _, p := range workers {
		items = append(items, capture.BatchItem{
			PaneID: p.ID,
			Hints:  capture.Hints{Title: s.externalTitle(p), Command: p.Command},
		})
	}

	detected := make(map[string]capture.Result, len(items))
	results, err := s.detect.DetectAll(ctx, items)
	if err != nil {
		monitorLog.Warn("detect_batch_partial", slog.String("error", err.Error()))
	}
	for _, res := range results {
		detected[res.PaneID] = res
	}

	for _, p := range workers {
		st := s.engine.Determine(p.Command, s.externalTitle(p), !p.Dead)
		if res, ok := detected[p.ID]; ok {
			st = combineStatus(st, res)
		}

		if st == status.StatusWorking {
			s.clearer.MarkWorking(p.ID)
		}
		s.tracker.UpdateStatus(p.ID, st)
		s.stampTitle(ctx, p.ID, st)
	}
}

// combineStatus refines the heuristic status with content-change evidence.
// Titles stay authoritative (the detector already honors them); beyond that,
// observed stability can downgrade the optimistic default and observed change
// can override a stale idle classification.
func combineStatus(heuristic status.WorkerStatus, res capture.Result) status.WorkerStatus {
	if heuristic == status.StatusTerminated {
		return heuristic
	}
	switch res.Status {
	case status.StatusIdle, status.StatusBlocked, status.StatusDone:
		return res.Status
	case status.StatusWorking:
		return status.StatusWorking
	default:
		return heuristic
	}
}

// externalTitle returns the pane title unless it is this scheduler's own
// stamp. Reading back our own stamp would make every status self-confirming.
func (s *Scheduler) externalTitle(p tmuxc.PaneSnapshot) string {
	if stamp, ok := s.stamped[p.ID]; ok && stamp == p.Title {
		return ""
	}
	return p.Title
}

// stampTitle writes the inferred status into the pane title, best-effort.
func (s *Scheduler) stampTitle(ctx context.Context, paneID string, st status.WorkerStatus) {
	title := fmt.Sprintf("[%s] panewatch", st.Token())
	if s.stamped[paneID] == title {
		return
	}
	if err := s.client.SetPaneTitle(ctx, paneID, title); err != nil {
		monitorLog.Debug("stamp_title_failed",
			slog.String("pane", paneID),
			slog.String("error", err.Error()))
		return
	}
	s.stamped[paneID] = title
}

// newlyIdleDonePanes returns the panes that transitioned into idle/done this
// cycle: the delta the clear controller acts on.
func (s *Scheduler) newlyIdleDonePanes() []string {
	var ids []string
	for _, id := range s.tracker.ChangedPanes() {
		if cur, ok := s.tracker.Status(id); ok {
			if cur == status.StatusIdle || cur == status.StatusDone {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// sendReport composes and delivers the consolidated report to the operator
// pane. Failures are logged, never fatal.
func (s *Scheduler) sendReport(ctx context.Context, operatorID string) {
	report := ComposeReport(s.tracker, time.Now())
	if err := s.client.SendText(ctx, operatorID, report); err != nil {
		reportLog.Warn("report_send_failed",
			slog.String("pane", operatorID),
			slog.String("error", err.Error()))
		return
	}
	if err := s.client.SendKey(ctx, operatorID, "Enter"); err != nil {
		reportLog.Warn("report_submit_failed",
			slog.String("pane", operatorID),
			slog.String("error", err.Error()))
	}
}

// sendKeepalives delivers the no-op keystroke to every pane, rate limited,
// best effort.
func (s *Scheduler) sendKeepalives(ctx context.Context, panes []tmuxc.PaneSnapshot) {
	for _, p := range panes {
		if s.cancel.Cancelled() {
			return
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		if err := s.client.SendText(ctx, p.ID, ""); err != nil {
			logging.Aggregate(logging.CompMonitor, "keepalive_failed",
				slog.String("pane", p.ID))
		}
	}
}

// innerLoop runs the keepalive/report loop between discovery cycles. It
// repeats at the keepalive interval until the next full cycle is due, and
// reports true when the run should terminate.
func (s *Scheduler) innerLoop(ctx context.Context) (stop bool) {
	cfg := s.cfgSrc.Current()
	cycleEnd := time.Now().Add(cfg.CycleInterval())

	for time.Now().Before(cycleEnd) {
		if s.shouldStop(ctx) {
			return true
		}
		wait := cfg.KeepaliveInterval()
		if remaining := time.Until(cycleEnd); remaining < wait {
			wait = remaining
		}
		if err := s.sleep(ctx, wait); err != nil {
			return true
		}
		if s.shouldStop(ctx) {
			return true
		}

		panes, err := s.client.ListPanes(ctx, cfg.Monitor.Session)
		if err != nil {
			monitorLog.Warn("keepalive_discovery_failed", slog.String("error", err.Error()))
			continue
		}
		s.setPhase(PhaseKeepaliveCycling)
		s.sendKeepalives(ctx, panes)
		if operator, _ := splitOperator(panes); operator != nil {
			s.setPhase(PhaseReporting)
			s.sendReport(ctx, operator.ID)
		}
	}
	return false
}

// waitForSchedule blocks until the configured start time, cancellation, or
// context end. A non-nil return means the run ends now.
func (s *Scheduler) waitForSchedule(ctx context.Context) error {
	cfg := s.cfgSrc.Current()
	startAt, ok := cfg.StartTime()
	if !ok || !startAt.After(time.Now()) {
		return nil
	}

	s.setPhase(PhaseWaitingForSchedule)
	monitorLog.Info("waiting_for_schedule", slog.Time("start_at", startAt))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.cancel.Done():
		return errors.New("cancelled: " + s.cancel.Reason())
	case <-time.After(time.Until(startAt)):
		return nil
	}
}

// shouldStop polls the termination conditions. Checked only at sleep and
// cycle boundaries, never mid-operation.
func (s *Scheduler) shouldStop(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	if s.cancel.Cancelled() {
		monitorLog.Info("run_cancelled", slog.String("reason", s.cancel.Reason()))
		return true
	}
	cfg := s.cfgSrc.Current()
	if time.Since(s.startedAt) >= cfg.MaxRuntime() {
		// Graceful stop, not a failure.
		monitorLog.Info("runtime_ceiling_reached",
			slog.Duration("max_runtime", cfg.MaxRuntime()))
		return true
	}
	return false
}

// interruptibleSleep waits for d, ending early on cancellation.
func (s *Scheduler) interruptibleSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.cancel.Done():
		return errors.New("cancelled")
	case <-time.After(d):
		return nil
	}
}

func (s *Scheduler) setPhase(p Phase) {
	s.phase = p
}
