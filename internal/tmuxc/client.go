// Package tmuxc is a thin tmux client. It shells out to the tmux binary for
// pane discovery, content capture, keystroke injection and title management,
// and knows nothing about status inference or recovery policy.
package tmuxc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/asheshgoplani/panewatch/internal/logging"
)

var tmuxLog = logging.ForComponent(logging.CompTmux)

// ErrPaneVanished is returned when tmux no longer knows the target pane.
// Callers treat this as a per-pane failure, not a cycle failure.
var ErrPaneVanished = errors.New("pane vanished")

// PaneSnapshot holds the raw pane attributes read from one list-panes call.
type PaneSnapshot struct {
	ID      string
	Active  bool
	Command string
	Title   string
	Dead    bool
}

// Runner executes a tmux command and returns its stdout.
// Tests substitute a fake; production uses the tmux binary.
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// ExecRunner runs tmux via os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "tmux", args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(string(exitErr.Stderr))
			if strings.Contains(msg, "can't find pane") || strings.Contains(msg, "can't find window") {
				return "", ErrPaneVanished
			}
			if msg != "" {
				return "", fmt.Errorf("tmux %s: %s", args[0], msg)
			}
		}
		return "", fmt.Errorf("tmux %s: %w", args[0], err)
	}
	return string(out), nil
}

// Client exposes the pane operations the monitoring core consumes.
type Client struct {
	runner       Runner
	captureLines int

	// capture deduplication: concurrent captures of the same pane within a
	// batch collapse into one subprocess
	captureGroup singleflight.Group
}

// NewClient creates a client capturing captureLines trailing lines per pane.
func NewClient(runner Runner, captureLines int) *Client {
	if runner == nil {
		runner = ExecRunner{}
	}
	if captureLines <= 0 {
		captureLines = 40
	}
	return &Client{runner: runner, captureLines: captureLines}
}

const paneFormat = "#{pane_id}\t#{?pane_active,1,0}\t#{?pane_dead,1,0}\t#{pane_current_command}\t#{pane_title}"

// ListPanes returns a snapshot of every pane in the session. The list is
// rebuilt from scratch on every call; pane topology may change between calls.
func (c *Client) ListPanes(ctx context.Context, session string) ([]PaneSnapshot, error) {
	args := []string{"list-panes", "-F", paneFormat}
	if session != "" {
		args = []string{"list-panes", "-s", "-t", session, "-F", paneFormat}
	}

	out, err := c.runner.Run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("list panes: %w", err)
	}

	var panes []PaneSnapshot
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 5)
		if len(parts) != 5 {
			tmuxLog.Debug("malformed_pane_line", slog.String("line", line))
			continue
		}
		panes = append(panes, PaneSnapshot{
			ID:      parts[0],
			Active:  parts[1] == "1",
			Dead:    parts[2] == "1",
			Command: parts[3],
			Title:   parts[4],
		})
	}
	return panes, nil
}

// CapturePane returns the trailing visible lines of a pane's buffer.
// Concurrent callers for the same pane share a single capture.
func (c *Client) CapturePane(ctx context.Context, paneID string) (string, error) {
	if strings.TrimSpace(paneID) == "" {
		return "", fmt.Errorf("capture: empty pane id")
	}

	out, err, _ := c.captureGroup.Do(paneID, func() (any, error) {
		return c.runner.Run(ctx, "capture-pane", "-p", "-t", paneID,
			"-S", "-"+strconv.Itoa(c.captureLines))
	})
	if err != nil {
		return "", fmt.Errorf("capture pane %s: %w", paneID, err)
	}
	return out.(string), nil
}

// SendText types literal text into a pane without pressing Enter.
// Empty text is allowed; it is the keepalive no-op.
func (c *Client) SendText(ctx context.Context, paneID, text string) error {
	if strings.TrimSpace(paneID) == "" {
		return fmt.Errorf("send-keys: empty pane id")
	}
	if _, err := c.runner.Run(ctx, "send-keys", "-t", paneID, "-l", text); err != nil {
		return fmt.Errorf("send text to %s: %w", paneID, err)
	}
	return nil
}

// SendKey presses a named tmux key (Enter, Escape, ...) in a pane.
func (c *Client) SendKey(ctx context.Context, paneID, key string) error {
	if strings.TrimSpace(paneID) == "" || strings.TrimSpace(key) == "" {
		return fmt.Errorf("send-keys: empty pane id or key")
	}
	if _, err := c.runner.Run(ctx, "send-keys", "-t", paneID, key); err != nil {
		return fmt.Errorf("send key %s to %s: %w", key, paneID, err)
	}
	return nil
}

// PaneTitle reads the current title of a pane.
func (c *Client) PaneTitle(ctx context.Context, paneID string) (string, error) {
	out, err := c.runner.Run(ctx, "display-message", "-p", "-t", paneID, "#{pane_title}")
	if err != nil {
		return "", fmt.Errorf("pane title %s: %w", paneID, err)
	}
	return strings.TrimRight(out, "\n"), nil
}

// SetPaneTitle stamps a pane title. Titles survive supervisor restarts, which
// makes them the most authoritative status signal on later cycles.
func (c *Client) SetPaneTitle(ctx context.Context, paneID, title string) error {
	if _, err := c.runner.Run(ctx, "select-pane", "-t", paneID, "-T", title); err != nil {
		return fmt.Errorf("set title %s: %w", paneID, err)
	}
	return nil
}
