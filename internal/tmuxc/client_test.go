package tmuxc

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records tmux invocations and serves canned output.
type fakeRunner struct {
	out   string
	err   error
	calls [][]string
}

func (f *fakeRunner) Run(_ context.Context, args ...string) (string, error) {
	f.calls = append(f.calls, args)
	if f.err != nil {
		return "", f.err
	}
	return f.out, nil
}

func TestListPanes(t *testing.T) {
	r := &fakeRunner{out: strings.Join([]string{
		"%0\t1\t0\tclaude\t[WORKING] panewatch",
		"%1\t0\t0\tzsh\t",
		"%2\t0\t1\tnode\texited",
		"",
	}, "\n")}
	c := NewClient(r, 40)

	panes, err := c.ListPanes(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, panes, 3)

	assert.Equal(t, PaneSnapshot{
		ID: "%0", Active: true, Command: "claude", Title: "[WORKING] panewatch",
	}, panes[0])
	assert.Equal(t, PaneSnapshot{ID: "%1", Command: "zsh"}, panes[1])
	assert.True(t, panes[2].Dead)

	// No session: plain list-panes for the attached session
	assert.Equal(t, []string{"list-panes", "-F", paneFormat}, r.calls[0])
}

func TestListPanes_SessionTargeted(t *testing.T) {
	r := &fakeRunner{out: ""}
	c := NewClient(r, 40)

	_, err := c.ListPanes(context.Background(), "farm")
	require.NoError(t, err)
	assert.Equal(t, []string{"list-panes", "-s", "-t", "farm", "-F", paneFormat}, r.calls[0])
}

func TestListPanes_MalformedLinesSkipped(t *testing.T) {
	r := &fakeRunner{out: "%0\t1\t0\tzsh\ttitle\ngarbage line\n%1\t0\t0\tbash\t\n"}
	c := NewClient(r, 40)

	panes, err := c.ListPanes(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, panes, 2)
	assert.Equal(t, "%0", panes[0].ID)
	assert.Equal(t, "%1", panes[1].ID)
}

func TestListPanes_RunnerError(t *testing.T) {
	r := &fakeRunner{err: errors.New("no server running")}
	c := NewClient(r, 40)

	_, err := c.ListPanes(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list panes")
}

func TestCapturePane(t *testing.T) {
	r := &fakeRunner{out: "line one\nline two\n"}
	c := NewClient(r, 25)

	out, err := c.CapturePane(context.Background(), "%3")
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", out)
	assert.Equal(t, []string{"capture-pane", "-p", "-t", "%3", "-S", "-25"}, r.calls[0])
}

func TestCapturePane_EmptyPaneID(t *testing.T) {
	c := NewClient(&fakeRunner{}, 40)
	_, err := c.CapturePane(context.Background(), "  ")
	require.Error(t, err)
}

func TestCapturePane_VanishedPane(t *testing.T) {
	r := &fakeRunner{err: ErrPaneVanished}
	c := NewClient(r, 40)

	_, err := c.CapturePane(context.Background(), "%9")
	assert.ErrorIs(t, err, ErrPaneVanished)
}

func TestSendText(t *testing.T) {
	r := &fakeRunner{}
	c := NewClient(r, 40)

	require.NoError(t, c.SendText(context.Background(), "%1", "/clear"))
	assert.Equal(t, []string{"send-keys", "-t", "%1", "-l", "/clear"}, r.calls[0])
}

func TestSendText_EmptyTextIsKeepalive(t *testing.T) {
	r := &fakeRunner{}
	c := NewClient(r, 40)

	require.NoError(t, c.SendText(context.Background(), "%1", ""))
	assert.Equal(t, []string{"send-keys", "-t", "%1", "-l", ""}, r.calls[0])
}

func TestSendKey(t *testing.T) {
	r := &fakeRunner{}
	c := NewClient(r, 40)

	require.NoError(t, c.SendKey(context.Background(), "%1", "Enter"))
	assert.Equal(t, []string{"send-keys", "-t", "%1", "Enter"}, r.calls[0])

	assert.Error(t, c.SendKey(context.Background(), "%1", ""))
	assert.Error(t, c.SendKey(context.Background(), "", "Enter"))
}

func TestSetPaneTitle(t *testing.T) {
	r := &fakeRunner{}
	c := NewClient(r, 40)

	require.NoError(t, c.SetPaneTitle(context.Background(), "%1", "[IDLE] panewatch"))
	assert.Equal(t, []string{"select-pane", "-t", "%1", "-T", "[IDLE] panewatch"}, r.calls[0])
}

func TestPaneTitle(t *testing.T) {
	r := &fakeRunner{out: "[DONE] panewatch\n"}
	c := NewClient(r, 40)

	title, err := c.PaneTitle(context.Background(), "%1")
	require.NoError(t, err)
	assert.Equal(t, "[DONE] panewatch", title)
}

func TestNewClient_Defaults(t *testing.T) {
	r := &fakeRunner{}
	c := NewClient(r, 0)

	_, err := c.CapturePane(context.Background(), "%1")
	require.NoError(t, err)
	assert.Equal(t, "-40", r.calls[0][len(r.calls[0])-1])
}
