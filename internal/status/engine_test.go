package status

import "testing"

func TestDetermine_TitleTokenWins(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		title   string
		command string
		want    WorkerStatus
	}{
		{"WORKING - build", "zsh", StatusWorking},
		{"working on it", "bash", StatusWorking},
		{"[DONE] panewatch", "vim notes.md", StatusDone},
		{"BLOCKED waiting for approval", "claude", StatusBlocked},
		{"idle shell", "make", StatusIdle},
		{"TERMINATED", "python3 job.py", StatusTerminated},
	}
	for _, tt := range tests {
		if got := e.Determine(tt.command, tt.title, true); got != tt.want {
			t.Errorf("Determine(%q, %q) = %v, want %v", tt.command, tt.title, got, tt.want)
		}
	}
}

func TestDetermine_NoLiveProcess(t *testing.T) {
	e := NewEngine()

	if got := e.Determine("", "", true); got != StatusTerminated {
		t.Errorf("empty command = %v, want terminated", got)
	}
	if got := e.Determine("dead", "", true); got != StatusTerminated {
		t.Errorf("dead marker = %v, want terminated", got)
	}
	if got := e.Determine("vim main.go", "", false); got != StatusTerminated {
		t.Errorf("not alive = %v, want terminated", got)
	}
}

func TestDetermine_ShellIdle(t *testing.T) {
	e := NewEngine()

	for _, shell := range []string{"bash", "zsh", "fish", "sh"} {
		if got := e.Determine(shell, "", true); got != StatusIdle {
			t.Errorf("Determine(%q) = %v, want idle", shell, got)
		}
	}

	// Shell name embedded in a longer command is not idling; this one falls
	// through to the build/test token rule instead
	if got := e.Determine("bash run_tests.sh", "", true); got != StatusWorking {
		t.Errorf("Determine(bash run_tests.sh) = %v, want working", got)
	}
}

func TestDetermine_WorkingClassifiers(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		command string
	}{
		{"vim file.py"},
		{"claude --dangerously-skip-permissions"},
		{"nvim"},
		{"make -j8"},
		{"cargo build --release"},
		{"pytest -x"},
		{"python3 train.py"},
		{"node server.js"},
		{"ruby worker.rb"},
	}
	for _, tt := range tests {
		if got := e.Determine(tt.command, "", true); got != StatusWorking {
			t.Errorf("Determine(%q) = %v, want working", tt.command, got)
		}
	}
}

func TestDetermine_OptimisticDefault(t *testing.T) {
	e := NewEngine()
	if got := e.Determine("some-unknown-daemon", "", true); got != StatusWorking {
		t.Errorf("unrecognized command = %v, want optimistic working", got)
	}

	pessimistic := NewEngine(WithFallback(StatusUnknown))
	if got := pessimistic.Determine("some-unknown-daemon", "", true); got != StatusUnknown {
		t.Errorf("tuned fallback = %v, want unknown", got)
	}
}

func TestDetermine_TotalOnGarbage(t *testing.T) {
	e := NewEngine()

	garbage := []struct{ command, title string }{
		{"", ""},
		{"\x00\x1b[31m", "��"},
		{"   ", "\t\n"},
		{string(make([]byte, 4096)), "no status here"},
	}
	for _, g := range garbage {
		// Must classify, never panic
		_ = e.Determine(g.command, g.title, true)
		_ = e.Determine(g.command, g.title, false)
	}
}

func TestDetermine_ExtraTokens(t *testing.T) {
	e := NewEngine(WithExtraShells([]string{"nu"}), WithExtraAssistants([]string{"goose"}))

	if got := e.Determine("nu", "", true); got != StatusIdle {
		t.Errorf("extra shell = %v, want idle", got)
	}
	if got := e.Determine("goose session", "", true); got != StatusWorking {
		t.Errorf("extra assistant = %v, want working", got)
	}
}

func TestFromTitle(t *testing.T) {
	if s, ok := FromTitle("zsh"); ok {
		t.Errorf("plain title matched %v", s)
	}
	if s, ok := FromTitle("[BLOCKED] panewatch"); !ok || s != StatusBlocked {
		t.Errorf("FromTitle = %v, %v", s, ok)
	}
}

func TestRulesExposedInOrder(t *testing.T) {
	e := NewEngine()
	rules := e.Rules()
	wantOrder := []string{"title_token", "no_live_process", "shell_idle", "assistant", "build_test", "script_runtime"}
	if len(rules) != len(wantOrder) {
		t.Fatalf("got %d rules, want %d", len(rules), len(wantOrder))
	}
	for i, name := range wantOrder {
		if rules[i].Name != name {
			t.Errorf("rule %d = %s, want %s", i, rules[i].Name, name)
		}
	}
}
