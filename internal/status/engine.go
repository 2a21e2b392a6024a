package status

import (
	"log/slog"
	"strings"

	"github.com/asheshgoplani/panewatch/internal/logging"
)

var statusLog = logging.ForComponent(logging.CompStatus)

// Input is one pane observation fed to the rule chain.
type Input struct {
	Command string
	Title   string
	Alive   bool
}

// Rule is one (predicate, result) entry in the inference chain.
// Match returns the inferred status and whether the rule fired.
type Rule struct {
	Name  string
	Match func(in Input) (WorkerStatus, bool)
}

// Fixed token sets. These mirror what the supervised fleet actually runs;
// extending them is a config concern, not a code change.
var (
	// shellNames are commands that mean the pane is sitting at a shell.
	shellNames = []string{"bash", "zsh", "sh", "fish", "dash", "ksh", "tcsh"}

	// assistantTokens mark interactive assistant or editor processes.
	assistantTokens = []string{"claude", "codex", "gemini", "aider", "opencode", "vim", "nvim", "emacs", "nano"}

	// buildTokens mark build/test/compile activity.
	buildTokens = []string{"make", "cmake", "cargo", "build", "test", "compile", "npm", "pnpm", "yarn", "pytest", "gcc", "clang", "gradle", "mvn"}

	// scriptRuntimes classify broader script interpreters: exact membership
	// for the bare names, substring for versioned variants (python3.12).
	scriptRuntimes = []string{"python", "node", "ruby", "perl", "deno", "bun", "php"}

	// deadMarker is what tmux reports as the command of a dead pane.
	deadMarker = "dead"
)

// Engine evaluates the ordered rule chain. First match wins.
type Engine struct {
	rules []Rule

	// fallback is the status for commands nothing else recognizes. The chain
	// is optimistic: only explicit shell idling or explicit title markers
	// downgrade a pane, everything unrecognized counts as busy.
	fallback WorkerStatus
}

// Option tweaks engine construction.
type Option func(*Engine)

// WithFallback overrides the optimistic default for unrecognized commands.
func WithFallback(s WorkerStatus) Option {
	return func(e *Engine) { e.fallback = s }
}

// WithExtraShells extends the shell-name set.
func WithExtraShells(names []string) Option {
	return func(e *Engine) {
		e.rules = replaceRule(e.rules, "shell_idle", shellIdleRule(append(append([]string{}, shellNames...), names...)))
	}
}

// WithExtraAssistants extends the assistant/editor token set.
func WithExtraAssistants(tokens []string) Option {
	return func(e *Engine) {
		e.rules = replaceRule(e.rules, "assistant", containsRule("assistant", append(append([]string{}, assistantTokens...), tokens...), StatusWorking))
	}
}

// NewEngine builds the default inference chain.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{fallback: StatusWorking}
	e.rules = []Rule{
		{Name: "title_token", Match: func(in Input) (WorkerStatus, bool) {
			return FromTitle(in.Title)
		}},
		{Name: "no_live_process", Match: func(in Input) (WorkerStatus, bool) {
			cmd := strings.TrimSpace(in.Command)
			if !in.Alive || cmd == "" || strings.EqualFold(cmd, deadMarker) {
				return StatusTerminated, true
			}
			return StatusUnknown, false
		}},
		shellIdleRule(shellNames),
		containsRule("assistant", assistantTokens, StatusWorking),
		containsRule("build_test", buildTokens, StatusWorking),
		{Name: "script_runtime", Match: func(in Input) (WorkerStatus, bool) {
			if matchesRuntime(in.Command) {
				return StatusWorking, true
			}
			return StatusUnknown, false
		}},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules exposes the chain for tests and diagnostics.
func (e *Engine) Rules() []Rule {
	return e.rules
}

// Determine infers a status for one pane. It is total: any input, including
// empty or garbage strings, yields a status, and internal faults surface as
// StatusUnknown rather than a panic.
func (e *Engine) Determine(command, title string, alive bool) (result WorkerStatus) {
	defer func() {
		if r := recover(); r != nil {
			statusLog.Error("determine_panic", slog.Any("panic", r))
			result = StatusUnknown
		}
	}()

	in := Input{Command: command, Title: title, Alive: alive}
	for _, rule := range e.rules {
		if s, ok := rule.Match(in); ok {
			return s
		}
	}
	return e.fallback
}

func shellIdleRule(shells []string) Rule {
	return Rule{Name: "shell_idle", Match: func(in Input) (WorkerStatus, bool) {
		cmd := strings.ToLower(strings.TrimSpace(in.Command))
		for _, shell := range shells {
			if cmd == shell {
				return StatusIdle, true
			}
		}
		return StatusUnknown, false
	}}
}

func containsRule(name string, tokens []string, result WorkerStatus) Rule {
	return Rule{Name: name, Match: func(in Input) (WorkerStatus, bool) {
		cmd := strings.ToLower(in.Command)
		for _, tok := range tokens {
			if strings.Contains(cmd, tok) {
				return result, true
			}
		}
		return StatusUnknown, false
	}}
}

func matchesRuntime(command string) bool {
	cmd := strings.ToLower(strings.TrimSpace(command))
	base := cmd
	if i := strings.IndexByte(base, ' '); i >= 0 {
		base = base[:i]
	}
	for _, rt := range scriptRuntimes {
		if base == rt || strings.HasPrefix(base, rt) {
			return true
		}
	}
	return false
}

func replaceRule(rules []Rule, name string, repl Rule) []Rule {
	for i, r := range rules {
		if r.Name == name {
			rules[i] = repl
			return rules
		}
	}
	return append(rules, repl)
}
