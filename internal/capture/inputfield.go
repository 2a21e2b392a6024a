package capture

import (
	"strings"

	"github.com/asheshgoplani/panewatch/internal/tmuxc"
)

// InputFieldState classifies the input-field region at the bottom of a pane.
type InputFieldState string

const (
	InputEmpty    InputFieldState = "empty"          // prompt visible, nothing typed
	InputHasText  InputFieldState = "has_input"      // prompt visible with pending text
	InputNoField  InputFieldState = "no_input_field" // no recognizable prompt region
	InputParseErr InputFieldState = "parse_error"    // content unusable
)

// inputScanLines is how many trailing non-blank lines are inspected for the
// input-field region. Assistant TUIs keep the prompt within the last few
// lines; anything above is conversation scrollback.
const inputScanLines = 10

// promptMarkers are the characters assistant TUIs render at the head of the
// input line.
var promptMarkers = []string{">", "❯"}

// ParseInputField inspects the trailing lines of captured content and
// classifies the input-field region.
func ParseInputField(content string) InputFieldState {
	if strings.TrimSpace(content) == "" {
		return InputParseErr
	}

	lines := trailingLines(content, inputScanLines)
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(tmuxc.StripANSI(lines[i]))
		// Unwrap a box-drawing input frame: "│ > text │"
		line = strings.Trim(line, "│")
		line = strings.TrimSpace(line)
		// Claude Code pads the prompt with a non-breaking space
		line = strings.ReplaceAll(line, " ", " ")

		for _, marker := range promptMarkers {
			if line == marker {
				return InputEmpty
			}
			if rest, ok := strings.CutPrefix(line, marker+" "); ok {
				if strings.TrimSpace(rest) == "" {
					return InputEmpty
				}
				return InputHasText
			}
		}
	}

	return InputNoField
}

// trailingLines returns up to n trailing non-blank lines in original order.
func trailingLines(content string, n int) []string {
	all := strings.Split(content, "\n")
	var out []string
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		if strings.TrimSpace(all[i]) == "" {
			continue
		}
		out = append([]string{all[i]}, out...)
	}
	return out
}
