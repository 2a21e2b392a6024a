package tmuxc

import "strings"

// StripANSI removes ANSI escape codes from captured content in a single O(n)
// pass. Captured pane text carries color and cursor sequences that would make
// content diffs and clear-verification flap.
//
// Regex is deliberately avoided: complex ANSI patterns can backtrack
// catastrophically on malformed escape sequences.
func StripANSI(content string) string {
	// Fast path: no ESC (0x1B) and no 8-bit CSI (0x9B)
	if strings.IndexByte(content, '\x1b') < 0 && strings.IndexByte(content, '\x9b') < 0 {
		return content
	}

	var b strings.Builder
	b.Grow(len(content))

	i := 0
	for i < len(content) {
		switch content[i] {
		case '\x1b':
			if i+1 < len(content) {
				switch content[i+1] {
				case '[': // CSI: ESC [ params letter
					i = skipCSI(content, i+2)
					continue
				case ']': // OSC: ESC ] ... BEL or ESC \
					i = skipOSC(content, i)
					continue
				default: // two-byte escape
					i += 2
					continue
				}
			}
			i++
		case '\x9b': // 8-bit CSI
			i = skipCSI(content, i+1)
		default:
			b.WriteByte(content[i])
			i++
		}
	}

	return b.String()
}

// skipCSI advances past a CSI body starting at i, stopping after the first
// terminating letter.
func skipCSI(s string, i int) int {
	for i < len(s) {
		c := s[i]
		i++
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
			break
		}
	}
	return i
}

// skipOSC advances past an OSC sequence starting at the ESC at i. OSC is
// terminated by BEL or by ST (ESC \); an unterminated sequence consumes the
// rest of the string.
func skipOSC(s string, i int) int {
	if bell := strings.Index(s[i:], "\x07"); bell != -1 {
		return i + bell + 1
	}
	if st := strings.Index(s[i:], "\x1b\\"); st != -1 {
		return i + st + 2
	}
	return len(s)
}
