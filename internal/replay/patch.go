// Package replay reconstructs the on-stage program text from a run's
// timeline of unified-diff patch events.
package replay

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// Apply applies a unified-diff patch to current and returns the new text.
// Patches are producer-authored against a known prior state, so context and
// deletion lines must match the buffer exactly; any mismatch aborts the whole
// patch with no partial application.
func Apply(current, patch string) (string, error) {
	lines := strings.Split(strings.ReplaceAll(patch, "\r\n", "\n"), "\n")
	source := splitLines(current)

	i := 0
	delta := 0
	foundHunk := false

	for i < len(lines) {
		if !strings.HasPrefix(lines[i], "@@") {
			i++
			continue
		}

		foundHunk = true
		match := hunkHeaderRe.FindStringSubmatch(lines[i])
		if match == nil {
			return "", fmt.Errorf("Malformed hunk header")
		}

		oldStart, _ := strconv.Atoi(match[1])
		oldCount := countOrOne(match[2])
		newCount := countOrOne(match[4])

		// oldStart of 0 means insertion into an empty file.
		pointer := oldStart - 1 + delta
		if oldStart == 0 {
			pointer = delta
		}
		if pointer < 0 {
			return "", fmt.Errorf("Invalid hunk start near line %d", oldStart)
		}
		i++

	hunk:
		for i < len(lines) && !strings.HasPrefix(lines[i], "@@") {
			hunkLine := lines[i]
			if strings.HasPrefix(hunkLine, `\ No newline at end of file`) {
				i++
				continue
			}

			var prefix byte
			if hunkLine != "" {
				prefix = hunkLine[0]
			}
			payload := ""
			if hunkLine != "" {
				payload = hunkLine[1:]
			}

			switch prefix {
			case ' ':
				if pointer >= len(source) || source[pointer] != payload {
					return "", fmt.Errorf("Context mismatch near line %d", pointer+1)
				}
				pointer++
			case '-':
				if pointer >= len(source) || source[pointer] != payload {
					return "", fmt.Errorf("Delete mismatch near line %d", pointer+1)
				}
				source = append(source[:pointer], source[pointer+1:]...)
			case '+':
				source = insertLine(source, pointer, payload)
				pointer++
			default:
				// A blank separator line ends the hunk body.
				if strings.TrimSpace(hunkLine) == "" {
					break hunk
				}
				return "", fmt.Errorf("Unexpected hunk line: %s", hunkLine)
			}

			i++
		}

		delta += newCount - oldCount
	}

	if !foundHunk {
		return "", fmt.Errorf("No hunk found in patch")
	}

	return strings.Join(source, "\n"), nil
}

func insertLine(source []string, at int, line string) []string {
	if at > len(source) {
		at = len(source)
	}
	source = append(source, "")
	copy(source[at+1:], source[at:])
	source[at] = line
	return source
}

func countOrOne(s string) int {
	if s == "" {
		return 1
	}
	n, _ := strconv.Atoi(s)
	return n
}

func splitLines(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(strings.ReplaceAll(value, "\r\n", "\n"), "\n")
}
