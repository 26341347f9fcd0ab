package plot

import (
	"errors"
	"fmt"
	"strings"
)

var ErrMalformedCode = errors.New("malformed code block")

const fence = "```"

// ExtractCode pulls the program out of a model reply. A reply with exactly one
// fenced block yields that block's body; a reply without fences is taken as
// code. Several blocks, an unterminated fence or an empty program are errors.
func ExtractCode(reply string) (string, error) {
	lines := strings.Split(strings.ReplaceAll(reply, "\r\n", "\n"), "\n")

	var (
		body   []string
		blocks int
		open   bool
	)

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, fence) {
			if open {
				body = append(body, line)
			}
			continue
		}

		if open {
			if trimmed != fence {
				return "", fmt.Errorf("%w: fence opened inside a block", ErrMalformedCode)
			}
			open = false
			continue
		}

		blocks++
		if blocks > 1 {
			return "", fmt.Errorf("%w: reply has more than one code block", ErrMalformedCode)
		}
		open = true
	}

	if open {
		return "", fmt.Errorf("%w: unterminated code block", ErrMalformedCode)
	}

	code := trimBlankLines(lines)
	if blocks == 1 {
		code = trimBlankLines(body)
	}
	if code == "" {
		return "", fmt.Errorf("%w: no code in reply", ErrMalformedCode)
	}

	return code, nil
}

// trimBlankLines drops leading and trailing blank lines but keeps indentation.
func trimBlankLines(lines []string) string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	out := make([]string, 0, end-start)
	for _, l := range lines[start:end] {
		out = append(out, strings.TrimRight(l, " \t"))
	}
	return strings.Join(out, "\n")
}
