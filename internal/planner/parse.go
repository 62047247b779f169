package planner

import (
	"encoding/json"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ParseSubtasks reads a model response as a JSON array of strings when it is
// one, and otherwise falls back to ParseNumbered.
func ParseSubtasks(response string) []string {
	if items, ok := parseJSON(response); ok {
		return items
	}
	return ParseNumbered(response)
}

// ParseNumbered extracts list items line by line. A trimmed line is an item
// when it starts with a digit or with "-". Digit lines lose everything up to
// and including the first "."; dash lines lose only the leading "-" and keep
// any periods in their text ("- A. B" is "A. B", not "B"). Every other line
// is dropped.
func ParseNumbered(response string) []string {
	out := []string{}
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r, _ := utf8.DecodeRuneInString(line)
		switch {
		case unicode.IsDigit(r):
			if _, rest, ok := strings.Cut(line, "."); ok {
				line = rest
			}
		case r == '-':
			line = line[1:]
		default:
			continue
		}
		out = append(out, strings.TrimSpace(line))
	}
	return out
}

func parseJSON(response string) ([]string, bool) {
	s := stripFence(strings.TrimSpace(response))
	if !strings.HasPrefix(s, "[") {
		return nil, false
	}
	var raw []string
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out, true
}

// stripFence removes a surrounding ``` or ```json code fence.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	body := strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if i := strings.IndexByte(body, '\n'); i >= 0 && !strings.HasPrefix(strings.TrimSpace(body[:i]), "[") {
		body = body[i+1:]
	}
	return strings.TrimSpace(body)
}
