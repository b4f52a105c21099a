package gateway

import (
	"encoding/json"
	"errors"
	"strings"
)

// DefaultTailLines is how many trailing output lines are examined for a result
const DefaultTailLines = 5

// ScanTail looks for the result object in program output.
//
// Lines are walked from the last one backwards and at most maxLines of them
// are examined. A line is a candidate when, once trimmed, it starts with '{'
// and ends with '}'. The first candidate that parses as JSON is returned.
// Trailing whitespace, final newlines included, is ignored.
func ScanTail(output string, maxLines int) (json.RawMessage, bool) {
	if maxLines <= 0 {
		maxLines = DefaultTailLines
	}

	lines := strings.Split(strings.TrimSpace(output), "\n")

	examined := 0
	for i := len(lines) - 1; i >= 0 && examined < maxLines; i-- {
		examined++

		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
			continue
		}
		if !json.Valid([]byte(line)) {
			continue
		}
		return json.RawMessage(line), true
	}
	return nil, false
}

var errEmptyOutput = errors.New("empty output")

// parseWhole parses the entire output as one JSON value
func parseWhole(output []byte) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(output))
	if trimmed == "" {
		return nil, errEmptyOutput
	}
	var v json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return nil, err
	}
	return v, nil
}
