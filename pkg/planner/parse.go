package planner

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON strips the decorations vision models like to wrap
// around JSON: code fences, comments, trailing commas and any prose
// outside the outermost object.
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// extractJSON unmarshals a model response into dst after sanitizing,
// with one conservative brace-slice retry.
func extractJSON(raw string, dst any) error {
	candidate := sanitizeModelJSON(raw)
	if candidate == "" {
		return fmt.Errorf("empty model response")
	}
	if !strings.HasPrefix(candidate, "{") {
		return fmt.Errorf("no JSON object in model response")
	}
	if err := json.Unmarshal([]byte(candidate), dst); err == nil {
		return nil
	}
	start := strings.Index(candidate, "{")
	end := strings.LastIndex(candidate, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in model response")
	}
	if err := json.Unmarshal([]byte(candidate[start:end+1]), dst); err != nil {
		return fmt.Errorf("invalid JSON after extraction: %w", err)
	}
	return nil
}
