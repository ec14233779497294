// Package coerce turns free-form language-model output into the structured
// shapes the pipeline expects.
package coerce

import (
	"regexp"
	"strings"
)

var objectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// ForceJSONText returns the JSON object embedded in text. A trimmed text that
// already starts with '{' and ends with '}' is returned as is; otherwise the
// first greedy brace-delimited substring is returned. Without any braces the
// original text comes back unchanged. Brace balance is not checked.
func ForceJSONText(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		return trimmed
	}
	if m := objectPattern.FindString(text); m != "" {
		return m
	}
	return text
}
