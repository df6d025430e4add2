// internal/llmutil/parser.go
package llmutil

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// \x60 is a backtick; raw strings cannot contain one.

	// jsonObjectRegex extracts a JSON object wrapped in a markdown fence.
	jsonObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json|JSON)?\\s*({.*})\\s*\x60\x60\x60")
	// jsonArrayRegex extracts a JSON array wrapped in a markdown fence.
	jsonArrayRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json|JSON)?\\s*(\\[.*\\])\\s*\x60\x60\x60")
)

// ExtractJSON returns the JSON payload of a model reply. It unwraps markdown
// fences and, failing that, cuts the outermost object or array out of
// surrounding prose. The input is returned trimmed when nothing is found.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)
	isObject := strings.Contains(response, "{")
	isArray := strings.Contains(response, "[")

	if strings.Contains(response, "```") {
		var matches []string
		if isObject {
			matches = jsonObjectRegex.FindStringSubmatch(response)
		}
		if len(matches) <= 1 && isArray {
			matches = jsonArrayRegex.FindStringSubmatch(response)
		}
		if len(matches) > 1 {
			return matches[1]
		}
	}

	if strings.HasPrefix(response, "{") || strings.HasPrefix(response, "[") {
		return response
	}
	if isObject {
		fb, lb := strings.Index(response, "{"), strings.LastIndex(response, "}")
		if fb != -1 && lb > fb {
			return response[fb : lb+1]
		}
	}
	if isArray {
		fb, lb := strings.Index(response, "["), strings.LastIndex(response, "]")
		if fb != -1 && lb > fb {
			return response[fb : lb+1]
		}
	}
	return response
}

// ParseJSONResponse decodes a model reply into T after ExtractJSON.
func ParseJSONResponse[T any](response string) (*T, error) {
	payload := ExtractJSON(response)
	var result T
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, Truncate(payload, 500))
	}
	return &result, nil
}

// Truncate shortens s to at most maxLen bytes plus an ellipsis.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	// Back off to a rune boundary.
	cut := maxLen
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
