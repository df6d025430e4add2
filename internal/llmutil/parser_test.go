// internal/llmutil/parser_test.go
package llmutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"fenced json", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced no tag", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced array", "```json\n[1,2]\n```", `[1,2]`},
		{"prose around object", "Sure! Here you go: {\"a\":{\"b\":2}} Hope it helps.", `{"a":{"b":2}}`},
		{"prose before fence", "Plan below.\n```json\n{\"a\":1}\n```", `{"a":1}`},
		{"no json", "I cannot see the screen", "I cannot see the screen"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractJSON(tc.in))
		})
	}
}

func TestParseJSONResponse(t *testing.T) {
	got, err := ParseJSONResponse[sample]("```json\n{\"reasoning\":\"click it\",\"confidence\":0.8}\n```")
	require.NoError(t, err)
	assert.Equal(t, sample{Reasoning: "click it", Confidence: 0.8}, *got)

	_, err = ParseJSONResponse[sample]("not json at all")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal LLM JSON response")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
	assert.Equal(t, "", Truncate("abc", 0))
	// "é" is two bytes; cutting inside it backs off to the boundary.
	assert.Equal(t, "a...", Truncate("aéb", 2))
}
