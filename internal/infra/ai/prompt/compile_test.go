package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompile(t *testing.T) {
	out := Compile("Visit {{url}} titled {{title}}", map[string]string{
		"url":   "https://example.com",
		"title": "Example",
	})
	assert.Equal(t, "Visit https://example.com titled Example", out)
}

func TestCompileRepeatedAndUnknownPlaceholders(t *testing.T) {
	out := Compile("{{a}} and {{a}} but {{missing}}", map[string]string{"a": "x"})
	assert.Equal(t, "x and x but {{missing}}", out)
}

func TestCompileValueWithBraces(t *testing.T) {
	out := Compile("data: {{json}}", map[string]string{"json": `{"k":"v"}`})
	assert.Equal(t, `data: {"k":"v"}`, out)
}

func TestFallbacksCarryExpectedPlaceholders(t *testing.T) {
	for _, v := range []string{"{{url}}", "{{scanDataTitle}}", "{{scanDataJson}}", "{{scanDataContent}}", "{{existingFeatures}}"} {
		assert.Contains(t, GherkinGeneratorFallback, v)
		assert.Contains(t, GherkinChatAgentFallback, v)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "ab", Truncate("abcd", 2))
	assert.Equal(t, "abcd", Truncate("abcd", 0))

	// rune-safe: never split a multibyte character
	s := strings.Repeat("é", 5)
	assert.Equal(t, "ééé", Truncate(s, 3))
}
