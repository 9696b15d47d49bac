package prompt

import "strings"

// Compile substitutes {{name}} placeholders. Plain substitution, no
// escaping: the upstream prompt-store contract is literal text and the
// values themselves may contain braces or newlines.
func Compile(template string, vars map[string]string) string {
	out := template
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}

// Truncate caps a string for prompt-size control. Rune-safe.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
