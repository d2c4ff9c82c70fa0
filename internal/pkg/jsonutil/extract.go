package jsonutil

import (
	"strings"
)

// ExtractObject pulls the first balanced JSON object out of free-form text.
// Charting platforms let users wrap the JSON body of an alert in arbitrary
// prose ("Alert fired! {...}"), so intake cannot assume the request body is
// pure JSON. String literals are honored while matching braces.
func ExtractObject(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	start := strings.IndexByte(raw, '{')
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escape := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(raw[start : i+1]), true
			}
		}
	}
	return "", false
}
