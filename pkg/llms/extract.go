package llms

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ExtractJSON robustly pulls a JSON object out of an LLM response: fenced
// code blocks are stripped, direct parsing is attempted first, then the
// outermost balanced object is scanned for. The caller decides what a total
// failure means; this function just reports it.
func ExtractJSON(content string) (map[string]any, error) {
	content = stripFences(strings.TrimSpace(content))

	if m, err := parseJSONObject(content); err == nil {
		return m, nil
	}

	// Scan for balanced top-level objects and take the first that parses.
	for _, candidate := range balancedObjects(content) {
		if m, err := parseJSONObject(candidate); err == nil {
			return m, nil
		}
	}

	return nil, fmt.Errorf("no JSON object found in response")
}

func stripFences(s string) string {
	fenced := false
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
		fenced = true
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
		fenced = true
	}
	if fenced {
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

func parseJSONObject(s string) (map[string]any, error) {
	var m map[string]any
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// balancedObjects returns every top-level {...} span in s, respecting string
// literals and escapes.
func balancedObjects(s string) []string {
	var spans []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					spans = append(spans, s[start:i+1])
					start = -1
				}
			}
		}
	}
	return spans
}

// Decode maps a raw JSON object into a typed struct permissively: unknown
// keys are ignored and string/number mismatches are coerced. Validation
// against the variant's semantics stays with the caller.
func Decode(raw map[string]any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(normalizeNumbers(raw))
}

// normalizeNumbers converts json.Number values (from UseNumber decoding)
// into float64 so weak typing behaves predictably.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeNumbers(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeNumbers(val)
		}
		return out
	default:
		return v
	}
}
