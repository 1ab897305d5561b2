package evaluation

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ParsePayload extracts the structured object from a model reply. It tries
// the whole text, then fenced or embedded JSON objects. When nothing parses
// it returns a fallback payload carrying the raw text and structured=false.
func ParsePayload(text, agent string) (payload map[string]any, structured bool) {
	trimmed := strings.TrimSpace(stripFences(text))

	if obj, ok := objectFrom(trimmed); ok {
		return obj, true
	}
	for _, candidate := range embeddedObjects(trimmed) {
		if obj, ok := objectFrom(candidate); ok {
			return obj, true
		}
	}
	if i, j := strings.IndexByte(trimmed, '{'), strings.LastIndexByte(trimmed, '}'); i >= 0 && j > i {
		if obj, ok := objectFrom(trimmed[i : j+1]); ok {
			return obj, true
		}
	}

	return map[string]any{
		"perspective":         agent + " perspective",
		"analysis":            strings.TrimSpace(text),
		"confidence_score":    0.5,
		"key_findings":        []any{"Unable to parse structured response"},
		"supporting_evidence": []any{},
		"verdict":             string(VerdictUnverifiable),
		"reasoning":           "Response could not be parsed into structured format",
	}, false
}

func objectFrom(s string) (map[string]any, bool) {
	if s == "" || !gjson.Valid(s) {
		return nil, false
	}
	res := gjson.Parse(s)
	if !res.IsObject() {
		return nil, false
	}
	m, ok := res.Value().(map[string]any)
	return m, ok
}

func stripFences(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	rest := s[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		return rest[:end]
	}
	return s
}

// embeddedObjects returns balanced {...} spans in order of appearance,
// honoring JSON string quoting.
func embeddedObjects(s string) []string {
	var out []string
	for start := 0; start < len(s); start++ {
		if s[start] != '{' {
			continue
		}
		depth, inStr, esc := 0, false, false
		for i := start; i < len(s); i++ {
			c := s[i]
			if inStr {
				switch {
				case esc:
					esc = false
				case c == '\\':
					esc = true
				case c == '"':
					inStr = false
				}
				continue
			}
			switch c {
			case '"':
				inStr = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					out = append(out, s[start:i+1])
					start = i
					i = len(s)
				}
			}
		}
	}
	return out
}
