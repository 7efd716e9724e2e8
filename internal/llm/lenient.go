package llm

import (
	"regexp"
	"strings"
)

var reJSONObject = regexp.MustCompile(`(?s)\{.*\}`)

// cleanModelJSON strips markdown code fences the model sometimes wraps around JSON.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return strings.Trim(s, "`")
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// JSONObjectCandidates returns substrings of s that may hold a JSON object, best guess first:
// the widest {...} span, then the first brace-balanced object.
func JSONObjectCandidates(s string) []string {
	s = cleanModelJSON(s)
	var out []string
	if m := reJSONObject.FindString(s); m != "" {
		out = append(out, m)
	}
	if b := firstBalancedObject(s); b != "" && (len(out) == 0 || out[0] != b) {
		out = append(out, b)
	}
	return out
}

// firstBalancedObject scans from the first '{' to its matching '}', honoring JSON strings.
func firstBalancedObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
