package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var codeBlockRe = regexp.MustCompile("```(?:json)?\\s*\\n?([\\s\\S]*?)\\n?```")

// ExtractJSON pulls the first JSON object out of a model response that
// may wrap it in markdown fences or surround it with prose. Returns an
// empty string when no valid object is present.
func ExtractJSON(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}

	if m := codeBlockRe.FindStringSubmatch(content); len(m) > 1 {
		if candidate := firstObject(m[1]); candidate != "" {
			return candidate
		}
	}
	return firstObject(content)
}

// firstObject decodes from the first opening brace; json.Decoder finds
// the object boundary correctly even when string values contain
// braces.
func firstObject(content string) string {
	start := strings.Index(content, "{")
	if start == -1 {
		return ""
	}

	decoder := json.NewDecoder(strings.NewReader(content[start:]))
	var raw json.RawMessage
	if err := decoder.Decode(&raw); err == nil && len(raw) > 0 && raw[0] == '{' {
		return string(raw)
	}
	return ""
}
