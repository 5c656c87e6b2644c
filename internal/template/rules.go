// Package template turns reference pages into requirement-type
// schemas and matches candidate documents to a type. Per-type
// expectations live in a JSON rule file, not in code, so rolling out a
// new requirement type is a config change.
package template

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/reqlens/reqlens/internal/structure"
)

// TypeRule is the per-type entry of the rule file. Title, Headings and
// Content hold synonym groups for type detection: a page matches when,
// for every group, at least one synonym is found. A nil group list
// skips that check. RequiredColumns and RequiredSections feed schema
// validation regardless of what the reference pages contain.
type TypeRule struct {
	Title            []string            `json:"title"`
	Headings         [][]string          `json:"headings"`
	Content          [][]string          `json:"content"`
	RequiredSections []string            `json:"required_sections"`
	RequiredColumns  map[string][]string `json:"required_columns"`
}

// Rules maps requirement type to its rule, preserving file order for
// detection priority.
type Rules struct {
	order []string
	byKey map[string]TypeRule
}

// LoadRules reads the rule file. An unreadable or malformed file is a
// startup error, not a silent empty rule set.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes the rule file payload.
func ParseRules(data []byte) (*Rules, error) {
	byKey := make(map[string]TypeRule)
	if err := json.Unmarshal(data, &byKey); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}

	order, err := keyOrder(data)
	if err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return &Rules{order: order, byKey: byKey}, nil
}

// keyOrder re-reads the top-level object with a token decoder, since
// map decoding loses declaration order.
func keyOrder(data []byte) ([]string, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	if _, err := dec.Token(); err != nil { // opening brace
		return nil, err
	}
	var order []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		order = append(order, key)

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Types returns the requirement types in file order.
func (r *Rules) Types() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Rule returns the rule for a requirement type.
func (r *Rules) Rule(reqType string) (TypeRule, bool) {
	rule, ok := r.byKey[reqType]
	return rule, ok
}

// DetectType matches a page title and its linearized content against
// the rules in file order and returns the first matching type. An
// empty string means no rule matched.
func (r *Rules) DetectType(title, content string) string {
	titleLower := strings.ToLower(title)
	contentLower := strings.ToLower(content)
	headings := headingLines(content)

	for _, reqType := range r.order {
		rule := r.byKey[reqType]
		if !matchTitle(titleLower, rule.Title) {
			continue
		}
		if !matchGroups(headings, rule.Headings) {
			continue
		}
		if !matchGroups([]string{contentLower}, rule.Content) {
			continue
		}
		return reqType
	}
	return ""
}

func matchTitle(titleLower string, synonyms []string) bool {
	if synonyms == nil {
		return true
	}
	for _, s := range synonyms {
		if strings.Contains(titleLower, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// matchGroups requires one hit per synonym group. For heading groups
// the haystacks are the heading lines; for content groups the whole
// text is a single haystack.
func matchGroups(haystacks []string, groups [][]string) bool {
	for _, group := range groups {
		found := false
		for _, synonym := range group {
			s := strings.ToLower(synonym)
			for _, h := range haystacks {
				if strings.Contains(h, s) {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// headingLines collects lowercase heading texts from linearized
// markdown.
func headingLines(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "#") {
			continue
		}
		text := strings.TrimSpace(strings.TrimLeft(line, "# "))
		if text != "" {
			out = append(out, strings.ToLower(text))
		}
	}
	return out
}

// normalizeHeading is shared by schema building and detection.
func normalizeHeading(s string) string {
	return structure.Normalize(s)
}
