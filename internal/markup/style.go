package markup

import (
	"regexp"
	"strings"
)

// blackColors enumerates color declarations that still count as
// approved text. Confluence emits several near-black values for default
// text depending on editor version and theme.
var blackColors = map[string]struct{}{
	"black":            {},
	"#000":             {},
	"#000000":          {},
	"rgb(0,0,0)":       {},
	"rgb(0, 0, 0)":     {},
	"rgba(0,0,0,1)":    {},
	"rgba(0, 0, 0, 1)": {},
	"rgb(51,51,0)":     {},
	"rgb(51, 51, 0)":   {},
	"rgb(0,51,0)":      {},
	"rgb(0, 51, 0)":    {},
	"rgb(0,51,102)":    {},
	"rgb(0, 51, 102)":  {},
	"rgb(51,51,51)":    {},
	"rgb(51, 51, 51)":  {},
	"rgb(23,43,77)":    {},
	"rgb(23, 43, 77)":  {},
}

// DefaultPolicy implements the production classification rule: absent
// or black foreground color means approved; any other explicit color
// means unapproved.
type DefaultPolicy struct{}

// Classify implements StylePolicy.
func (DefaultPolicy) Classify(style Style) ApprovalState {
	if style.Color == "" || isBlackColor(style.Color) {
		return StateApproved
	}
	return StateUnapproved
}

func isBlackColor(color string) bool {
	_, ok := blackColors[strings.ToLower(strings.TrimSpace(color))]
	return ok
}

// colorRe captures the foreground color declaration from an inline
// style attribute. It intentionally skips background-color.
var colorRe = regexp.MustCompile(`(?:^|;)\s*color\s*:\s*([^;]+)`)

// colorFromStyleAttr extracts the foreground color from an inline style
// attribute value, lowercase and trimmed. Returns "" when the attribute
// declares no foreground color.
func colorFromStyleAttr(styleAttr string) string {
	m := colorRe.FindStringSubmatch(strings.ToLower(styleAttr))
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// struckThrough reports whether an inline style declares line-through
// text decoration.
func struckThrough(styleAttr string) bool {
	s := strings.ToLower(styleAttr)
	if !strings.Contains(s, "text-decoration") {
		return false
	}
	return strings.Contains(s, "line-through")
}
