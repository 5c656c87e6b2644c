// Package markup turns Confluence storage-format XHTML into clean,
// ordered text fragments. Presentational cues carry meaning in the
// source documents: default/black text is approved requirement content,
// any explicitly colored text is an unapproved draft, and strikethrough
// marks content that is revoked entirely. The package resolves those
// cues into approval states via a pluggable StylePolicy, strips volatile
// revision-history sections, and linearizes tables and lists so that
// downstream structure extraction can still find their boundaries.
package markup

// ApprovalState classifies a fragment of document text.
type ApprovalState int

const (
	// StateApproved marks confirmed requirement content (default/black text).
	StateApproved ApprovalState = iota

	// StateUnapproved marks draft content (explicitly colored text).
	StateUnapproved
)

func (s ApprovalState) String() string {
	switch s {
	case StateApproved:
		return "approved"
	case StateUnapproved:
		return "unapproved"
	default:
		return "unknown"
	}
}

// Fragment is a contiguous run of normalized document text tagged with
// its approval state. Position preserves document reading order.
type Fragment struct {
	Text     string
	State    ApprovalState
	Position int
}

// Mode selects which fragments Extract returns.
type Mode int

const (
	// ModeAll returns every non-strikethrough fragment, each tagged
	// with its own approval state.
	ModeAll Mode = iota

	// ModeApproved returns only approved-state fragments.
	ModeApproved
)

// Style is a normalized style descriptor resolved from markup. It is
// deliberately parser-agnostic so alternate markup sources can feed the
// same policy.
type Style struct {
	// Color is the resolved foreground color declaration, lowercase,
	// e.g. "rgb(255,0,0)" or "#000000". Empty when no color is set.
	Color string

	// Strikethrough is true when the text is struck through.
	Strikethrough bool
}

// StylePolicy decides the approval state for a style descriptor.
// Strikethrough content never reaches the policy; it is excluded
// outright by the extractor.
type StylePolicy interface {
	Classify(style Style) ApprovalState
}

// Join concatenates fragment texts line by line, preserving order.
// Table rows stay adjacent, so pipe tables survive the round trip.
func Join(frags []Fragment) string {
	if len(frags) == 0 {
		return ""
	}
	out := make([]byte, 0, 256)
	for i, f := range frags {
		if i > 0 {
			out = append(out, '\n')
		}
		out = append(out, f.Text...)
	}
	return string(out)
}
