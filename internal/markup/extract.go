package markup

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Extractor walks normalized markup in document order and produces
// ordered Fragments. Classification is delegated to the StylePolicy;
// the extractor only resolves each node's effective style (nearest
// explicit foreground color wins, so a black child inside a colored
// container is classified on its own).
//
// Tables are linearized to pipe-delimited rows and lists to dash or
// numbered markers, so table and list boundaries survive into the
// extracted text.
type Extractor struct {
	policy StylePolicy
	logger *slog.Logger
}

// NewExtractor creates an Extractor. A nil policy falls back to
// DefaultPolicy.
func NewExtractor(policy StylePolicy, logger *slog.Logger) *Extractor {
	if policy == nil {
		policy = DefaultPolicy{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{policy: policy, logger: logger}
}

// Extract returns the document's fragments in reading order. In
// ModeAll every non-strikethrough fragment is returned, tagged with its
// approval state; in ModeApproved only approved fragments are returned.
func (e *Extractor) Extract(normalized string, mode Mode) ([]Fragment, error) {
	if strings.TrimSpace(normalized) == "" {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(normalized))
	if err != nil {
		return nil, fmt.Errorf("parse normalized markup: %w", err)
	}

	body := doc.Find("body")
	if body.Length() == 0 {
		return nil, nil
	}

	w := &walker{policy: e.policy, mode: mode}
	for c := body.Get(0).FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			w.block(c, StateApproved)
		}
	}

	e.logger.Debug("extracted fragments", "mode", mode, "count", len(w.frags))
	return w.frags, nil
}

// Text extracts fragments and joins them line by line.
func (e *Extractor) Text(normalized string, mode Mode) (string, error) {
	frags, err := e.Extract(normalized, mode)
	if err != nil {
		return "", err
	}
	return Join(frags), nil
}

// span is a run of inline text sharing one approval state.
type span struct {
	text  string
	state ApprovalState
}

type walker struct {
	policy StylePolicy
	mode   Mode
	frags  []Fragment
	pos    int
}

// emit appends a fragment, applying the mode filter. Leading
// whitespace is preserved so nested-list indentation survives.
func (w *walker) emit(text string, state ApprovalState) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if w.mode == ModeApproved && state != StateApproved {
		return
	}
	w.frags = append(w.frags, Fragment{Text: text, State: state, Position: w.pos})
	w.pos++
}

// resolveState computes a node's effective approval state: an explicit
// foreground color overrides whatever was inherited, in either
// direction.
func (w *walker) resolveState(n *html.Node, inherited ApprovalState) ApprovalState {
	color := colorFromStyleAttr(attr(n, "style"))
	if color == "" {
		return inherited
	}
	return w.policy.Classify(Style{Color: color})
}

// excluded reports nodes that never contribute text: strikethrough
// content and Jira issue macros.
func excluded(n *html.Node) bool {
	switch n.Data {
	case "s", "del":
		return true
	case "ac:structured-macro":
		return attr(n, "ac:name") == "jira"
	}
	return struckThrough(attr(n, "style"))
}

var headingLevel = map[string]int{
	"h1": 1, "h2": 2, "h3": 3, "h4": 4, "h5": 5, "h6": 6,
}

// block processes one block-level element.
func (w *walker) block(n *html.Node, inherited ApprovalState) {
	if excluded(n) {
		return
	}
	state := w.resolveState(n, inherited)

	if level, ok := headingLevel[n.Data]; ok {
		text, st, any := w.inlineText(n, state, true)
		if any {
			w.emit(strings.Repeat("#", level)+" "+text, st)
		}
		return
	}

	switch n.Data {
	case "table":
		w.table(n, state)
	case "ul", "ol":
		w.list(n, state, 0)
	case "ac:structured-macro":
		// Non-history expand macros are normally unwrapped by the
		// Normalizer; handle leftovers as containers.
		w.container(n, state)
	case "ac:rich-text-body", "ac:layout", "ac:layout-section", "ac:layout-cell":
		w.container(n, state)
	case "p":
		w.paragraph(n, state)
	default:
		if hasBlockChild(n) {
			w.container(n, state)
		} else {
			w.paragraph(n, state)
		}
	}
}

// container processes element children as independent blocks; stray
// text between blocks is not significant in Confluence layouts.
func (w *walker) container(n *html.Node, state ApprovalState) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			w.block(c, state)
		}
	}
}

// paragraph emits one fragment per maximal same-state run of inline
// content, so that mixed-approval paragraphs split cleanly and the
// approved subset stays intact across modes.
func (w *walker) paragraph(n *html.Node, state ApprovalState) {
	for _, s := range mergeSpans(w.inlineSpans(n, state, true)) {
		w.emit(s.text, s.state)
	}
}

func hasBlockChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "h1", "h2", "h3", "h4", "h5", "h6", "table", "ul", "ol", "p", "div",
			"ac:rich-text-body", "ac:layout", "ac:layout-section", "ac:layout-cell":
			return true
		}
	}
	return false
}

// inlineSpans collects the inline text runs below n. skipLists keeps
// nested lists out of a list item's own text; they are walked
// separately with increased indentation.
func (w *walker) inlineSpans(n *html.Node, state ApprovalState, skipLists bool) []span {
	var out []span
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			out = append(out, span{text: c.Data, state: state})
		case html.ElementNode:
			if excluded(c) {
				continue
			}
			if skipLists && (c.Data == "ul" || c.Data == "ol") {
				continue
			}
			childState := w.resolveState(c, state)
			switch c.Data {
			case "a", "ac:link":
				if text := linkText(c); text != "" {
					out = append(out, span{text: "[" + text + "]", state: childState})
				}
			case "time":
				if dt := attr(c, "datetime"); dt != "" {
					out = append(out, span{text: dt, state: childState})
				}
			case "br":
				out = append(out, span{text: " ", state: state})
			default:
				out = append(out, w.inlineSpans(c, childState, skipLists)...)
			}
		}
	}
	return out
}

// inlineText joins a node's inline spans into one cleaned string.
// The text is the same in every mode; a run mixing approval states
// makes the whole composite unapproved, so approved-mode output stays
// an exact subset of the full output.
func (w *walker) inlineText(n *html.Node, state ApprovalState, skipLists bool) (string, ApprovalState, bool) {
	spans := mergeSpans(w.inlineSpans(n, state, skipLists))
	if len(spans) == 0 {
		return "", state, false
	}

	parts := make([]string, 0, len(spans))
	st := spans[0].state
	for _, s := range spans {
		if s.state != st {
			st = StateUnapproved
		}
		parts = append(parts, s.text)
	}
	return collapseSpace(strings.Join(parts, " ")), st, true
}

// linkText prefers the Confluence page title over the anchor body.
func linkText(n *html.Node) string {
	title := ""
	eachElement(n, func(c *html.Node) {
		if title == "" && c.Data == "ri:page" {
			title = attr(c, "ri:content-title")
		}
	})
	if title != "" {
		return title
	}
	return nodeText(n)
}

// table emits one fragment per row: "| a | b |". The first header row
// additionally carries a markdown separator line so downstream parsing
// can tell headers from data.
func (w *walker) table(n *html.Node, state ApprovalState) {
	rows := tableRows(n)
	hasHeader := false

	for _, tr := range rows {
		rowState := w.resolveState(tr, state)

		var cells []string
		anyText := false
		header := true
		cellCount := 0
		rowSt := StateApproved
		for c := tr.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || (c.Data != "td" && c.Data != "th") {
				continue
			}
			cellCount++
			if c.Data != "th" {
				header = false
			}
			text, cellSt, ok := w.inlineText(c, w.resolveState(c, rowState), false)
			if ok {
				anyText = true
				// The row is one fragment; any unapproved cell taints it.
				if cellSt != StateApproved {
					rowSt = StateUnapproved
				}
			}
			cells = append(cells, text)
		}
		if cellCount == 0 || !anyText {
			continue
		}

		rowText := "| " + strings.Join(cells, " | ") + " |"
		if header && !hasHeader {
			sep := "|" + strings.Repeat(" --- |", cellCount)
			rowText += "\n" + sep
			hasHeader = true
		}
		w.emit(rowText, rowSt)
	}
}

// tableRows returns the table's own rows in document order, looking
// through thead/tbody/tfoot but not into nested tables.
func tableRows(table *html.Node) []*html.Node {
	var rows []*html.Node
	for c := table.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "tr":
			rows = append(rows, c)
		case "thead", "tbody", "tfoot":
			for r := c.FirstChild; r != nil; r = r.NextSibling {
				if r.Type == html.ElementNode && r.Data == "tr" {
					rows = append(rows, r)
				}
			}
		}
	}
	return rows
}

// ulMarkers cycles per nesting depth, mirroring how the source pages
// alternate bullet styles.
var ulMarkers = []string{"-", "*", "+"}

// list emits one fragment per list item. Ordinals count every item
// regardless of mode so approved-only output preserves the numbering
// of the full document.
func (w *walker) list(n *html.Node, state ApprovalState, depth int) {
	indent := strings.Repeat("    ", depth)
	ordered := n.Data == "ol"
	marker := ulMarkers[depth%len(ulMarkers)]

	ordinal := 0
	for li := n.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.Data != "li" {
			continue
		}
		ordinal++
		if excluded(li) {
			continue
		}
		liState := w.resolveState(li, state)

		text, st, ok := w.inlineText(li, liState, true)
		if ok {
			if ordered {
				w.emit(indent+strconv.Itoa(ordinal)+". "+text, st)
			} else {
				w.emit(indent+marker+" "+text, st)
			}
		}

		for c := li.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && (c.Data == "ul" || c.Data == "ol") {
				w.list(c, liState, depth+1)
			}
		}
	}
}

// mergeSpans joins adjacent spans sharing a state and drops runs that
// are pure whitespace. Joined spans keep the source's own whitespace;
// inline markup splitting a word ("<strong>AP</strong>I") must not
// grow a separator.
func mergeSpans(spans []span) []span {
	var out []span
	for _, s := range spans {
		if len(out) > 0 && out[len(out)-1].state == s.state {
			out[len(out)-1].text += s.text
			continue
		}
		out = append(out, s)
	}
	cleaned := out[:0]
	for _, s := range out {
		s.text = collapseSpace(s.text)
		if s.text == "" {
			continue
		}
		cleaned = append(cleaned, s)
	}
	return cleaned
}

var spaceRe = regexp.MustCompile(`\s+`)

func collapseSpace(s string) string {
	s = spaceRe.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "] .", "].")
	return strings.TrimSpace(s)
}
