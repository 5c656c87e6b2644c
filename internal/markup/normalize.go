package markup

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// historyPhrases identify revision-history sections. Requirement pages
// come from both Russian- and English-language spaces.
var historyPhrases = []string{
	"история изменений",
	"change history",
	"revision history",
}

// historyTableHeaders is the header fingerprint of a revision-history
// table. Three or more matches classify the table as history.
var historyTableHeaders = []string{
	"дата", "date",
	"описание", "description", "desc",
	"автор", "author",
	"задача в jira", "jira", "ticket", "issue",
	"версия", "version",
	"изменения", "changes",
}

// Normalizer converts raw Confluence storage-format markup into
// normalized markup: revision-history sections removed, expand macros
// unwrapped into the content flow, everything else preserved.
//
// Normalize is idempotent: applying it twice yields the same result as
// applying it once. A document without a history section passes through
// structurally unchanged.
type Normalizer struct {
	logger *slog.Logger
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Normalize strips revision-history sections and unwraps expand macros.
// Empty input is returned unchanged.
func (n *Normalizer) Normalize(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return raw, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("parse markup: %w", err)
	}

	removed := 0
	removed += removeHistoryMacros(doc)
	removed += removeExpandContainers(doc)
	removed += removeHeadingSections(doc)
	removed += removeParagraphSections(doc)
	removed += removeFingerprintTables(doc)
	unwrapExpandMacros(doc)

	out, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("render normalized markup: %w", err)
	}

	n.logger.Debug("normalized markup",
		"history_sections_removed", removed,
		"raw_len", len(raw),
		"normalized_len", len(out))

	return out, nil
}

// isHistoryText reports whether text (heading, paragraph, expand title,
// or element id) names a revision-history section.
func isHistoryText(text string) bool {
	if text == "" {
		return false
	}
	t := strings.ToLower(strings.TrimSpace(text))
	for _, phrase := range historyPhrases {
		if strings.Contains(t, phrase) {
			return true
		}
	}
	// Heading ids squash spaces and separators.
	squashed := strings.NewReplacer(" ", "", "-", "", "_", "").Replace(t)
	for _, phrase := range historyPhrases {
		if strings.Contains(squashed, strings.ReplaceAll(phrase, " ", "")) {
			return true
		}
	}
	return false
}

// removeHistoryMacros removes whole expand macros whose title parameter
// names the revision history (storage-format analogue of an expand
// block titled "История изменений").
func removeHistoryMacros(doc *goquery.Document) int {
	removed := 0
	for _, macro := range elementsNamed(doc, "ac:structured-macro") {
		if attr(macro, "ac:name") != "expand" {
			continue
		}
		title := ""
		eachElement(macro, func(c *html.Node) {
			if c.Data == "ac:parameter" && attr(c, "ac:name") == "title" {
				title = nodeText(c)
			}
		})
		if isHistoryText(title) {
			detach(macro)
			removed++
		}
	}
	return removed
}

// removeExpandContainers handles the rendered-view pattern:
// <div class="expand-container"><div class="expand-control">История изменений...
func removeExpandContainers(doc *goquery.Document) int {
	removed := 0
	doc.Find("div.expand-container").Each(func(_ int, container *goquery.Selection) {
		control := container.Find("div.expand-control").First()
		if control.Length() == 0 {
			return
		}
		if isHistoryText(control.Text()) {
			container.Remove()
			removed++
		}
	})
	return removed
}

// removeHeadingSections removes h1-h6 headings naming the revision
// history together with the table content that follows them.
func removeHeadingSections(doc *goquery.Document) int {
	removed := 0
	doc.Find("h1,h2,h3,h4,h5,h6").Each(func(_ int, heading *goquery.Selection) {
		node := heading.Get(0)
		if !isHistoryText(heading.Text()) && !isHistoryText(attr(node, "id")) {
			return
		}
		for _, follower := range followingHistoryNodes(node) {
			detach(follower)
		}
		detach(node)
		removed++
	})
	return removed
}

// removeParagraphSections removes "Revision history:" lead-in
// paragraphs together with the tables that follow them.
func removeParagraphSections(doc *goquery.Document) int {
	removed := 0
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		if !isHistoryText(p.Text()) {
			return
		}
		node := p.Get(0)
		for _, follower := range followingHistoryNodes(node) {
			detach(follower)
		}
		detach(node)
		removed++
	})
	return removed
}

// removeFingerprintTables removes tables recognized as revision history
// by their header row alone, wherever they appear.
func removeFingerprintTables(doc *goquery.Document) int {
	removed := 0
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		if !isHistoryTable(table.Get(0)) {
			return
		}
		// Prefer removing the table-wrap container Confluence renders.
		if wrap := table.Closest("div.table-wrap"); wrap.Length() > 0 {
			wrap.Remove()
		} else {
			table.Remove()
		}
		removed++
	})
	return removed
}

// isHistoryTable matches a table's header cells against the
// revision-history fingerprint.
func isHistoryTable(table *html.Node) bool {
	headers := headerCellTexts(table)
	if len(headers) == 0 {
		return false
	}

	matches := 0
	for _, h := range headers {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, known := range historyTableHeaders {
			if strings.Contains(h, known) {
				matches++
				break
			}
		}
	}
	return matches >= 3
}

// headerCellTexts returns the texts of a table's header row: thead
// cells when present, otherwise the first row.
func headerCellTexts(table *html.Node) []string {
	var row *html.Node
	eachElement(table, func(n *html.Node) {
		if row != nil {
			return
		}
		if n.Data == "thead" {
			eachElement(n, func(tr *html.Node) {
				if row == nil && tr.Data == "tr" {
					row = tr
				}
			})
		}
	})
	if row == nil {
		eachElement(table, func(n *html.Node) {
			if row == nil && n.Data == "tr" {
				row = n
			}
		})
	}
	if row == nil {
		return nil
	}

	var texts []string
	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "th" || c.Data == "td") {
			texts = append(texts, nodeText(c))
		}
	}
	return texts
}

// followingHistoryNodes collects the sibling elements after a history
// heading or paragraph that belong to the history section: table-wrap
// divs, bare tables, and containers holding a fingerprint table.
// Collection stops at the first significant non-history sibling.
func followingHistoryNodes(start *html.Node) []*html.Node {
	var out []*html.Node
	for sib := start.NextSibling; sib != nil; sib = sib.NextSibling {
		if sib.Type == html.TextNode {
			if strings.TrimSpace(sib.Data) != "" {
				break
			}
			continue
		}
		if sib.Type != html.ElementNode {
			continue
		}
		if !isHistoryRelated(sib) {
			break
		}
		out = append(out, sib)
	}
	return out
}

func isHistoryRelated(n *html.Node) bool {
	if n.Data == "table" {
		return true
	}
	if n.Data == "div" && strings.Contains(attr(n, "class"), "table-wrap") {
		return true
	}
	found := false
	eachElement(n, func(c *html.Node) {
		if c.Data == "table" && isHistoryTable(c) {
			found = true
		}
	})
	return found
}

// unwrapExpandMacros replaces the remaining (non-history) expand macros
// with their rich-text bodies so collapsed content participates in
// extraction.
func unwrapExpandMacros(doc *goquery.Document) {
	for _, macro := range elementsNamed(doc, "ac:structured-macro") {
		if attr(macro, "ac:name") != "expand" {
			continue
		}
		var body *html.Node
		eachElement(macro, func(c *html.Node) {
			if body == nil && c.Data == "ac:rich-text-body" {
				body = c
			}
		})
		if body == nil {
			continue
		}
		parent := macro.Parent
		for body.FirstChild != nil {
			c := body.FirstChild
			body.RemoveChild(c)
			parent.InsertBefore(c, macro)
		}
		detach(macro)
	}
}

// ---- node helpers ----

// elementsNamed returns every element node in the document with the
// given tag name. Needed because namespaced Confluence tags
// (ac:structured-macro) are awkward to address through CSS selectors.
func elementsNamed(doc *goquery.Document, name string) []*html.Node {
	var out []*html.Node
	for _, root := range doc.Nodes {
		eachElement(root, func(n *html.Node) {
			if n.Data == name {
				out = append(out, n)
			}
		})
	}
	return out
}

// eachElement visits every element node strictly below root in
// document order.
func eachElement(root *html.Node, fn func(*html.Node)) {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			fn(c)
		}
		eachElement(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// nodeText returns the concatenated text content of a node, trimmed.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}
