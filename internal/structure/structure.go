// Package structure derives a document's skeleton from linearized
// requirement text: the heading outline, the table schemas, and the
// explicitly marked required fields. The skeleton is what template
// building and compliance checking operate on; prose content never
// leaves this package.
package structure

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/reqlens/reqlens/internal/markup"
)

// Section is one heading of the document outline.
type Section struct {
	Heading string
	Level   int
	// HasContent is true when non-whitespace text appears between
	// this heading and the next heading of equal or higher level.
	HasContent bool
}

// TableSchema describes a table by its header row. Required holds the
// columns whose header carried a trailing asterisk.
type TableSchema struct {
	Columns  []string
	Required map[string]struct{}
}

// Document is the extracted skeleton. It is read-only after
// extraction.
type Document struct {
	Sections       []Section
	Tables         []TableSchema
	RequiredFields map[string]struct{}
}

// Empty reports whether extraction found no structure at all.
func (d Document) Empty() bool {
	return len(d.Sections) == 0 && len(d.Tables) == 0
}

// Extract builds the skeleton from ordered fragments.
func Extract(fragments []markup.Fragment) Document {
	return ExtractText(markup.Join(fragments))
}

var (
	headingRe       = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	separatorCellRe = regexp.MustCompile(`^:?-{3,}:?$`)
	requiredFieldRe = regexp.MustCompile(`^([^:|#*]{1,80}?)\*\s*:`)
)

// ExtractText builds the skeleton from linearized text. A document
// with no headings and no tables yields an empty Document; that is
// not an error.
func ExtractText(text string) Document {
	doc := Document{RequiredFields: make(map[string]struct{})}

	lines := strings.Split(text, "\n")
	var tableLines []string

	flushTable := func() {
		if len(tableLines) > 0 {
			doc.Tables = append(doc.Tables, parseTable(tableLines))
			tableLines = nil
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "|") && strings.HasSuffix(trimmed, "|") {
			tableLines = append(tableLines, trimmed)
			markContent(doc.Sections)
			continue
		}
		flushTable()

		if trimmed == "" {
			continue
		}

		if m := headingRe.FindStringSubmatch(trimmed); m != nil {
			doc.Sections = append(doc.Sections, Section{
				Heading: strings.TrimSpace(m[2]),
				Level:   len(m[1]),
			})
			continue
		}

		if m := requiredFieldRe.FindStringSubmatch(trimmed); m != nil {
			doc.RequiredFields[Normalize(m[1])] = struct{}{}
		}
		markContent(doc.Sections)
	}
	flushTable()

	return doc
}

// markContent flags every open section: the last heading and any
// ancestors of higher level waiting for body text.
func markContent(sections []Section) {
	level := 7
	for i := len(sections) - 1; i >= 0; i-- {
		if sections[i].Level < level {
			sections[i].HasContent = true
			level = sections[i].Level
		}
	}
}

// parseTable builds a schema from the header row of a pipe table.
// Empty headers are named column_<i>; duplicate headers get an
// occurrence suffix so the column set stays addressable.
func parseTable(lines []string) TableSchema {
	schema := TableSchema{Required: make(map[string]struct{})}

	headerLine := lines[0]
	for _, l := range lines {
		if !isSeparatorRow(l) {
			headerLine = l
			break
		}
	}

	header := splitRow(headerLine)
	seen := make(map[string]int, len(header))
	for i, cell := range header {
		required := strings.HasSuffix(cell, "*")
		name := strings.TrimSpace(strings.TrimSuffix(cell, "*"))
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s_%d", name, n)
		}
		schema.Columns = append(schema.Columns, name)
		if required {
			schema.Required[name] = struct{}{}
		}
	}
	return schema
}

func splitRow(line string) []string {
	line = strings.Trim(line, "|")
	parts := strings.Split(line, "|")
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		cells = append(cells, strings.TrimSpace(p))
	}
	return cells
}

// isSeparatorRow reports a markdown header separator like | --- | --- |.
func isSeparatorRow(line string) bool {
	cells := splitRow(line)
	if len(cells) == 0 {
		return false
	}
	for _, c := range cells {
		if !separatorCellRe.MatchString(c) {
			return false
		}
	}
	return true
}

var spaceRe = regexp.MustCompile(`\s+`)

// Normalize canonicalizes a heading or label for comparison: lower
// case, collapsed whitespace, trimmed punctuation.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.Trim(s, " :.*")
}
