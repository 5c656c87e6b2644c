package template

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/reqlens/reqlens/internal/structure"
)

// FieldRule is a named validator attached to a schema: either a field
// that must be present or a table column requirement from the rule
// file.
type FieldRule struct {
	Field string
	// Table is set when the rule binds the field to a specific
	// table instead of the document body.
	Table string
}

// Schema is the expectation a requirement type imposes on candidate
// documents. Degraded marks a schema built from reference pages that
// had no usable structure; compliance results against it carry a
// warning.
type Schema struct {
	RequirementType  string
	RequiredSections []string
	Tables           []structure.TableSchema
	Validators       []FieldRule
	Degraded         bool
}

// Builder assembles schemas from reference documents and the static
// rules.
type Builder struct {
	rules  *Rules
	logger *slog.Logger
}

func NewBuilder(rules *Rules, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{rules: rules, logger: logger}
}

// Build merges the structure of one or more reference documents into a
// schema for reqType. Sections are the ordered union of headings,
// deduplicated by normalized text; tables are deduplicated by column
// set. Static rule requirements are applied on top, so a rule-mandated
// section or column is required even if no reference page carries it.
func (b *Builder) Build(reqType string, docs ...structure.Document) Schema {
	schema := Schema{RequirementType: reqType}

	seenSections := make(map[string]struct{})
	addSection := func(heading string) {
		key := normalizeHeading(heading)
		if key == "" {
			return
		}
		if _, ok := seenSections[key]; ok {
			return
		}
		seenSections[key] = struct{}{}
		schema.RequiredSections = append(schema.RequiredSections, heading)
	}

	seenTables := make(map[string]struct{})
	addTable := func(t structure.TableSchema) {
		key := columnSetKey(t.Columns)
		if key == "" {
			return
		}
		if _, ok := seenTables[key]; ok {
			return
		}
		seenTables[key] = struct{}{}
		schema.Tables = append(schema.Tables, t)
	}

	empty := 0
	for _, doc := range docs {
		if doc.Empty() {
			empty++
			continue
		}
		for _, s := range doc.Sections {
			addSection(s.Heading)
		}
		for _, t := range doc.Tables {
			addTable(t)
		}
		for field := range doc.RequiredFields {
			schema.Validators = append(schema.Validators, FieldRule{Field: field})
		}
	}

	if rule, ok := b.ruleFor(reqType); ok {
		for _, s := range rule.RequiredSections {
			addSection(s)
		}
		for table, columns := range rule.RequiredColumns {
			b.applyColumnRule(&schema, table, columns)
		}
	}

	if len(schema.RequiredSections) == 0 && len(schema.Tables) == 0 {
		schema.Degraded = true
		b.logger.Warn("template schema degraded",
			"requirement_type", reqType,
			"reference_docs", len(docs),
			"empty_docs", empty)
	}
	return schema
}

func (b *Builder) ruleFor(reqType string) (TypeRule, bool) {
	if b.rules == nil {
		return TypeRule{}, false
	}
	return b.rules.Rule(reqType)
}

// applyColumnRule marks rule-file columns as required on the matching
// schema table, or synthesizes the table when no reference page had
// it. Matching reuses the compliance overlap notion: the table whose
// columns share the most names with the rule.
func (b *Builder) applyColumnRule(schema *Schema, table string, columns []string) {
	best := -1
	bestOverlap := 0
	for i, t := range schema.Tables {
		overlap := 0
		for _, c := range columns {
			for _, have := range t.Columns {
				if normalizeHeading(have) == normalizeHeading(c) {
					overlap++
					break
				}
			}
		}
		if overlap > bestOverlap {
			best, bestOverlap = i, overlap
		}
	}

	if best < 0 {
		b.logger.Debug("rule table absent from references, synthesizing",
			"requirement_type", schema.RequirementType, "table", table)
		required := make(map[string]struct{}, len(columns))
		for _, c := range columns {
			required[c] = struct{}{}
		}
		schema.Tables = append(schema.Tables, structure.TableSchema{
			Columns:  append([]string(nil), columns...),
			Required: required,
		})
		return
	}

	t := &schema.Tables[best]
	if t.Required == nil {
		t.Required = make(map[string]struct{})
	}
	for _, c := range columns {
		matched := ""
		for _, have := range t.Columns {
			if normalizeHeading(have) == normalizeHeading(c) {
				matched = have
				break
			}
		}
		if matched == "" {
			// A rule column the reference pages never had still
			// binds candidates.
			t.Columns = append(t.Columns, c)
			matched = c
		}
		t.Required[matched] = struct{}{}
	}
}

// columnSetKey is order-insensitive so the same table description in
// two reference pages dedups regardless of column order.
func columnSetKey(columns []string) string {
	keys := make([]string, 0, len(columns))
	for _, c := range columns {
		if k := normalizeHeading(c); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	return strings.Join(keys, "|")
}
