// Package compliance checks a document skeleton against a requirement
// template deterministically. No language model is involved; the same
// document and schema always produce the same result.
package compliance

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/reqlens/reqlens/internal/structure"
	"github.com/reqlens/reqlens/internal/template"
)

// Scoring weights. Fixed and documented so scores are comparable
// across runs: each table with missing columns costs 10 points, each
// required table absent from the document costs 20. The score is
// floored at zero.
const (
	missingColumnsPenalty = 10
	absentTablePenalty    = 20
)

// Result is the structural compliance verdict. AbsentTables and
// IncompleteTables count schema tables the document lacks entirely or
// matched with required columns missing; TableIssues carries the
// human-readable detail.
type Result struct {
	Compliant         bool
	MissingSections   []string
	TableIssues       []string
	AbsentTables      int
	IncompleteTables  int
	CompletenessScore int
	Warnings          []string
}

// Critical reports whether the result should block semantic analysis:
// more than half of the required sections are missing, or a required
// table is absent entirely.
func (r Result) Critical(schema template.Schema) bool {
	if len(schema.RequiredSections) > 0 &&
		len(r.MissingSections)*2 > len(schema.RequiredSections) {
		return true
	}
	return r.AbsentTables > 0
}

// Checker evaluates documents against schemas.
type Checker struct {
	logger *slog.Logger
}

func NewChecker(logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{logger: logger}
}

// Check compares the document skeleton to the schema. Section matching
// is a normalized substring test in both directions, so "Атрибуты
// сущности" satisfies a required "Атрибуты". Each schema table is
// matched to the document table sharing the most columns; a table with
// no overlapping candidate is reported absent.
func (c *Checker) Check(doc structure.Document, schema template.Schema) Result {
	var res Result

	for _, required := range schema.RequiredSections {
		if !hasSection(doc.Sections, required) {
			res.MissingSections = append(res.MissingSections, required)
		}
	}

	for _, want := range schema.Tables {
		candidate, overlap := bestCandidate(doc.Tables, want)
		if overlap == 0 {
			res.AbsentTables++
			res.TableIssues = append(res.TableIssues,
				fmt.Sprintf("%s: table absent", tableLabel(want)))
			continue
		}
		missing := false
		for _, col := range want.Columns {
			if _, required := want.Required[col]; !required {
				continue
			}
			if !hasColumn(candidate, col) {
				missing = true
				res.TableIssues = append(res.TableIssues,
					fmt.Sprintf("missing column: %s", col))
			}
		}
		if missing {
			res.IncompleteTables++
		}
	}

	res.CompletenessScore = score(len(res.MissingSections), len(schema.RequiredSections),
		res.IncompleteTables, res.AbsentTables)
	res.Compliant = len(res.MissingSections) == 0 && len(res.TableIssues) == 0

	if schema.Degraded {
		res.Warnings = append(res.Warnings,
			"template schema is degraded: reference pages had no usable structure")
	}

	c.logger.Debug("compliance checked",
		"requirement_type", schema.RequirementType,
		"compliant", res.Compliant,
		"score", res.CompletenessScore,
		"missing_sections", len(res.MissingSections),
		"table_issues", len(res.TableIssues))
	return res
}

// score starts from the section coverage ratio and subtracts the fixed
// table penalties. More missing structure never yields a higher score.
func score(missing, required, incompleteTables, absentTables int) int {
	s := 100.0
	if required > 0 {
		s = 100 * (1 - float64(missing)/float64(required))
	}
	s -= float64(incompleteTables * missingColumnsPenalty)
	s -= float64(absentTables * absentTablePenalty)
	if s < 0 {
		s = 0
	}
	return int(math.Round(s))
}

func hasSection(sections []structure.Section, required string) bool {
	want := structure.Normalize(required)
	for _, s := range sections {
		have := structure.Normalize(s.Heading)
		if have == "" {
			continue
		}
		if strings.Contains(have, want) || strings.Contains(want, have) {
			return true
		}
	}
	return false
}

// bestCandidate picks the document table with the largest column
// overlap against the schema table.
func bestCandidate(tables []structure.TableSchema, want structure.TableSchema) (structure.TableSchema, int) {
	var best structure.TableSchema
	bestOverlap := 0
	for _, t := range tables {
		overlap := 0
		for _, c := range want.Columns {
			if hasColumn(t, c) {
				overlap++
			}
		}
		if overlap > bestOverlap {
			best, bestOverlap = t, overlap
		}
	}
	return best, bestOverlap
}

func hasColumn(t structure.TableSchema, column string) bool {
	want := structure.Normalize(column)
	for _, c := range t.Columns {
		if structure.Normalize(c) == want {
			return true
		}
	}
	return false
}

// tableLabel names a table by its required columns, falling back to
// the full column list.
func tableLabel(t structure.TableSchema) string {
	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if _, ok := t.Required[c]; ok {
			cols = append(cols, c)
		}
	}
	if len(cols) == 0 {
		cols = t.Columns
	}
	return strings.Join(cols, "/")
}
