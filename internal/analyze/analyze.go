// Package analyze orchestrates the two-stage compliance analysis of
// requirement pages: a deterministic structural check against the
// template schema, then an LLM-backed semantic review over retrieved
// context. Structural criticality gates the semantic stage.
package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reqlens/reqlens/internal/compliance"
	"github.com/reqlens/reqlens/internal/llm"
	"github.com/reqlens/reqlens/internal/log"
	"github.com/reqlens/reqlens/internal/template"
)

// State names the terminal stage an analysis reached.
type State int

const (
	// StateFailed means the page could not be fetched or its
	// requirement type could not be resolved.
	StateFailed State = iota

	// StateStructuralOnly means the report carries only the
	// structural result, either because critical defects gated the
	// semantic stage or because the model call failed.
	StateStructuralOnly

	// StateMerged means both stages completed.
	StateMerged
)

func (s State) String() string {
	switch s {
	case StateStructuralOnly:
		return "structural_only"
	case StateMerged:
		return "merged"
	default:
		return "failed"
	}
}

// SemanticSection is one scored aspect of the model review.
type SemanticSection struct {
	Score    int      `json:"score"`
	Findings []string `json:"findings"`
}

// Recommendations groups findings by severity.
type Recommendations struct {
	Critical  []string `json:"critical"`
	Important []string `json:"important"`
	Minor     []string `json:"minor"`
}

// SemanticAnalysis is the parsed model verdict.
type SemanticAnalysis struct {
	TemplateCompliance SemanticSection `json:"template_compliance"`
	ContentQuality     SemanticSection `json:"content_quality"`
	Recommendations    Recommendations `json:"recommendations"`
}

// Report is the outcome of analyzing one page. Analyze never returns
// an error; fetch and resolution failures land in Err with
// State == StateFailed.
type Report struct {
	PageID          string           `json:"page_id"`
	Title           string           `json:"title,omitempty"`
	RequirementType string           `json:"requirement_type,omitempty"`
	State           State            `json:"-"`
	Status          string           `json:"status"`
	Structural      compliance.Result `json:"structural"`
	Semantic        *SemanticAnalysis `json:"semantic,omitempty"`
	OverallScore    int              `json:"overall_score"`
	Recommendations Recommendations  `json:"recommendations"`
	Err             string           `json:"error,omitempty"`
}

// Request identifies one page to analyze. RequirementType may be empty
// when the page declares its own type or the detector can infer it.
type Request struct {
	PageID          string `json:"page_id"`
	RequirementType string `json:"requirement_type,omitempty"`
}

// DocumentSource fetches and linearizes pages. *Source satisfies it.
type DocumentSource interface {
	Document(ctx context.Context, pageID string) (Document, error)
}

// SchemaSource resolves template schemas by requirement type.
// *template.Registry satisfies it.
type SchemaSource interface {
	Get(reqType string) (template.Schema, bool)
}

// ContextBuilder assembles retrieval context for the semantic stage.
// *retrieval.Builder satisfies it.
type ContextBuilder interface {
	BuildContext(ctx context.Context, serviceCode, requirementsText string, excludePageIDs []string) (string, error)
}

// TypeDetector infers a requirement type from page title and content.
// *template.Rules satisfies it.
type TypeDetector interface {
	DetectType(title, content string) string
}

const (
	defaultLLMTimeout = 60 * time.Second
	batchConcurrency  = 4
)

// Orchestrator runs the analysis pipeline.
type Orchestrator struct {
	docs       DocumentSource
	schemas    SchemaSource
	checker    *compliance.Checker
	contexts   ContextBuilder
	detector   TypeDetector
	gen        llm.Generator
	llmTimeout time.Duration
	logger     log.Logger
}

// NewOrchestrator wires the pipeline. contexts and detector may be
// nil: without contexts the semantic prompt carries no retrieved
// context, without detector untyped pages fail resolution.
func NewOrchestrator(docs DocumentSource, schemas SchemaSource, contexts ContextBuilder,
	detector TypeDetector, gen llm.Generator, llmTimeout time.Duration, logger log.Logger) *Orchestrator {
	if llmTimeout <= 0 {
		llmTimeout = defaultLLMTimeout
	}
	return &Orchestrator{
		docs:       docs,
		schemas:    schemas,
		checker:    compliance.NewChecker(logger),
		contexts:   contexts,
		detector:   detector,
		gen:        gen,
		llmTimeout: llmTimeout,
		logger:     logger,
	}
}

// Analyze runs the pipeline for one page.
func (o *Orchestrator) Analyze(ctx context.Context, pageID, reqType string) Report {
	report := Report{PageID: pageID, RequirementType: reqType}

	doc, err := o.docs.Document(ctx, pageID)
	if err != nil {
		report.State = StateFailed
		report.Status = report.State.String()
		report.Err = err.Error()
		o.logger.Warn("page analysis failed", "page_id", pageID, "error", err)
		return report
	}
	report.Title = doc.Title

	if reqType == "" {
		reqType = doc.RequirementType
	}
	if reqType == "" && o.detector != nil {
		reqType = o.detector.DetectType(doc.Title, doc.Text)
	}
	report.RequirementType = reqType

	schema, ok := o.schemas.Get(reqType)
	if !ok {
		report.State = StateFailed
		report.Status = report.State.String()
		report.Err = fmt.Sprintf("unknown requirement type %q", reqType)
		return report
	}

	report.Structural = o.checker.Check(doc.Structure, schema)
	report.OverallScore = report.Structural.CompletenessScore

	if report.Structural.Critical(schema) {
		report.State = StateStructuralOnly
		report.Status = report.State.String()
		rec := structuralRecommendations(report.Structural)
		rec.Critical = append([]string{"сначала исправьте структуру документа"}, rec.Critical...)
		report.Recommendations = rec
		o.logger.Info("critical structural defects, semantic stage skipped",
			"page_id", pageID, "score", report.Structural.CompletenessScore)
		return report
	}

	semantic, err := o.semantic(ctx, doc, schema, report.Structural)
	if err != nil {
		report.State = StateStructuralOnly
		report.Status = report.State.String()
		report.Err = fmt.Sprintf("semantic analysis failed: %v", err)
		report.Recommendations = structuralRecommendations(report.Structural)
		o.logger.Warn("falling back to structural result", "page_id", pageID, "error", err)
		return report
	}

	report.Semantic = semantic
	report.Recommendations = semantic.Recommendations
	report.OverallScore = mergedScore(report.Structural.CompletenessScore, semantic)
	report.State = StateMerged
	report.Status = report.State.String()
	return report
}

// AnalyzeBatch analyzes the requested pages concurrently. The output
// slice is parallel to reqs; one failed page never aborts the others.
func (o *Orchestrator) AnalyzeBatch(ctx context.Context, reqs []Request) []Report {
	reports := make([]Report, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, req := range reqs {
		g.Go(func() error {
			reports[i] = o.Analyze(gctx, req.PageID, req.RequirementType)
			return nil
		})
	}
	_ = g.Wait()

	return reports
}

func (o *Orchestrator) semantic(ctx context.Context, doc Document,
	schema template.Schema, structural compliance.Result) (*SemanticAnalysis, error) {

	contextText := ""
	if o.contexts != nil {
		c, err := o.contexts.BuildContext(ctx, doc.ServiceCode, doc.Text, []string{doc.PageID})
		if err != nil {
			o.logger.Warn("context retrieval failed, proceeding without it",
				"page_id", doc.PageID, "error", err)
		} else {
			contextText = c
		}
	}

	prompt := buildPrompt(doc, schema, structural, contextText)

	genCtx, cancel := context.WithTimeout(ctx, o.llmTimeout)
	defer cancel()

	raw, err := o.gen.Generate(genCtx, prompt)
	if err != nil {
		return nil, err
	}

	payload := llm.ExtractJSON(raw)
	if payload == "" {
		return nil, errors.New("no JSON object in model response")
	}

	var semantic SemanticAnalysis
	if err := json.Unmarshal([]byte(payload), &semantic); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	clampScores(&semantic)

	return &semantic, nil
}

// mergedScore averages the structural completeness score and the mean
// of the two semantic scores. More defects on either side never raise
// the result.
func mergedScore(structural int, semantic *SemanticAnalysis) int {
	semScore := float64(semantic.TemplateCompliance.Score+semantic.ContentQuality.Score) / 2
	return int(math.Round(0.5*float64(structural) + 0.5*semScore))
}

func clampScores(s *SemanticAnalysis) {
	s.TemplateCompliance.Score = clamp(s.TemplateCompliance.Score)
	s.ContentQuality.Score = clamp(s.ContentQuality.Score)
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func structuralRecommendations(res compliance.Result) Recommendations {
	var rec Recommendations
	for _, section := range res.MissingSections {
		rec.Critical = append(rec.Critical, "добавьте обязательный раздел: "+section)
	}
	for _, issue := range res.TableIssues {
		rec.Important = append(rec.Important, "исправьте таблицу: "+issue)
	}
	return rec
}

const semanticPrompt = `Ты — эксперт по анализу требований. Тебе предоставлены шаблон типа требования, документ-кандидат, контекст из связанных утверждённых требований и результат структурной проверки.

Оцени документ и верни СТРОГО один JSON-объект без пояснений:
{
  "template_compliance": {"score": 0-100, "findings": ["..."]},
  "content_quality": {"score": 0-100, "findings": ["..."]},
  "recommendations": {"critical": ["..."], "important": ["..."], "minor": ["..."]}
}

Шаблон (%s):
%s

Документ:
%s

Контекст:
%s

Структурная проверка:
%s`

func buildPrompt(doc Document, schema template.Schema, structural compliance.Result, contextText string) string {
	if contextText == "" {
		contextText = "(контекст не найден)"
	}
	return fmt.Sprintf(semanticPrompt,
		schema.RequirementType, schemaText(schema), doc.Text, contextText, structuralText(structural))
}

func schemaText(schema template.Schema) string {
	var b strings.Builder
	if len(schema.RequiredSections) > 0 {
		b.WriteString("Обязательные разделы:\n")
		for _, s := range schema.RequiredSections {
			b.WriteString("- " + s + "\n")
		}
	}
	for _, t := range schema.Tables {
		b.WriteString("Таблица с колонками:")
		for _, col := range t.Columns {
			b.WriteString(" " + col)
			if _, required := t.Required[col]; required {
				b.WriteString("*")
			}
		}
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return "(шаблон пуст)"
	}
	return strings.TrimRight(b.String(), "\n")
}

func structuralText(res compliance.Result) string {
	if res.Compliant {
		return "структурных замечаний нет"
	}
	var parts []string
	for _, s := range res.MissingSections {
		parts = append(parts, "отсутствует раздел: "+s)
	}
	parts = append(parts, res.TableIssues...)
	return strings.Join(parts, "; ")
}
