// Package retrieval assembles the knowledge-base context for semantic
// analysis: related requirements of the same service, platform-wide
// requirements, and pages referenced from the document's pending
// changes, all bounded by a character budget.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/reqlens/reqlens/internal/knowledge"
	"github.com/reqlens/reqlens/internal/llm"
)

// Searcher is the slice of the knowledge store the builder needs.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// PlatformLister resolves the service codes of the platform partition.
type PlatformLister interface {
	PlatformCodes() []string
}

// PageSource supplies page content for linked-context extraction. The
// raw body is scanned for links inside unapproved fragments; the
// approved text of a linked page becomes context.
type PageSource interface {
	RawBody(ctx context.Context, pageID string) (string, error)
	ApprovedText(ctx context.Context, pageID string) (string, error)
	UnapprovedLinks(ctx context.Context, pageID string) ([]string, error)
}

// Bounds on linked-context traversal.
const (
	maxScannedPages = 5
	maxLinksPerPage = 2
	maxLinkedPages  = 3
	maxKeyQueries   = 8
	defaultTopK     = 5
)

// Builder builds retrieval context strings.
type Builder struct {
	store        Searcher
	platforms    PlatformLister
	gen          llm.Generator
	pages        PageSource
	serviceHits  int
	platformHits int
	budget       int
	logger       *slog.Logger
}

// New creates a Builder. topK is the hit budget per query, split
// between the service partition and the platform partition (3/2 at the
// default of 5). gen may be nil to skip LLM-assisted key-term
// extraction; pages may be nil to skip linked context.
func New(store Searcher, platforms PlatformLister, gen llm.Generator, pages PageSource, topK, budget int, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	if budget <= 0 {
		budget = 16000
	}
	return &Builder{
		store:        store,
		platforms:    platforms,
		gen:          gen,
		pages:        pages,
		serviceHits:  topK - topK/2,
		platformHits: topK / 2,
		budget:       budget,
		logger:       logger,
	}
}

// BuildContext gathers the context for analyzing requirementsText,
// which belongs to serviceCode. excludePageIDs (the page under
// analysis and its relatives) never contribute fragments.
func (b *Builder) BuildContext(ctx context.Context, serviceCode, requirementsText string, excludePageIDs []string) (string, error) {
	queries := b.keyQueries(ctx, requirementsText)

	var parts []string
	seen := make(map[string]struct{})
	appendResults := func(results []knowledge.Result) {
		for _, r := range results {
			key := dedupeKey(r.Fragment)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			parts = append(parts, r.Fragment.Content)
		}
	}

	for _, q := range queries {
		results, err := b.store.Search(ctx, q,
			knowledge.WithTopK(b.serviceHits),
			knowledge.WithFilter(knowledge.MetaServiceCode, serviceCode),
			knowledge.WithExcludePages(excludePageIDs...))
		if err != nil {
			b.logger.Warn("service search failed", "query", truncateForLog(q), "error", err)
			continue
		}
		appendResults(results)
	}

	if b.platformHits > 0 {
		for _, code := range b.platformCodes(serviceCode) {
			for _, q := range queries {
				results, err := b.store.Search(ctx, q,
					knowledge.WithTopK(b.platformHits),
					knowledge.WithFilter(knowledge.MetaServiceCode, code),
					knowledge.WithFilter(knowledge.MetaPlatform, "true"),
					knowledge.WithExcludePages(excludePageIDs...))
				if err != nil {
					b.logger.Warn("platform search failed", "service_code", code, "error", err)
					continue
				}
				appendResults(results)
			}
		}
	}

	if linked := b.linkedContext(ctx, excludePageIDs); len(linked) > 0 {
		parts = append(parts, linked...)
	}

	contextText := truncateAtSentence(strings.Join(parts, "\n\n"), b.budget)
	b.logger.Debug("context built",
		"service_code", serviceCode,
		"queries", len(queries),
		"parts", len(parts),
		"length", len(contextText))
	return contextText, nil
}

// keyQueries asks the model for search terms and falls back to a
// keyword heuristic when the model is unavailable or returns nothing.
func (b *Builder) keyQueries(ctx context.Context, text string) []string {
	if strings.TrimSpace(text) == "" {
		return []string{""}
	}

	if b.gen != nil {
		if queries := b.llmQueries(ctx, text); len(queries) > 0 {
			return queries
		}
	}
	if keywords := keywordQueries(text); len(keywords) > 0 {
		return keywords
	}

	words := strings.Fields(text)
	if len(words) > 10 {
		words = words[:10]
	}
	return []string{strings.Join(words, " ")}
}

const keyQueryPrompt = `Проанализируй текст требований и извлеки ключевые запросы для поиска связанных требований.

Текст требований:
%s

Извлеки:
1. Технические термины и компоненты (API, базы данных, сервисы)
2. Бизнес-сущности (клиенты, продукты, операции)
3. Процессы и функции (авторизация, валидация, обработка)
4. Форматы и стандарты (JSON, XML, протоколы)

Верни 5-8 наиболее важных ключевых запросов, каждый на новой строке:`

var (
	listPrefixRe = regexp.MustCompile(`^\d+\.\s*[-+*]*\s*`)
	listSuffixRe = regexp.MustCompile(`[\]+*-]+$`)
)

func (b *Builder) llmQueries(ctx context.Context, text string) []string {
	const maxInput = 2000
	if len(text) > maxInput {
		text = text[:maxInput] + "..."
	}

	response, err := b.gen.Generate(ctx, fmt.Sprintf(keyQueryPrompt, text))
	if err != nil {
		b.logger.Warn("key query extraction failed, using keyword fallback", "error", err)
		return nil
	}

	var queries []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		line = listPrefixRe.ReplaceAllString(line, "")
		line = strings.TrimPrefix(line, "- ")
		line = listSuffixRe.ReplaceAllString(line, "")
		line = strings.TrimSpace(line)
		if len([]rune(line)) > 2 {
			queries = append(queries, line)
		}
		if len(queries) == maxKeyQueries {
			break
		}
	}
	return queries
}

// technicalTerms are domain words that make good standalone queries.
var technicalTerms = []string{
	"api", "json", "xml", "rest", "soap",
	"авторизация", "аутентификация", "токен",
	"база данных", "таблица",
	"клиент", "пользователь", "продукт", "услуга",
	"справочник", "каталог", "реестр",
	"обработка", "валидация", "проверка",
	"уведомление", "сообщение",
	"интерфейс", "отчет", "документ",
}

var wordRe = regexp.MustCompile(`[а-яёa-z]{4,}`)

// keywordQueries is the LLM-free fallback: known technical terms found
// in the text plus its most repeated long words.
func keywordQueries(text string) []string {
	textLower := strings.ToLower(text)

	var found []string
	for _, term := range technicalTerms {
		if strings.Contains(textLower, term) {
			found = append(found, term)
		}
	}

	freq := make(map[string]int)
	var order []string
	for _, w := range wordRe.FindAllString(textLower, -1) {
		if freq[w] == 0 {
			order = append(order, w)
		}
		freq[w]++
	}
	repeated := 0
	for _, w := range order {
		if freq[w] >= 2 && repeated < 5 {
			found = append(found, w)
			repeated++
		}
	}

	if len(found) > maxKeyQueries {
		found = found[:maxKeyQueries]
	}
	return found
}

func (b *Builder) platformCodes(excludeService string) []string {
	if b.platforms == nil {
		return nil
	}
	var codes []string
	for _, code := range b.platforms.PlatformCodes() {
		if code != excludeService {
			codes = append(codes, code)
		}
	}
	return codes
}

// linkedContext pulls the approved text of pages referenced from the
// excluded pages' pending changes.
func (b *Builder) linkedContext(ctx context.Context, pageIDs []string) []string {
	if b.pages == nil || len(pageIDs) == 0 {
		return nil
	}

	excluded := make(map[string]struct{}, len(pageIDs))
	for _, id := range pageIDs {
		excluded[id] = struct{}{}
	}

	var linked []string
	seen := make(map[string]struct{})

	scan := pageIDs
	if len(scan) > maxScannedPages {
		scan = scan[:maxScannedPages]
	}
	for _, pageID := range scan {
		if len(linked) >= maxLinkedPages {
			break
		}
		links, err := b.pages.UnapprovedLinks(ctx, pageID)
		if err != nil {
			b.logger.Warn("linked context scan failed", "page_id", pageID, "error", err)
			continue
		}
		taken := 0
		for _, target := range links {
			if len(linked) >= maxLinkedPages || taken >= maxLinksPerPage {
				break
			}
			if _, ok := excluded[target]; ok {
				continue
			}
			if _, ok := seen[target]; ok {
				continue
			}
			seen[target] = struct{}{}
			text, err := b.pages.ApprovedText(ctx, target)
			if err != nil {
				b.logger.Warn("linked page fetch failed", "page_id", target, "error", err)
				continue
			}
			if strings.TrimSpace(text) == "" {
				continue
			}
			linked = append(linked, text)
			taken++
		}
	}
	return linked
}

// dedupeKey pairs the fragment's page with a prefix of its content, so
// overlapping hits from different queries collapse.
func dedupeKey(f knowledge.Fragment) string {
	prefix := f.Content
	if len(prefix) > 100 {
		prefix = prefix[:100]
	}
	return f.Metadata[knowledge.MetaPageID] + "\x00" + prefix
}

// truncateAtSentence cuts at the budget, preferring the last sentence
// end when it lands in the final fifth of the allowance.
func truncateAtSentence(s string, budget int) string {
	if len(s) <= budget {
		return s
	}
	cut := budget
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	truncated := s[:cut]
	if last := strings.LastIndex(truncated, "."); last > budget*8/10 {
		truncated = truncated[:last+1]
	}
	return truncated
}

func truncateForLog(s string) string {
	if len(s) > 50 {
		return s[:50]
	}
	return s
}
