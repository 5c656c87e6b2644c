// Package loader ingests Confluence pages into the knowledge store.
// Only approved fragments are indexed; reloading a page first drops
// its previous fragments so the store never mixes revisions.
package loader

import (
	"context"
	"fmt"
	"strconv"

	"github.com/reqlens/reqlens/internal/confluence"
	"github.com/reqlens/reqlens/internal/knowledge"
	"github.com/reqlens/reqlens/internal/log"
	"github.com/reqlens/reqlens/internal/markup"
)

// PageReader fetches raw pages. *confluence.Client satisfies it.
type PageReader interface {
	GetPage(ctx context.Context, pageID string) (confluence.Page, error)
}

// FragmentStore receives the extracted fragments.
// *knowledge.Store satisfies it.
type FragmentStore interface {
	Add(ctx context.Context, frag knowledge.Fragment) error
	DeletePage(ctx context.Context, pageID string) (int64, error)
}

// PageResult reports the outcome of loading one page.
type PageResult struct {
	PageID    string `json:"page_id"`
	Fragments int    `json:"fragments"`
	Err       string `json:"error,omitempty"`
}

// Loader extracts approved fragments and indexes them.
type Loader struct {
	pages      PageReader
	normalizer *markup.Normalizer
	extractor  *markup.Extractor
	store      FragmentStore
	logger     log.Logger
}

func New(pages PageReader, policy markup.StylePolicy, store FragmentStore, logger log.Logger) *Loader {
	if policy == nil {
		policy = markup.DefaultPolicy{}
	}
	return &Loader{
		pages:      pages,
		normalizer: markup.NewNormalizer(logger),
		extractor:  markup.NewExtractor(policy, logger),
		store:      store,
		logger:     logger,
	}
}

// LoadPages ingests the given pages one by one. A failed page never
// aborts the rest; the result slice is parallel to pageIDs.
func (l *Loader) LoadPages(ctx context.Context, pageIDs []string) []PageResult {
	results := make([]PageResult, 0, len(pageIDs))
	for _, pageID := range pageIDs {
		res := PageResult{PageID: pageID}
		n, err := l.loadPage(ctx, pageID)
		if err != nil {
			res.Err = err.Error()
			l.logger.Warn("page load failed", "page_id", pageID, "error", err)
		}
		res.Fragments = n
		results = append(results, res)
	}
	return results
}

func (l *Loader) loadPage(ctx context.Context, pageID string) (int, error) {
	page, err := l.pages.GetPage(ctx, pageID)
	if err != nil {
		return 0, fmt.Errorf("fetch page %s: %w", pageID, err)
	}

	normalized, err := l.normalizer.Normalize(page.Body)
	if err != nil {
		return 0, fmt.Errorf("normalize page %s: %w", pageID, err)
	}

	fragments, err := l.extractor.Extract(normalized, markup.ModeApproved)
	if err != nil {
		return 0, fmt.Errorf("extract page %s: %w", pageID, err)
	}

	deleted, err := l.store.DeletePage(ctx, page.ID)
	if err != nil {
		return 0, fmt.Errorf("drop old fragments of page %s: %w", pageID, err)
	}
	if deleted > 0 {
		l.logger.Debug("replaced existing fragments", "page_id", page.ID, "deleted", deleted)
	}

	stored := 0
	for _, frag := range fragments {
		if frag.Text == "" {
			continue
		}
		err := l.store.Add(ctx, knowledge.Fragment{
			ID:      fmt.Sprintf("%s-%d", page.ID, frag.Position),
			Content: frag.Text,
			Metadata: map[string]string{
				knowledge.MetaPageID:          page.ID,
				knowledge.MetaTitle:           page.Title,
				knowledge.MetaServiceCode:     page.ServiceCode,
				knowledge.MetaRequirementType: page.RequirementType,
				knowledge.MetaPlatform:        strconv.FormatBool(page.Platform),
			},
		})
		if err != nil {
			return stored, fmt.Errorf("index fragment of page %s: %w", pageID, err)
		}
		stored++
	}

	l.logger.Info("page loaded", "page_id", page.ID, "fragments", stored)
	return stored, nil
}
