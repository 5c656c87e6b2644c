package analyze

import (
	"context"
	"fmt"

	"github.com/reqlens/reqlens/internal/confluence"
	"github.com/reqlens/reqlens/internal/log"
	"github.com/reqlens/reqlens/internal/markup"
	"github.com/reqlens/reqlens/internal/retrieval"
	"github.com/reqlens/reqlens/internal/structure"
)

// PageReader fetches raw pages. *confluence.Client satisfies it.
type PageReader interface {
	GetPage(ctx context.Context, pageID string) (confluence.Page, error)
}

// Document is a fetched requirement page after normalization,
// extraction and structure parsing.
type Document struct {
	PageID          string
	Title           string
	RequirementType string
	ServiceCode     string
	Platform        bool

	// Text is the linearized page content, every approval state.
	Text string

	// ApprovedText is the linearized approved subset.
	ApprovedText string

	Structure structure.Document
}

// Source turns raw Confluence pages into Documents. It also serves as
// the page source for linked-context retrieval.
type Source struct {
	pages      PageReader
	normalizer *markup.Normalizer
	extractor  *markup.Extractor
	policy     markup.StylePolicy
	logger     log.Logger
}

func NewSource(pages PageReader, policy markup.StylePolicy, logger log.Logger) *Source {
	if policy == nil {
		policy = markup.DefaultPolicy{}
	}
	return &Source{
		pages:      pages,
		normalizer: markup.NewNormalizer(logger),
		extractor:  markup.NewExtractor(policy, logger),
		policy:     policy,
		logger:     logger,
	}
}

// Document fetches and linearizes one page.
func (s *Source) Document(ctx context.Context, pageID string) (Document, error) {
	page, err := s.pages.GetPage(ctx, pageID)
	if err != nil {
		return Document{}, fmt.Errorf("fetch page %s: %w", pageID, err)
	}

	normalized, err := s.normalizer.Normalize(page.Body)
	if err != nil {
		return Document{}, fmt.Errorf("normalize page %s: %w", pageID, err)
	}

	fragments, err := s.extractor.Extract(normalized, markup.ModeAll)
	if err != nil {
		return Document{}, fmt.Errorf("extract page %s: %w", pageID, err)
	}

	approved, err := s.extractor.Text(normalized, markup.ModeApproved)
	if err != nil {
		return Document{}, fmt.Errorf("extract approved text of page %s: %w", pageID, err)
	}

	return Document{
		PageID:          page.ID,
		Title:           page.Title,
		RequirementType: page.RequirementType,
		ServiceCode:     page.ServiceCode,
		Platform:        page.Platform,
		Text:            markup.Join(fragments),
		ApprovedText:    approved,
		Structure:       structure.Extract(fragments),
	}, nil
}

// RawBody returns the unnormalized storage body of a page.
func (s *Source) RawBody(ctx context.Context, pageID string) (string, error) {
	page, err := s.pages.GetPage(ctx, pageID)
	if err != nil {
		return "", err
	}
	return page.Body, nil
}

// ApprovedText returns the linearized approved subset of a page.
func (s *Source) ApprovedText(ctx context.Context, pageID string) (string, error) {
	page, err := s.pages.GetPage(ctx, pageID)
	if err != nil {
		return "", err
	}
	normalized, err := s.normalizer.Normalize(page.Body)
	if err != nil {
		return "", err
	}
	return s.extractor.Text(normalized, markup.ModeApproved)
}

// UnapprovedLinks returns page ids referenced from unapproved
// fragments of the page.
func (s *Source) UnapprovedLinks(ctx context.Context, pageID string) ([]string, error) {
	page, err := s.pages.GetPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	return markup.ExtractUnapprovedLinks(page.Body, s.policy)
}

var _ retrieval.PageSource = (*Source)(nil)
