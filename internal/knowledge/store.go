// Package knowledge stores requirement fragments with their vector
// embeddings in PostgreSQL and serves similarity search over them.
// Fragments carry string metadata (page id, service code, platform,
// requirement type) used both for filtering searches and for bulk
// deletion when a page is re-indexed.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
)

// Store manages fragments and their embeddings. It is safe for
// concurrent use.
type Store struct {
	queries  Querier
	embedder ai.Embedder
	logger   *slog.Logger
}

// New creates a Store. The querier is typically NewPgxQuerier over the
// application pool; tests pass lightweight fakes.
func New(querier Querier, embedder ai.Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{queries: querier, embedder: embedder, logger: logger}
}

// Add embeds and upserts one fragment. Re-adding an existing id
// replaces its content, embedding and metadata.
func (s *Store) Add(ctx context.Context, frag Fragment) error {
	embedding, err := s.embed(ctx, frag.Content)
	if err != nil {
		return fmt.Errorf("embed fragment %q: %w", frag.ID, err)
	}

	metadataJSON, err := json.Marshal(frag.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata for %q: %w", frag.ID, err)
	}

	err = s.queries.UpsertFragment(ctx, UpsertFragmentParams{
		ID:        frag.ID,
		Content:   frag.Content,
		Embedding: &embedding,
		Metadata:  metadataJSON,
		CreatedAt: pgtype.Timestamptz{Time: frag.CreatedAt, Valid: !frag.CreatedAt.IsZero()},
	})
	if err != nil {
		return fmt.Errorf("upsert fragment %q: %w", frag.ID, err)
	}

	s.logger.Debug("fragment stored", "id", frag.ID, "content_length", len(frag.Content))
	return nil
}

// Search returns the fragments most similar to the query, best first.
// A ten second deadline bounds the embedding call plus the vector
// query.
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	embedding, err := s.embed(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("query embedding timeout: %w", err)
		}
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var filterJSON []byte
	if len(cfg.filter) > 0 {
		filterJSON, err = json.Marshal(cfg.filter)
		if err != nil {
			return nil, fmt.Errorf("marshal filter: %w", err)
		}
	}

	rows, err := s.queries.SearchFragments(queryCtx, SearchFragmentsParams{
		QueryEmbedding: &embedding,
		FilterMetadata: filterJSON,
		ExcludePageIDs: cfg.excludePages,
		ResultLimit:    int32(cfg.topK),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("vector search timeout: %w", err)
		}
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return s.rowsToResults(rows), nil
}

// Count returns the number of stored fragments matching the filter;
// a nil filter counts everything.
func (s *Store) Count(ctx context.Context, filter map[string]string) (int64, error) {
	var filterJSON []byte
	if len(filter) > 0 {
		var err error
		filterJSON, err = json.Marshal(filter)
		if err != nil {
			return 0, fmt.Errorf("marshal filter: %w", err)
		}
	}
	count, err := s.queries.CountFragments(ctx, filterJSON)
	if err != nil {
		return 0, fmt.Errorf("count fragments: %w", err)
	}
	return count, nil
}

// DeletePage removes every fragment previously indexed for a page.
// Reloading a page deletes first so stale fragments never linger.
func (s *Store) DeletePage(ctx context.Context, pageID string) (int64, error) {
	filterJSON, err := json.Marshal(map[string]string{MetaPageID: pageID})
	if err != nil {
		return 0, fmt.Errorf("marshal page filter: %w", err)
	}
	deleted, err := s.queries.DeleteFragmentsByFilter(ctx, filterJSON)
	if err != nil {
		return 0, fmt.Errorf("delete fragments for page %q: %w", pageID, err)
	}
	s.logger.Debug("page fragments deleted", "page_id", pageID, "count", deleted)
	return deleted, nil
}

func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		return pgvector.Vector{}, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, errors.New("embedder returned no vector")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

func (s *Store) rowsToResults(rows []SearchFragmentsRow) []Result {
	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		var metadata map[string]string
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			s.logger.Warn("unparseable fragment metadata", "fragment_id", row.ID, "error", err)
			metadata = make(map[string]string)
		}
		var createdAt time.Time
		if row.CreatedAt.Valid {
			createdAt = row.CreatedAt.Time
		}
		results = append(results, Result{
			Fragment: Fragment{
				ID:        row.ID,
				Content:   row.Content,
				Metadata:  metadata,
				CreatedAt: createdAt,
			},
			Similarity: row.Similarity,
		})
	}
	return results
}
