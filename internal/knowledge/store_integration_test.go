package knowledge

import (
	"context"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reqlens/reqlens/internal/log"
	"github.com/reqlens/reqlens/internal/testutil"
)

// axisEmbedder maps each distinct text to its own axis of a 768-dim
// space, so identical texts are maximally similar and distinct texts
// are orthogonal. That makes similarity ordering deterministic without
// a real embedding model.
type axisEmbedder struct {
	axes map[string]int
}

func newAxisEmbedder() *axisEmbedder {
	return &axisEmbedder{axes: make(map[string]int)}
}

func (e *axisEmbedder) Name() string { return "axis-embedder" }

func (e *axisEmbedder) Register(r api.Registry) {}

func (e *axisEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	text := ""
	if len(req.Input) > 0 && len(req.Input[0].Content) > 0 {
		text = req.Input[0].Content[0].Text
	}
	axis, ok := e.axes[text]
	if !ok {
		axis = len(e.axes) % 768
		e.axes[text] = axis
	}
	vec := make([]float32, 768)
	vec[axis] = 1
	return &ai.EmbedResponse{Embeddings: []*ai.Embedding{{Embedding: vec}}}, nil
}

func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	embedder := newAxisEmbedder()
	store := New(NewPgxQuerier(db.Pool), embedder, log.NewNop())

	frags := []Fragment{
		{
			ID:      "100:0",
			Content: "Атрибуты сущности Заказ",
			Metadata: map[string]string{
				MetaPageID: "100", MetaServiceCode: "billing", MetaPlatform: "core",
			},
			CreatedAt: time.Now(),
		},
		{
			ID:      "100:1",
			Content: "Связи сущности Заказ",
			Metadata: map[string]string{
				MetaPageID: "100", MetaServiceCode: "billing", MetaPlatform: "core",
			},
			CreatedAt: time.Now(),
		},
		{
			ID:      "200:0",
			Content: "Интеграция платежного шлюза",
			Metadata: map[string]string{
				MetaPageID: "200", MetaServiceCode: "payments", MetaPlatform: "core",
			},
			CreatedAt: time.Now(),
		},
	}
	for _, f := range frags {
		require.NoError(t, store.Add(ctx, f))
	}

	t.Run("exact content ranks first", func(t *testing.T) {
		results, err := store.Search(ctx, "Атрибуты сущности Заказ", WithTopK(3))
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, "100:0", results[0].Fragment.ID)
		assert.InDelta(t, 1.0, float64(results[0].Similarity), 0.001)
	})

	t.Run("metadata filter", func(t *testing.T) {
		results, err := store.Search(ctx, "Атрибуты сущности Заказ",
			WithTopK(10), WithFilter(MetaServiceCode, "payments"))
		require.NoError(t, err)
		for _, r := range results {
			assert.Equal(t, "payments", r.Fragment.Metadata[MetaServiceCode])
		}
	})

	t.Run("own page excluded", func(t *testing.T) {
		results, err := store.Search(ctx, "Атрибуты сущности Заказ",
			WithTopK(10), WithExcludePages("100"))
		require.NoError(t, err)
		for _, r := range results {
			assert.NotEqual(t, "100", r.Fragment.Metadata[MetaPageID])
		}
	})

	t.Run("upsert replaces content", func(t *testing.T) {
		updated := frags[0]
		updated.Content = "Атрибуты сущности Заказ, версия 2"
		require.NoError(t, store.Add(ctx, updated))

		count, err := store.Count(ctx, map[string]string{MetaPageID: "100"})
		require.NoError(t, err)
		assert.EqualValues(t, 2, count)
	})

	t.Run("delete page", func(t *testing.T) {
		deleted, err := store.DeletePage(ctx, "100")
		require.NoError(t, err)
		assert.EqualValues(t, 2, deleted)

		count, err := store.Count(ctx, nil)
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)
	})
}
