package knowledge

import "time"

// Metadata keys used across loading and retrieval. Values are always
// strings so JSONB containment filters stay trivial.
const (
	MetaPageID          = "page_id"
	MetaServiceCode     = "service_code"
	MetaPlatform        = "platform"
	MetaRequirementType = "requirement_type"
	MetaTitle           = "title"
)

// Fragment is one indexed unit of requirement text.
type Fragment struct {
	ID        string
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
}

// Result is a search hit with its cosine similarity.
type Result struct {
	Fragment   Fragment
	Similarity float32
}

// SearchOption configures Search via functional options.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK         int
	filter       map[string]string
	excludePages []string
	timeout      time.Duration
}

// WithTopK caps the number of results. Default is 5.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithFilter adds a metadata equality filter; multiple filters AND.
func WithFilter(key, value string) SearchOption {
	return func(c *searchConfig) {
		if c.filter == nil {
			c.filter = make(map[string]string)
		}
		c.filter[key] = value
	}
}

// WithExcludePages drops fragments belonging to the given page ids.
// The page under analysis excludes itself this way so retrieval never
// feeds a document its own text back as context.
func WithExcludePages(pageIDs ...string) SearchOption {
	return func(c *searchConfig) {
		c.excludePages = append(c.excludePages, pageIDs...)
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    5,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
