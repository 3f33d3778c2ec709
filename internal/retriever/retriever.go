package retriever

import (
	"context"
	"fmt"
	"sync"

	"transcript-parser/internal/domain"
)

// Index is a searchable vector index that must be loaded before use.
type Index interface {
	Load() error
	Search(vector []float64, topK int) ([]domain.SearchResult, error)
}

// Retriever answers similarity queries against a lazily loaded index.
// The load happens once per process regardless of how many queries follow
// and is safe under concurrent first use; Invalidate forces a reload after
// the index has been rebuilt for a new transcript.
type Retriever struct {
	embedder domain.Embedder
	index    Index
	topK     int

	mu     sync.Mutex
	loaded bool
}

func New(embedder domain.Embedder, index Index, topK int) *Retriever {
	if topK <= 0 {
		topK = 3
	}
	return &Retriever{embedder: embedder, index: index, topK: topK}
}

// Retrieve returns up to topK chunks ranked by decreasing similarity to the
// query. An empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.SearchResult, error) {
	if err := r.ensureLoaded(); err != nil {
		return nil, err
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return r.index.Search(vec, r.topK)
}

// Invalidate drops the cached load so the next query reloads the index.
func (r *Retriever) Invalidate() {
	r.mu.Lock()
	r.loaded = false
	r.mu.Unlock()
}

// ensureLoaded performs the one-time load under a lock. A failed load leaves
// the retriever unloaded so the next query retries instead of caching the
// failure forever.
func (r *Retriever) ensureLoaded() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return nil
	}
	if err := r.index.Load(); err != nil {
		return fmt.Errorf("load index: %w", err)
	}
	r.loaded = true
	return nil
}
