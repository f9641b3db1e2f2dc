package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Embedder turns text into a vector. *generation.Gemini satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Hit is a single semantic search result.
type Hit struct {
	ID    string
	Score float64
}

type vecEntry struct {
	id  string
	vec []float32
}

// VectorIndex is an in-process cosine-similarity index over fact
// embeddings. Vectors are rebuilt from fact content on load, so the
// index never needs to be persisted.
type VectorIndex struct {
	embedder Embedder

	mu      sync.Mutex
	entries []vecEntry
}

func NewVectorIndex(embedder Embedder) *VectorIndex {
	return &VectorIndex{embedder: embedder}
}

// Add embeds content and stores it under id, replacing any previous
// vector for the same id.
func (x *VectorIndex) Add(ctx context.Context, id, content string) error {
	vec, err := x.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embed %s: %w", id, err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	for i := range x.entries {
		if x.entries[i].id == id {
			x.entries[i].vec = vec
			return nil
		}
	}
	x.entries = append(x.entries, vecEntry{id: id, vec: vec})
	return nil
}

// Search returns the k entries most similar to query, best first.
func (x *VectorIndex) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	qvec, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	hits := make([]Hit, 0, len(x.entries))
	for _, e := range x.entries {
		hits = append(hits, Hit{ID: e.id, Score: cosine(qvec, e.vec)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Len reports how many vectors the index holds.
func (x *VectorIndex) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.entries)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
