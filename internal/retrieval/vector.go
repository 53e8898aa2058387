package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
)

// EmbedTask tells the embedder how the text will be used.
type EmbedTask int

// Embedding tasks.
const (
	TaskDocument EmbedTask = iota
	TaskQuery
)

// Embedder turns texts into vectors of equal dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string, task EmbedTask) ([][]float32, error)
}

// embedBatch bounds the number of texts per Embed call.
const embedBatch = 100

// VectorIndex ranks documents by cosine similarity of their embeddings.
type VectorIndex struct {
	embedder Embedder
	docs     []Document
	vectors  [][]float32
}

// NewVectorIndex embeds every document up front.
func NewVectorIndex(ctx context.Context, embedder Embedder, docs []Document) (*VectorIndex, error) {
	if embedder == nil {
		return nil, errors.New("retrieval: nil embedder")
	}
	vi := &VectorIndex{embedder: embedder, docs: docs, vectors: make([][]float32, 0, len(docs))}

	for start := 0; start < len(docs); start += embedBatch {
		end := min(start+embedBatch, len(docs))
		texts := make([]string, 0, end-start)
		for _, d := range docs[start:end] {
			texts = append(texts, d.Text)
		}
		vecs, err := embedder.Embed(ctx, texts, TaskDocument)
		if err != nil {
			return nil, fmt.Errorf("retrieval: embedding documents %d-%d: %w", start, end, err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("retrieval: embedder returned %d vectors for %d texts", len(vecs), len(texts))
		}
		vi.vectors = append(vi.vectors, vecs...)
	}
	return vi, nil
}

// Search implements Searcher.
func (vi *VectorIndex) Search(ctx context.Context, text string, topK int) ([]Passage, error) {
	if len(vi.docs) == 0 {
		return nil, nil
	}
	vecs, err := vi.embedder.Embed(ctx, []string{text}, TaskQuery)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embedding query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("retrieval: embedder returned %d vectors for 1 query", len(vecs))
	}
	q := vecs[0]

	out := make([]Passage, len(vi.docs))
	for i, d := range vi.docs {
		out[i] = Passage{Text: d.Text, Source: d.Source, Score: cosine(q, vi.vectors[i])}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
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
