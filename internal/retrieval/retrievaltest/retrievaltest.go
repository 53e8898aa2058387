// Package retrievaltest provides test doubles for the retrieval package.
package retrievaltest

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/mpdagents/mpdchat/internal/retrieval"
)

// Query is one recorded call to Stub.Query.
type Query struct {
	Text      string
	TopK      int
	Namespace string
}

// Stub is a retrieval.Retriever returning fixed passages or an error.
type Stub struct {
	Passages []retrieval.Passage
	Err      error

	mu      sync.Mutex
	queries []Query
}

// Query implements retrieval.Retriever.
func (s *Stub) Query(_ context.Context, text string, topK int, namespace string) ([]retrieval.Passage, error) {
	s.mu.Lock()
	s.queries = append(s.queries, Query{Text: text, TopK: topK, Namespace: namespace})
	s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	out := s.Passages
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// Queries returns the calls made so far.
func (s *Stub) Queries() []Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Query(nil), s.queries...)
}

// HashEmbedder is a deterministic bag-of-words embedder: each token adds
// one to a hashed dimension. Texts sharing words get similar vectors.
type HashEmbedder struct {
	Dims int
	Err  error
}

// Embed implements retrieval.Embedder.
func (h HashEmbedder) Embed(_ context.Context, texts []string, _ retrieval.EmbedTask) ([][]float32, error) {
	if h.Err != nil {
		return nil, h.Err
	}
	dims := h.Dims
	if dims <= 0 {
		dims = 64
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, dims)
		for _, tok := range retrieval.Tokenize(t) {
			f := fnv.New32a()
			_, _ = f.Write([]byte(tok))
			v[f.Sum32()%uint32(dims)]++
		}
		out[i] = v
	}
	return out, nil
}

var (
	_ retrieval.Retriever = (*Stub)(nil)
	_ retrieval.Embedder  = HashEmbedder{}
)
