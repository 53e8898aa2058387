// Package retrieval finds passages relevant to a user message and formats
// them as prompt context.
//
// A Retriever answers queries per namespace. Namespaces maps each
// namespace to a Searcher: a BM25 keyword Index, an embedding VectorIndex,
// or a Fusion of several.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ServiceName is the service under which the configured Retriever is
// published.
const ServiceName = "retrieval.retriever"

// Formatting limits.
const (
	MaxPassages         = 3
	DefaultPassageChars = 400
)

// ErrUnknownNamespace is returned for a namespace with no corpus.
var ErrUnknownNamespace = errors.New("unknown retrieval namespace")

// Passage is one ranked result.
type Passage struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// Retriever returns up to topK passages for text from namespace, best
// first. An empty result is not an error.
type Retriever interface {
	Query(ctx context.Context, text string, topK int, namespace string) ([]Passage, error)
}

// Searcher ranks the passages of a single corpus.
type Searcher interface {
	Search(ctx context.Context, text string, topK int) ([]Passage, error)
}

// Namespaces routes queries to one Searcher per namespace.
type Namespaces map[string]Searcher

// Query implements Retriever.
func (n Namespaces) Query(ctx context.Context, text string, topK int, namespace string) ([]Passage, error) {
	s, ok := n[namespace]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNamespace, namespace)
	}
	return s.Search(ctx, text, topK)
}

// Format renders at most MaxPassages passages as a numbered block. Each
// body is cut to maxChars runes with a "..." suffix; maxChars <= 0 means
// DefaultPassageChars. It returns "" when there is nothing to render.
func Format(passages []Passage, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultPassageChars
	}

	var b strings.Builder
	for i, p := range passages {
		if i == MaxPassages {
			break
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		source := p.Source
		if source == "" {
			source = "unknown"
		}
		fmt.Fprintf(&b, "[%d] (source: %s, score: %.2f)\n%s", i+1, source, p.Score, truncate(strings.TrimSpace(p.Text), maxChars))
	}
	return b.String()
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
