package retrieval

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
)

// Okapi BM25 parameters. Terms present in more than half the corpus would
// get a negative IDF; they are floored at epsilon instead.
const (
	paramK1      = 1.2
	paramB       = 0.75
	paramEpsilon = 0.25
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// Document is one indexable passage.
type Document struct {
	Source string
	Text   string
}

// Index is an in-memory BM25 keyword index. It is immutable after
// construction and safe for concurrent use.
type Index struct {
	docs      []Document
	termFreqs []map[string]int
	lengths   []int
	avgLength float64
	idf       map[string]float64
}

// NewIndex builds an index over docs.
func NewIndex(docs []Document) *Index {
	idx := &Index{
		docs:      docs,
		termFreqs: make([]map[string]int, len(docs)),
		lengths:   make([]int, len(docs)),
		idf:       make(map[string]float64),
	}

	docFreq := make(map[string]int)
	var total int
	for i, d := range docs {
		tokens := Tokenize(d.Text)
		idx.lengths[i] = len(tokens)
		total += len(tokens)

		tf := make(map[string]int)
		for _, tok := range tokens {
			if tf[tok] == 0 {
				docFreq[tok]++
			}
			tf[tok]++
		}
		idx.termFreqs[i] = tf
	}
	if len(docs) > 0 {
		idx.avgLength = float64(total) / float64(len(docs))
	}

	n := float64(len(docs))
	for term, df := range docFreq {
		v := math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
		if v < 0 {
			v = paramEpsilon
		}
		idx.idf[term] = v
	}
	return idx
}

// Len returns the number of indexed documents.
func (idx *Index) Len() int { return len(idx.docs) }

// Search implements Searcher. Documents sharing no term with text are not
// returned.
func (idx *Index) Search(ctx context.Context, text string, topK int) ([]Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := Tokenize(text)
	if len(query) == 0 {
		return nil, nil
	}

	type hit struct {
		i     int
		score float64
	}
	var hits []hit
	for i := range idx.docs {
		if s := idx.score(i, query); s > 0 {
			hits = append(hits, hit{i, s})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}

	out := make([]Passage, len(hits))
	for j, h := range hits {
		out[j] = Passage{Text: idx.docs[h.i].Text, Source: idx.docs[h.i].Source, Score: h.score}
	}
	return out, nil
}

func (idx *Index) score(i int, query []string) float64 {
	tf := idx.termFreqs[i]
	dl := float64(idx.lengths[i])

	var s float64
	for _, tok := range query {
		f := float64(tf[tok])
		if f == 0 {
			continue
		}
		s += idx.idf[tok] * f * (paramK1 + 1) / (f + paramK1*(1-paramB+paramB*dl/idx.avgLength))
	}
	return s
}

// Tokenize lowercases text and splits it into alphanumeric tokens of at
// least two bytes.
func Tokenize(text string) []string {
	matches := tokenPattern.FindAllString(strings.ToLower(text), -1)
	tokens := matches[:0]
	for _, m := range matches {
		if len(m) >= 2 {
			tokens = append(tokens, m)
		}
	}
	return tokens
}

// Chunk splits text into documents of roughly maxChars, breaking on blank
// lines. A single paragraph longer than maxChars becomes its own document.
func Chunk(source, text string, maxChars int) []Document {
	var (
		docs []Document
		cur  strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			docs = append(docs, Document{Source: source, Text: s})
		}
		cur.Reset()
	}

	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+len(para)+2 > maxChars {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	flush()
	return docs
}
