package retrieval

import (
	"context"
	"errors"
	"sort"

	"golang.org/x/sync/errgroup"
)

// rrfK dampens the weight of top ranks in reciprocal rank fusion.
const rrfK = 60

// Fusion queries several searchers concurrently and merges their rankings
// with reciprocal rank fusion, so scores on different scales combine. A
// failing searcher is skipped as long as one succeeds.
type Fusion []Searcher

// Search implements Searcher.
func (f Fusion) Search(ctx context.Context, text string, topK int) ([]Passage, error) {
	results := make([][]Passage, len(f))
	errs := make([]error, len(f))

	// A searcher's own error only drops its ranking, so it is kept per
	// searcher rather than returned to the group. The group fails only
	// when the caller's context ends.
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range f {
		g.Go(func() error {
			// Each searcher over-fetches so fusion has room to reorder.
			results[i], errs[i] = s.Search(gctx, text, topK*2)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if len(f) > 0 && failed == len(f) {
		return nil, errors.Join(errs...)
	}

	type fused struct {
		p     Passage
		score float64
		order int
	}
	byKey := make(map[string]*fused)
	var order int
	for _, ranked := range results {
		for rank, p := range ranked {
			key := p.Source + "\x00" + p.Text
			e, ok := byKey[key]
			if !ok {
				e = &fused{p: p, order: order}
				order++
				byKey[key] = e
			}
			e.score += 1 / float64(rrfK+rank+1)
		}
	}

	merged := make([]*fused, 0, len(byKey))
	for _, e := range byKey {
		merged = append(merged, e)
	}
	sort.Slice(merged, func(a, b int) bool {
		if merged[a].score != merged[b].score {
			return merged[a].score > merged[b].score
		}
		return merged[a].order < merged[b].order
	})
	if topK > 0 && len(merged) > topK {
		merged = merged[:topK]
	}

	out := make([]Passage, len(merged))
	for i, e := range merged {
		out[i] = e.p
		out[i].Score = e.score
	}
	return out, nil
}
