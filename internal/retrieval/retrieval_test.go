package retrieval_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mpdagents/mpdchat/internal/retrieval"
	"github.com/mpdagents/mpdchat/internal/retrieval/retrievaltest"
)

var corpus = []retrieval.Document{
	{Source: "motion/newton.md", Text: "Newton's first law: an object in motion stays in motion unless acted on by a force."},
	{Source: "motion/friction.md", Text: "Friction is a force that opposes motion between surfaces in contact."},
	{Source: "motion/orbits.md", Text: "Planets follow elliptical orbits around the sun, as Kepler described."},
	{Source: "cooking/bread.md", Text: "Bread dough rises because yeast produces carbon dioxide."},
}

func TestFormat(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("é", 500)
	passages := []retrieval.Passage{
		{Text: "first", Source: "a.md", Score: 0.9},
		{Text: long, Source: "", Score: 0.5},
		{Text: "third", Source: "c.md", Score: 0.25},
		{Text: "fourth", Source: "d.md", Score: 0.1},
	}

	got := retrieval.Format(passages, 0)

	if strings.Contains(got, "fourth") {
		t.Error("more than three passages rendered")
	}
	if !strings.HasPrefix(got, "[1] (source: a.md, score: 0.90)\nfirst") {
		t.Errorf("unexpected header: %q", got[:40])
	}
	if !strings.Contains(got, "[2] (source: unknown, score: 0.50)\n"+strings.Repeat("é", 400)+"...") {
		t.Error("second passage not truncated to 400 runes")
	}
	if !strings.Contains(got, "[3] (source: c.md") {
		t.Error("third passage missing")
	}
}

func TestFormat_Empty(t *testing.T) {
	t.Parallel()

	if got := retrieval.Format(nil, 10); got != "" {
		t.Errorf("Format(nil) = %q, want empty", got)
	}
}

func TestIndex_Search(t *testing.T) {
	t.Parallel()

	idx := retrieval.NewIndex(corpus)
	got, err := idx.Search(context.Background(), "What force opposes motion?", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Source != "motion/friction.md" {
		t.Errorf("top = %s, want friction", got[0].Source)
	}
	if got[0].Score < got[1].Score {
		t.Error("results not sorted by score")
	}
}

func TestIndex_NoMatch(t *testing.T) {
	t.Parallel()

	idx := retrieval.NewIndex(corpus)
	got, err := idx.Search(context.Background(), "?!", 3)
	if err != nil || got != nil {
		t.Errorf("Search = %v, %v; want nil, nil", got, err)
	}
	got, _ = idx.Search(context.Background(), "quantum chromodynamics", 3)
	if len(got) != 0 {
		t.Errorf("unrelated query matched %d docs", len(got))
	}
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	got := retrieval.Tokenize("A Newton's 1st-law, x y ok")
	want := []string{"newton", "1st", "law", "ok"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestChunk(t *testing.T) {
	t.Parallel()

	text := "para one\n\npara two\r\n\r\n" + strings.Repeat("x", 50) + "\n\n\n\nlast"
	docs := retrieval.Chunk("f.md", text, 30)

	if len(docs) != 3 {
		t.Fatalf("chunks = %d (%+v), want 3", len(docs), docs)
	}
	if docs[0].Text != "para one\n\npara two" {
		t.Errorf("first chunk = %q", docs[0].Text)
	}
	if docs[2].Text != "last" || docs[2].Source != "f.md" {
		t.Errorf("last chunk = %+v", docs[2])
	}
}

func TestVectorIndex(t *testing.T) {
	t.Parallel()

	vi, err := retrieval.NewVectorIndex(context.Background(), retrievaltest.HashEmbedder{Dims: 256}, corpus)
	if err != nil {
		t.Fatalf("NewVectorIndex: %v", err)
	}
	got, err := vi.Search(context.Background(), "yeast bread dough", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Source != "cooking/bread.md" {
		t.Errorf("got %+v, want bread", got)
	}
}

func TestVectorIndex_EmbedError(t *testing.T) {
	t.Parallel()

	boom := errors.New("quota")
	_, err := retrieval.NewVectorIndex(context.Background(), retrievaltest.HashEmbedder{Err: boom}, corpus)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want quota", err)
	}
}

type failingSearcher struct{ err error }

func (f failingSearcher) Search(context.Context, string, int) ([]retrieval.Passage, error) {
	return nil, f.err
}

func TestFusion(t *testing.T) {
	t.Parallel()

	vi, err := retrieval.NewVectorIndex(context.Background(), retrievaltest.HashEmbedder{Dims: 256}, corpus)
	if err != nil {
		t.Fatal(err)
	}
	f := retrieval.Fusion{retrieval.NewIndex(corpus), vi, failingSearcher{errors.New("down")}}

	got, err := f.Search(context.Background(), "force opposing motion friction", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Source != "motion/friction.md" {
		t.Errorf("top = %s, want friction", got[0].Source)
	}
	seen := map[string]bool{}
	for _, p := range got {
		if seen[p.Source] {
			t.Errorf("duplicate %s", p.Source)
		}
		seen[p.Source] = true
	}
}

func TestFusion_AllFail(t *testing.T) {
	t.Parallel()

	a, b := errors.New("a"), errors.New("b")
	_, err := retrieval.Fusion{failingSearcher{a}, failingSearcher{b}}.Search(context.Background(), "x", 3)
	if !errors.Is(err, a) || !errors.Is(err, b) {
		t.Fatalf("error = %v, want both", err)
	}
}

func TestFusion_CallerCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := retrieval.Fusion{retrieval.NewIndex(corpus), failingSearcher{errors.New("down")}}

	got, err := f.Search(ctx, "friction", 2)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if got != nil {
		t.Errorf("partial results after cancel: %v", got)
	}
}

func TestNamespaces(t *testing.T) {
	t.Parallel()

	ns := retrieval.Namespaces{"motion": retrieval.NewIndex(corpus[:3])}

	got, err := ns.Query(context.Background(), "orbits of planets", 3, "motion")
	if err != nil || len(got) == 0 {
		t.Fatalf("Query = %v, %v", got, err)
	}
	if _, err := ns.Query(context.Background(), "x", 3, "cooking"); !errors.Is(err, retrieval.ErrUnknownNamespace) {
		t.Fatalf("error = %v, want ErrUnknownNamespace", err)
	}
}
