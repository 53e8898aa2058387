package corpus

import (
	"context"
	"fmt"

	"github.com/mpdagents/mpdchat/internal/retrieval"
	"google.golang.org/genai"
)

// genaiEmbedder implements retrieval.Embedder with the Gemini embedding API.
type genaiEmbedder struct {
	client *genai.Client
	model  string
}

func newGenAIEmbedder(ctx context.Context, cfg EmbeddingConfig) (*genaiEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.key(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval.corpus: genai client: %w", err)
	}
	return &genaiEmbedder{client: client, model: cfg.Model}, nil
}

// Embed implements retrieval.Embedder.
func (e *genaiEmbedder) Embed(ctx context.Context, texts []string, task retrieval.EmbedTask) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	taskType := "RETRIEVAL_DOCUMENT"
	if task == retrieval.TaskQuery {
		taskType = "RETRIEVAL_QUERY"
	}

	res, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType: taskType,
	})
	if err != nil {
		return nil, fmt.Errorf("genai embed: %w", err)
	}

	out := make([][]float32, len(res.Embeddings))
	for i, emb := range res.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}
