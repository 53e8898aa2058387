package corpus

import (
	"fmt"
	"os"
)

// Index kinds.
const (
	IndexBM25   = "bm25"
	IndexFTS    = "fts"
	IndexVector = "vector"
	IndexHybrid = "hybrid"
)

const (
	defaultDir        = "corpus"
	defaultChunkChars = 800
	defaultFTSFile    = "corpus.db"
	defaultEmbedModel = "gemini-embedding-001"
	defaultKeyEnv     = "GEMINI_API_KEY"
)

// Config holds the retrieval.corpus module configuration.
type Config struct {
	// Dir holds one subdirectory per namespace. Defaults to {DataDir}/corpus.
	Dir string `yaml:"dir"`

	// Index selects the searcher built per namespace: bm25 (default), fts,
	// vector or hybrid. hybrid fuses bm25 with vector.
	Index string `yaml:"index"`

	// ChunkChars is the target chunk size when splitting files.
	ChunkChars int `yaml:"chunk_chars"`

	// FTSPath is the SQLite file used by the fts index. Defaults to
	// {DataDir}/corpus.db.
	FTSPath string `yaml:"fts_path"`

	Embedding EmbeddingConfig `yaml:"embedding"`
}

// EmbeddingConfig configures the Gemini embedder used by the vector and
// hybrid indexes.
type EmbeddingConfig struct {
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

func (c *Config) defaults() {
	if c.Index == "" {
		c.Index = IndexBM25
	}
	if c.ChunkChars == 0 {
		c.ChunkChars = defaultChunkChars
	}
	if c.Embedding.APIKeyEnv == "" {
		c.Embedding.APIKeyEnv = defaultKeyEnv
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = defaultEmbedModel
	}
}

func (c *Config) needsEmbedder() bool {
	return c.Index == IndexVector || c.Index == IndexHybrid
}

func (e *EmbeddingConfig) key() string {
	if e.APIKey != "" {
		return e.APIKey
	}
	return os.Getenv(e.APIKeyEnv)
}

func (c *Config) validate() error {
	switch c.Index {
	case IndexBM25, IndexFTS, IndexVector, IndexHybrid:
	default:
		return fmt.Errorf("retrieval.corpus: unknown index %q", c.Index)
	}
	if c.ChunkChars < 0 {
		return fmt.Errorf("retrieval.corpus: chunk_chars must be positive, got %d", c.ChunkChars)
	}
	if c.needsEmbedder() && c.Embedding.key() == "" {
		return fmt.Errorf("retrieval.corpus: %s index needs an embedding api key (set %s)", c.Index, c.Embedding.APIKeyEnv)
	}
	return nil
}
