// Package corpus implements the retrieval.corpus module. It indexes the
// text files of each namespace directory at startup and publishes a
// retrieval.Retriever over them.
package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/mpdagents/mpdchat/internal/core"
	"github.com/mpdagents/mpdchat/internal/retrieval"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// indexTimeout bounds the embedding of a whole corpus at startup.
const indexTimeout = 5 * time.Minute

// Module builds one searcher per namespace.
type Module struct {
	config   Config
	logger   *slog.Logger
	embedder retrieval.Embedder
	fts      *ftsDB
	spaces   retrieval.Namespaces
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "retrieval.corpus",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("retrieval.corpus: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if m.embedder != nil {
		return nil
	}
	return m.config.validate()
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger
	if m.config.Dir == "" {
		m.config.Dir = filepath.Join(ctx.DataDir, defaultDir)
	}
	if m.config.FTSPath == "" {
		m.config.FTSPath = filepath.Join(ctx.DataDir, defaultFTSFile)
	}

	bctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
	defer cancel()

	spaces, err := m.build(bctx)
	if err != nil {
		return err
	}
	m.spaces = spaces
	ctx.RegisterService(retrieval.ServiceName, retrieval.Retriever(spaces))
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.fts == nil {
		return nil
	}
	return m.fts.Close()
}

func (m *Module) build(ctx context.Context) (retrieval.Namespaces, error) {
	docs, err := loadNamespaces(m.config.Dir, m.config.ChunkChars)
	if err != nil {
		return nil, err
	}

	if m.config.needsEmbedder() && m.embedder == nil {
		e, err := newGenAIEmbedder(ctx, m.config.Embedding)
		if err != nil {
			return nil, err
		}
		m.embedder = e
	}
	if m.config.Index == IndexFTS {
		f, err := openFTS(ctx, m.config.FTSPath)
		if err != nil {
			return nil, err
		}
		m.fts = f
	}

	names := make([]string, 0, len(docs))
	for ns := range docs {
		names = append(names, ns)
	}
	sort.Strings(names)

	spaces := make(retrieval.Namespaces, len(docs))
	for _, ns := range names {
		s, err := m.searcher(ctx, ns, docs[ns])
		if err != nil {
			return nil, fmt.Errorf("retrieval.corpus: index %s: %w", ns, err)
		}
		spaces[ns] = s
		m.logger.Info("corpus namespace indexed", "namespace", ns, "chunks", len(docs[ns]), "index", m.config.Index)
	}
	if len(spaces) == 0 {
		m.logger.Warn("corpus is empty; retrieval will return unknown namespace", "dir", m.config.Dir)
	}
	return spaces, nil
}

func (m *Module) searcher(ctx context.Context, ns string, docs []retrieval.Document) (retrieval.Searcher, error) {
	switch m.config.Index {
	case IndexFTS:
		if err := m.fts.replace(ctx, ns, docs); err != nil {
			return nil, err
		}
		return m.fts.searcher(ns), nil
	case IndexVector:
		return retrieval.NewVectorIndex(ctx, m.embedder, docs)
	case IndexHybrid:
		vi, err := retrieval.NewVectorIndex(ctx, m.embedder, docs)
		if err != nil {
			return nil, err
		}
		return retrieval.Fusion{retrieval.NewIndex(docs), vi}, nil
	default:
		return retrieval.NewIndex(docs), nil
	}
}
