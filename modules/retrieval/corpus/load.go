package corpus

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mpdagents/mpdchat/internal/retrieval"
)

// loadNamespaces reads every *.md and *.txt file under dir/<namespace>/
// and chunks it. Sources are slash paths relative to the namespace
// directory. A missing dir yields no namespaces.
func loadNamespaces(dir string, chunkChars int) (map[string][]retrieval.Document, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return map[string][]retrieval.Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("retrieval.corpus: read %s: %w", dir, err)
	}

	out := make(map[string][]retrieval.Document)
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		docs, err := loadNamespace(os.DirFS(filepath.Join(dir, e.Name())), chunkChars)
		if err != nil {
			return nil, fmt.Errorf("retrieval.corpus: namespace %s: %w", e.Name(), err)
		}
		out[e.Name()] = docs
	}
	return out, nil
}

func loadNamespace(fsys fs.FS, chunkChars int) ([]retrieval.Document, error) {
	var files []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		switch strings.ToLower(path.Ext(p)) {
		case ".md", ".txt":
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	var docs []retrieval.Document
	for _, p := range files {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, err
		}
		docs = append(docs, retrieval.Chunk(p, string(data), chunkChars)...)
	}
	return docs, nil
}
