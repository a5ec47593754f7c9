// Package catalog supplies puzzle definitions from a directory of task JSON
// files, one puzzle per <id>.json file.
package catalog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gridprobe/gridprobe/internal/core"
)

// FSCatalog implements core.PuzzleCatalog over a directory tree. Parsed
// puzzles are cached; the directory is treated as immutable for the process
// lifetime.
type FSCatalog struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]*core.Puzzle
}

var _ core.PuzzleCatalog = (*FSCatalog)(nil)

// NewFSCatalog creates a catalog rooted at dir.
func NewFSCatalog(dir string) (*FSCatalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, core.ErrValidation(core.CodeInvalidConfig, "catalog dir not accessible: "+dir).WithCause(err)
	}
	if !info.IsDir() {
		return nil, core.ErrValidation(core.CodeInvalidConfig, "catalog path is not a directory: "+dir)
	}
	return &FSCatalog{
		dir:   dir,
		cache: make(map[string]*core.Puzzle),
	}, nil
}

// Get returns the puzzle with the given id, or a not_found error.
func (c *FSCatalog) Get(ctx context.Context, id string) (*core.Puzzle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Ids come from callers; keep them from escaping the catalog dir.
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return nil, core.ErrNotFound("puzzle", id)
	}

	c.mu.RLock()
	puzzle, ok := c.cache[id]
	c.mu.RUnlock()
	if ok {
		return puzzle, nil
	}

	data, err := os.ReadFile(filepath.Join(c.dir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrNotFound("puzzle", id)
		}
		return nil, core.ErrInternal("reading puzzle file").WithCause(err)
	}

	var parsed struct {
		Train []core.Pair `json:"train"`
		Test  []core.Pair `json:"test"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, core.ErrValidation(core.CodeInvalidPuzzle, "malformed puzzle file: "+id).WithCause(err)
	}

	puzzle = &core.Puzzle{ID: id, Train: parsed.Train, Test: parsed.Test}
	if err := puzzle.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[id] = puzzle
	c.mu.Unlock()
	return puzzle, nil
}

// List returns all known puzzle ids, sorted.
func (c *FSCatalog) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, core.ErrInternal("listing catalog dir").WithCause(err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}
