package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridprobe/gridprobe/internal/core"
)

func writePuzzle(t *testing.T, dir, id, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".json"), []byte(content), 0o600))
}

func TestFSCatalog_Get(t *testing.T) {
	dir := t.TempDir()
	writePuzzle(t, dir, "incr", `{"train":[{"input":[[0]],"output":[[1]]}],"test":[{"input":[[0]],"output":[[1]]}]}`)

	cat, err := NewFSCatalog(dir)
	require.NoError(t, err)

	puzzle, err := cat.Get(context.Background(), "incr")
	require.NoError(t, err)
	assert.Equal(t, "incr", puzzle.ID)
	require.Len(t, puzzle.Train, 1)
	require.Len(t, puzzle.Test, 1)
	assert.True(t, puzzle.Test[0].Output.Equal(core.Grid{{1}}))

	// Second read comes from cache and yields the same puzzle.
	again, err := cat.Get(context.Background(), "incr")
	require.NoError(t, err)
	assert.Same(t, puzzle, again)
}

func TestFSCatalog_GetNotFound(t *testing.T) {
	cat, err := NewFSCatalog(t.TempDir())
	require.NoError(t, err)

	_, err = cat.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatNotFound))
}

func TestFSCatalog_GetRejectsPathEscape(t *testing.T) {
	cat, err := NewFSCatalog(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"../secrets", "a/b", `a\b`, ""} {
		_, err := cat.Get(context.Background(), id)
		require.Error(t, err, "id %q should not resolve", id)
		assert.True(t, core.IsCategory(err, core.ErrCatNotFound))
	}
}

func TestFSCatalog_GetMalformed(t *testing.T) {
	dir := t.TempDir()
	writePuzzle(t, dir, "broken", `{"train": [}`)

	cat, err := NewFSCatalog(dir)
	require.NoError(t, err)

	_, err = cat.Get(context.Background(), "broken")
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestFSCatalog_List(t *testing.T) {
	dir := t.TempDir()
	writePuzzle(t, dir, "b", `{}`)
	writePuzzle(t, dir, "a", `{}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	cat, err := NewFSCatalog(dir)
	require.NoError(t, err)

	ids, err := cat.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestNewFSCatalog_MissingDir(t *testing.T) {
	_, err := NewFSCatalog(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}
