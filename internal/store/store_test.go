package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridprobe/gridprobe/internal/core"
)

func sampleRecord(puzzleID string, finished time.Time) *core.AnalysisRecord {
	return &core.AnalysisRecord{
		SessionID: "sess-1",
		Request: core.AnalysisRequest{
			PuzzleID:   puzzleID,
			ModelID:    "gpt-5.1",
			ProviderID: "openai",
		},
		State:         core.StateCompleted,
		RawText:       `{"predictedOutput": [[1, 2], [3, 4]]}`,
		ReasoningText: "the rows swap",
		Validation: &core.PredictionValidation{
			Grids:          []core.Grid{{{1, 2}, {3, 4}}},
			PerTestCorrect: []bool{true},
			Accuracy:       1.0,
			Method:         core.ExtractionDirect,
		},
		Usage:      core.TokenUsage{Input: 1200, Output: 300, Reasoning: 90},
		Warnings:   []string{"persistence retried once"},
		CreatedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
	}
}

func stores(t *testing.T) map[string]core.ResultStore {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "gridprobe.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]core.ResultStore{
		"sqlite": sqlite,
		"memory": NewMemoryStore(),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			record := sampleRecord("p1", time.Now().UTC().Truncate(time.Millisecond))

			id, err := s.Save(ctx, record)
			require.NoError(t, err)
			require.NotEmpty(t, id)

			loaded, err := s.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, record.SessionID, loaded.SessionID)
			assert.Equal(t, record.Request, loaded.Request)
			assert.Equal(t, record.State, loaded.State)
			assert.Equal(t, record.RawText, loaded.RawText)
			assert.Equal(t, record.ReasoningText, loaded.ReasoningText)
			assert.Equal(t, record.Usage, loaded.Usage)
			assert.Equal(t, record.Warnings, loaded.Warnings)
			require.NotNil(t, loaded.Validation)
			assert.Equal(t, record.Validation, loaded.Validation)
			assert.True(t, record.FinishedAt.Equal(loaded.FinishedAt))
		})
	}
}

func TestStoreErrorRecordWithoutValidation(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			record := sampleRecord("p1", time.Now().UTC())
			record.State = core.StateError
			record.Validation = nil
			record.Warnings = nil
			record.ErrorCategory = core.ErrCatRateLimit
			record.ErrorMessage = "rate limited"

			id, err := s.Save(ctx, record)
			require.NoError(t, err)

			loaded, err := s.Get(ctx, id)
			require.NoError(t, err)
			assert.Nil(t, loaded.Validation)
			assert.Nil(t, loaded.Warnings)
			assert.Equal(t, core.ErrCatRateLimit, loaded.ErrorCategory)
			assert.Equal(t, "rate limited", loaded.ErrorMessage)
		})
	}
}

func TestStoreGetUnknown(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "ghost")
			require.Error(t, err)
			assert.True(t, core.IsCategory(err, core.ErrCatNotFound))
		})
	}
}

func TestStoreListByPuzzleNewestFirst(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().UTC()

			oldest, err := s.Save(ctx, sampleRecord("p1", base.Add(-2*time.Hour)))
			require.NoError(t, err)
			newest, err := s.Save(ctx, sampleRecord("p1", base))
			require.NoError(t, err)
			middle, err := s.Save(ctx, sampleRecord("p1", base.Add(-time.Hour)))
			require.NoError(t, err)
			_, err = s.Save(ctx, sampleRecord("other", base))
			require.NoError(t, err)

			ids, err := s.ListByPuzzle(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, []string{newest, middle, oldest}, ids)
		})
	}
}

func TestSQLiteStoreReopenKeepsRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "gridprobe.db")

	first, err := NewSQLiteStore(path)
	require.NoError(t, err)
	id, err := first.Save(ctx, sampleRecord("p1", time.Now().UTC()))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer second.Close()

	loaded, err := second.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", loaded.SessionID)
}
