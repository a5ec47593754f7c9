package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/gridprobe/gridprobe/internal/core"
)

// MemoryStore is an in-process core.ResultStore. Records do not survive a
// restart; use it for tests and one-shot CLI runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*core.AnalysisRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*core.AnalysisRecord)}
}

func (s *MemoryStore) Save(_ context.Context, record *core.AnalysisRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recordID := record.RecordID
	if recordID == "" {
		recordID = uuid.NewString()
	}
	stored := *record
	stored.RecordID = recordID
	s.records[recordID] = &stored
	return recordID, nil
}

func (s *MemoryStore) Get(_ context.Context, recordID string) (*core.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[recordID]
	if !ok {
		return nil, core.ErrNotFound("record", recordID)
	}
	copied := *record
	return &copied, nil
}

func (s *MemoryStore) ListByPuzzle(_ context.Context, puzzleID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type entry struct {
		id       string
		finished int64
	}
	var entries []entry
	for id, record := range s.records {
		if record.Request.PuzzleID == puzzleID {
			entries = append(entries, entry{id: id, finished: record.FinishedAt.UnixNano()})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].finished > entries[j].finished })
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	return ids, nil
}

func (s *MemoryStore) Close() error { return nil }
