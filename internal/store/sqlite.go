// Package store persists finished analysis records. The SQLite store is the
// durable production backend; the memory store backs tests and one-shot CLI
// runs.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/gridprobe/gridprobe/internal/core"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// SQLiteStore implements core.ResultStore with SQLite storage.
type SQLiteStore struct {
	dbPath string
	db     *sql.DB
	mu     sync.RWMutex
}

// NewSQLiteStore opens (or creates) the database at dbPath and applies
// pending migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, core.ErrPersistence("creating storage directory").WithCause(err)
	}

	// WAL mode so a long read never blocks a record save.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, core.ErrPersistence("opening database").WithCause(err)
	}

	s := &SQLiteStore{dbPath: dbPath, db: db}
	if err := s.migrate(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("running migrations: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		// Table doesn't exist yet, run initial migration
		version = 0
	}
	if version < 1 {
		if _, err := s.db.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save stores a finished record and returns its assigned id. The record's
// RecordID field is left to the caller.
func (s *SQLiteStore) Save(ctx context.Context, record *core.AnalysisRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recordID := record.RecordID
	if recordID == "" {
		recordID = uuid.NewString()
	}

	requestJSON, err := json.Marshal(record.Request)
	if err != nil {
		return "", core.ErrPersistence("marshaling request").WithCause(err)
	}
	usageJSON, err := json.Marshal(record.Usage)
	if err != nil {
		return "", core.ErrPersistence("marshaling usage").WithCause(err)
	}
	var validationJSON []byte
	if record.Validation != nil {
		validationJSON, err = json.Marshal(record.Validation)
		if err != nil {
			return "", core.ErrPersistence("marshaling validation").WithCause(err)
		}
	}
	var warningsJSON []byte
	if len(record.Warnings) > 0 {
		warningsJSON, err = json.Marshal(record.Warnings)
		if err != nil {
			return "", core.ErrPersistence("marshaling warnings").WithCause(err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO analysis_records (
			record_id, session_id, puzzle_id, provider_id, model_id, state,
			raw_text, reasoning_text, request_json, validation_json, usage_json,
			error_category, error_message, warnings_json, created_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		recordID,
		record.SessionID,
		record.Request.PuzzleID,
		record.Request.ProviderID,
		record.Request.ModelID,
		string(record.State),
		record.RawText,
		record.ReasoningText,
		string(requestJSON),
		nullable(validationJSON),
		string(usageJSON),
		string(record.ErrorCategory),
		record.ErrorMessage,
		nullable(warningsJSON),
		record.CreatedAt.UTC().Format(time.RFC3339Nano),
		record.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", core.ErrPersistence("saving analysis record").WithCause(err)
	}
	return recordID, nil
}

// Get returns a previously saved record by id.
func (s *SQLiteStore) Get(ctx context.Context, recordID string) (*core.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT record_id, session_id, state, raw_text, reasoning_text,
		       request_json, validation_json, usage_json,
		       error_category, error_message, warnings_json,
		       created_at, finished_at
		FROM analysis_records WHERE record_id = ?`, recordID)
	return scanRecord(row, recordID)
}

// ListByPuzzle returns record ids saved for a puzzle, newest first.
func (s *SQLiteStore) ListByPuzzle(ctx context.Context, puzzleID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id FROM analysis_records
		WHERE puzzle_id = ? ORDER BY finished_at DESC`, puzzleID)
	if err != nil {
		return nil, core.ErrPersistence("listing analysis records").WithCause(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, core.ErrPersistence("scanning record id").WithCause(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, core.ErrPersistence("listing analysis records").WithCause(err)
	}
	return ids, nil
}

func scanRecord(row *sql.Row, recordID string) (*core.AnalysisRecord, error) {
	var (
		record                       core.AnalysisRecord
		state, category              string
		requestJSON, usageJSON       string
		validationJSON, warningsJSON sql.NullString
		createdAt, finishedAt        string
	)
	err := row.Scan(
		&record.RecordID, &record.SessionID, &state,
		&record.RawText, &record.ReasoningText,
		&requestJSON, &validationJSON, &usageJSON,
		&category, &record.ErrorMessage, &warningsJSON,
		&createdAt, &finishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound("record", recordID)
	}
	if err != nil {
		return nil, core.ErrPersistence("reading analysis record").WithCause(err)
	}

	record.State = core.SessionState(state)
	record.ErrorCategory = core.ErrorCategory(category)
	if err := json.Unmarshal([]byte(requestJSON), &record.Request); err != nil {
		return nil, core.ErrPersistence("decoding stored request").WithCause(err)
	}
	if err := json.Unmarshal([]byte(usageJSON), &record.Usage); err != nil {
		return nil, core.ErrPersistence("decoding stored usage").WithCause(err)
	}
	if validationJSON.Valid {
		record.Validation = &core.PredictionValidation{}
		if err := json.Unmarshal([]byte(validationJSON.String), record.Validation); err != nil {
			return nil, core.ErrPersistence("decoding stored validation").WithCause(err)
		}
	}
	if warningsJSON.Valid {
		if err := json.Unmarshal([]byte(warningsJSON.String), &record.Warnings); err != nil {
			return nil, core.ErrPersistence("decoding stored warnings").WithCause(err)
		}
	}
	if record.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, core.ErrPersistence("decoding created_at").WithCause(err)
	}
	if record.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt); err != nil {
		return nil, core.ErrPersistence("decoding finished_at").WithCause(err)
	}
	return &record, nil
}

func nullable(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
