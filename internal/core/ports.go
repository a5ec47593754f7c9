package core

import "context"

// =============================================================================
// Collaborator ports. The analysis core depends on these, never on their
// implementations.
// =============================================================================

// PuzzleCatalog supplies puzzle definitions by id.
type PuzzleCatalog interface {
	// Get returns the puzzle with the given id, or a not_found error.
	Get(ctx context.Context, id string) (*Puzzle, error)

	// List returns all known puzzle ids.
	List(ctx context.Context) ([]string, error)
}

// PromptRequest carries everything the prompt builder needs to assemble a
// provider instruction.
type PromptRequest struct {
	Puzzle *Puzzle
	Config AnalysisConfig

	// ExtraInstruction is appended for retry/continuation (e.g. user
	// feedback text).
	ExtraInstruction string
}

// PromptBuilder turns a puzzle and configuration into a fully assembled
// instruction string for a provider.
type PromptBuilder interface {
	Build(req PromptRequest) (string, error)
}

// ResultStore persists finished analysis records. Save must be non-blocking
// to the caller's perceived latency; a failure to persist never fails the
// analysis itself.
type ResultStore interface {
	// Save stores a finished record and returns a stable record id.
	Save(ctx context.Context, record *AnalysisRecord) (string, error)

	// Get returns a previously saved record.
	Get(ctx context.Context, recordID string) (*AnalysisRecord, error)

	// ListByPuzzle returns record ids saved for a puzzle, newest first.
	ListByPuzzle(ctx context.Context, puzzleID string) ([]string, error)

	// Close releases store resources.
	Close() error
}
