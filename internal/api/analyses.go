package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gridprobe/gridprobe/internal/core"
)

// createAnalysisRequest is the POST /analyses body.
type createAnalysisRequest struct {
	PuzzleID   string              `json:"puzzle_id"`
	ModelID    string              `json:"model_id"`
	ProviderID string              `json:"provider_id"`
	Config     core.AnalysisConfig `json:"config"`

	// TimeoutSeconds bounds the provider call; zero uses the provider's
	// configured default.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

func (s *Server) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	var body createAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, core.ErrValidation(core.CodeMalformedPayload, "invalid JSON body"))
		return
	}

	req := core.AnalysisRequest{
		PuzzleID:   body.PuzzleID,
		ModelID:    body.ModelID,
		ProviderID: body.ProviderID,
		Config:     body.Config,
		Timeout:    time.Duration(body.TimeoutSeconds) * time.Second,
	}
	sess, err := s.manager.Open(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sess.Info())
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"analyses": s.manager.List()})
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

func (s *Server) handleCancelAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.manager.Cancel(id); err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.manager.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sess.Info())
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	record, err := s.manager.Result(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// retryAnalysisRequest is the POST /analyses/{id}/retry body. The body is
// optional; an empty instruction asks the model to continue.
type retryAnalysisRequest struct {
	Instruction string `json:"instruction,omitempty"`
}

func (s *Server) handleRetryAnalysis(w http.ResponseWriter, r *http.Request) {
	var body retryAnalysisRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, core.ErrValidation(core.CodeMalformedPayload, "invalid JSON body"))
			return
		}
	}
	sess, err := s.manager.Retry(r.Context(), chi.URLParam(r, "sessionID"), body.Instruction)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sess.Info())
}

func (s *Server) handleListPuzzles(w http.ResponseWriter, r *http.Request) {
	ids, err := s.catalog.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"puzzles": ids})
}

func (s *Server) handleGetPuzzle(w http.ResponseWriter, r *http.Request) {
	puzzle, err := s.catalog.Get(r.Context(), chi.URLParam(r, "puzzleID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, puzzle)
}

func (s *Server) handleListPuzzleRecords(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.ListByPuzzle(r.Context(), chi.URLParam(r, "puzzleID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": ids})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := s.store.Get(r.Context(), chi.URLParam(r, "recordID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleListProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"providers": s.providers.List()})
}
