package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gridprobe/gridprobe/internal/core"
)

// handleStreamEvents streams a session's event log as server-sent events.
// The full log is replayed first, so attaching mid-stream or after the fact
// always yields the complete ordered sequence. The stream ends after the
// terminal event.
func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	events, err := s.manager.Subscribe(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, core.ErrInternal("streaming unsupported by connection"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.WithSession(sessionID).Error("encoding stream event", "error", err)
			return
		}
		if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Sequence, ev.Type, data); err != nil {
			// Client went away; the session itself keeps running.
			return
		}
		flusher.Flush()
		if ev.Type.IsTerminal() {
			return
		}
	}
}
