package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dgallion1/deckgen/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

const sseKeepAlive = 15 * time.Second

func (s *Server) session(w http.ResponseWriter, r *http.Request) *pipeline.Session {
	sess := s.orchestrator.GetSession(chi.URLParam(r, "sessionID"))
	if sess == nil {
		jsonError(w, "session not found", http.StatusNotFound)
	}
	return sess
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	cancelled := sess.Cancel()
	if !cancelled {
		snap := sess.Snapshot()
		jsonError(w, fmt.Sprintf("session already %s", snap.Status), http.StatusConflict)
		return
	}
	s.log.Info("session cancel requested", "session_id", sess.ID)
	writeJSON(w, http.StatusAccepted, map[string]any{"session_id": sess.ID, "cancelled": true})
}

// handleSessionEvents streams session events as server-sent events. The
// stream opens with a snapshot and ends with an "end" event once the
// session has finished.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	events, stop := sess.Subscribe()
	defer stop()

	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(event string, v any) bool {
		if err := writeSSE(w, event, v); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	if !send("snapshot", sess.Snapshot()) {
		return
	}
	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil || rc.Flush() != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				snap := sess.Snapshot()
				send("end", map[string]any{"status": snap.Status, "error": snap.Error, "count": snap.Count})
				return
			}
			var payload any = ev.Update
			if ev.Type == pipeline.EventImage {
				payload = ev.Image
			}
			if !send(ev.Type, payload) {
				return
			}
		}
	}
}

func writeSSE(w io.Writer, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
