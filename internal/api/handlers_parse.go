package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/dgallion1/deckgen/internal/layout"
)

// handleParse maps raw slide markup to the document model. With
// ?final=false the last slide is treated as still streaming.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if int64(len(body)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("body exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}
	final := r.URL.Query().Get("final") != "false"

	pass := layout.Run(string(body), final)
	violations := make(map[string][]string, len(pass.Violations))
	for id, vs := range pass.Violations {
		for _, v := range vs {
			violations[id] = append(violations[id], v.String())
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"slides":     pass.Slides,
		"count":      len(pass.Slides),
		"clean":      pass.Clean,
		"violations": violations,
	})
}
