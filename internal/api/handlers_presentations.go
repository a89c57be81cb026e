package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dgallion1/deckgen/internal/pipeline"
	"github.com/dgallion1/deckgen/internal/store"
	"github.com/go-chi/chi/v5"
)

type createPresentationRequest struct {
	Title    string   `json:"title"`
	Outline  []string `json:"outline"`
	Language string   `json:"language"`
	Tone     string   `json:"tone"`
	Theme    string   `json:"theme"`
}

// handleCreatePresentation starts a generation session from an outline.
func (s *Server) handleCreatePresentation(w http.ResponseWriter, r *http.Request) {
	var req createPresentationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		jsonError(w, "invalid json body: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		jsonError(w, "title is required", http.StatusBadRequest)
		return
	}
	topics := make([]string, 0, len(req.Outline))
	for _, t := range req.Outline {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	if len(topics) == 0 {
		jsonError(w, "outline must contain at least one topic", http.StatusBadRequest)
		return
	}
	if len(topics) > maxOutlineSlides {
		jsonError(w, fmt.Sprintf("outline exceeds %d topics", maxOutlineSlides), http.StatusBadRequest)
		return
	}

	sess := pipeline.NewSession(req.Title, topics, req.Language, req.Tone, req.Theme)
	if err := s.orchestrator.Submit(sess); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"session_id":      sess.ID,
		"presentation_id": sess.PresentationID,
		"status":          pipeline.StatusQueued,
		"poll_url":        fmt.Sprintf("/api/sessions/%s", sess.ID),
		"events_url":      fmt.Sprintf("/api/sessions/%s/events", sess.ID),
	})
}

func (s *Server) handleListPresentations(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	list, err := s.store.List(r.Context(), limit, offset)
	if err != nil {
		s.log.Error("list presentations failed", "error", err)
		jsonError(w, "failed to list presentations", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"presentations": list})
}

func (s *Server) handleGetPresentation(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePresentation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.storeError(w, err)
		return
	}
	s.log.Info("presentation deleted", "presentation_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleSharePresentation toggles public access. The body is optional and
// defaults to {"public": true}.
func (s *Server) handleSharePresentation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body := struct {
		Public *bool `json:"public"`
	}{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&body); err != nil {
			jsonError(w, "invalid json body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	public := body.Public == nil || *body.Public

	if err := s.store.SetPublic(r.Context(), id, public); err != nil {
		s.storeError(w, err)
		return
	}
	resp := map[string]any{"id": id, "public": public}
	if public {
		resp["share_url"] = "/share/" + id
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSharedPresentation serves a shared presentation without auth.
func (s *Server) handleSharedPresentation(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPublic(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, "presentation not found", http.StatusNotFound)
		return
	}
	s.log.Error("store error", "error", err)
	jsonError(w, "storage error", http.StatusInternalServerError)
}
