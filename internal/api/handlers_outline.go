package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dgallion1/deckgen/internal/llm"
	"github.com/dgallion1/deckgen/internal/outline"
	"github.com/dgallion1/deckgen/internal/reference"
)

const maxOutlineSlides = 50

// handleOutline asks the model for a deck outline. An optional uploaded
// document is extracted and passed along as reference material.
func (s *Server) handleOutline(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	prompt := strings.TrimSpace(r.FormValue("prompt"))
	if prompt == "" {
		jsonError(w, "prompt is required", http.StatusBadRequest)
		return
	}
	numSlides := 0
	if v := r.FormValue("num_slides"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxOutlineSlides {
			jsonError(w, fmt.Sprintf("num_slides must be between 1 and %d", maxOutlineSlides), http.StatusBadRequest)
			return
		}
		numSlides = n
	}

	var refText, refName string
	if file, header, err := r.FormFile("file"); err == nil {
		defer file.Close()
		refName = sanitizeFilename(header.Filename)
		text, status, err := s.extractReference(file, refName)
		if err != nil {
			jsonError(w, err.Error(), status)
			return
		}
		refText = text
	}

	req := llm.OutlinePrompt(llm.OutlineRequest{
		Prompt:    prompt,
		NumSlides: numSlides,
		Language:  r.FormValue("language"),
		Reference: refText,
	})
	raw, err := llm.Collect(s.model.Stream(r.Context(), req))
	if err != nil {
		s.log.Error("outline generation failed", "error", err, "retryable", llm.IsRetryable(err))
		code := http.StatusBadGateway
		if llm.IsRetryable(err) {
			code = http.StatusServiceUnavailable
		}
		jsonError(w, "outline generation failed: "+err.Error(), code)
		return
	}

	o := outline.Extract(raw)
	if o.NumSlides() == 0 {
		jsonError(w, "model returned an empty outline", http.StatusBadGateway)
		return
	}
	s.log.Info("outline generated", "topics", o.NumSlides(), "reference", refName)
	writeJSON(w, http.StatusOK, map[string]any{
		"title":    o.Title,
		"topics":   o.Topics,
		"outline":  o.Titles(),
		"markdown": o.Markdown(),
	})
}

// extractReference returns the budgeted text of an uploaded document, or an
// error with the HTTP status to report.
func (s *Server) extractReference(file io.Reader, filename string) (string, int, error) {
	ex, err := reference.ForFile(filename)
	if err != nil {
		return "", http.StatusBadRequest, fmt.Errorf("unsupported file type: %s", filepath.Ext(filename))
	}
	if pdf, ok := ex.(*reference.PDFExtractor); ok {
		pdf.FallbackPdftotext = s.cfg.PDFFallbackPdftotext
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return "", http.StatusInternalServerError, fmt.Errorf("failed to read file")
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return "", http.StatusRequestEntityTooLarge, fmt.Errorf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes)
	}

	doc, err := ex.Extract(bytes.NewReader(data), filename)
	if err != nil {
		s.log.Warn("reference extraction failed", "filename", filename, "error", err)
		return "", http.StatusUnprocessableEntity, fmt.Errorf("could not read %s: %v", filename, err)
	}
	return reference.Budget(doc, s.cfg.ReferenceTokens), http.StatusOK, nil
}
