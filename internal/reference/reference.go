// Package reference extracts plain text passages from uploaded documents so
// they can be fed to the outline prompt as reference material.
package reference

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Passage is a run of text under one heading path.
type Passage struct {
	Breadcrumb []string `json:"breadcrumb,omitempty"`
	Text       string   `json:"text"`
	Page       int      `json:"page,omitempty"`
}

// Document is the extracted content of one file.
type Document struct {
	Title    string    `json:"title"`
	Passages []Passage `json:"passages"`
}

// Extractor converts raw file bytes into a Document.
type Extractor interface {
	Extract(r io.Reader, filename string) (*Document, error)
}

// SupportedExtensions lists file extensions that can be used as reference.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the appropriate extractor for a filename.
func ForFile(filename string) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextExtractor{}, nil
	case ".md", ".markdown":
		return &MarkdownExtractor{}, nil
	case ".csv":
		return &CSVExtractor{}, nil
	case ".html", ".htm":
		return &HTMLExtractor{}, nil
	case ".pdf":
		return &PDFExtractor{}, nil
	case ".docx":
		return &DOCXExtractor{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

func baseTitle(filename string) string {
	return strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
}

// sectionBuilder groups paragraphs under the current heading path. Headings
// pop the path back to their own level before being pushed.
type sectionBuilder struct {
	doc    Document
	levels []int
	titles []string
	text   strings.Builder
}

func newSectionBuilder(title string) *sectionBuilder {
	return &sectionBuilder{doc: Document{Title: title, Passages: []Passage{}}}
}

func (b *sectionBuilder) heading(level int, title string) {
	b.flush()
	for len(b.levels) > 0 && b.levels[len(b.levels)-1] >= level {
		b.levels = b.levels[:len(b.levels)-1]
		b.titles = b.titles[:len(b.titles)-1]
	}
	b.levels = append(b.levels, level)
	b.titles = append(b.titles, title)
}

func (b *sectionBuilder) paragraph(t string) {
	t = strings.TrimSpace(t)
	if t == "" {
		return
	}
	if b.text.Len() > 0 {
		b.text.WriteString("\n\n")
	}
	b.text.WriteString(t)
}

func (b *sectionBuilder) flush() {
	if t := strings.TrimSpace(b.text.String()); t != "" {
		b.doc.Passages = append(b.doc.Passages, Passage{
			Breadcrumb: append([]string(nil), b.titles...),
			Text:       t,
		})
	}
	b.text.Reset()
}

func (b *sectionBuilder) done() *Document {
	b.flush()
	return &b.doc
}
