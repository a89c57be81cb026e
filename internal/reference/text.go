package reference

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// TextExtractor handles plain text files. Blank lines separate passages.
type TextExtractor struct{}

func (e *TextExtractor) Extract(r io.Reader, filename string) (*Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	doc := &Document{Title: baseTitle(filename), Passages: []Passage{}}
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			doc.Passages = append(doc.Passages, Passage{Text: current.String()})
			current.Reset()
		}
	}
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return doc, nil
}

// CSVExtractor handles CSV files. Rows are rendered as header: value pairs
// in batches.
type CSVExtractor struct{}

const csvBatchSize = 20

func (e *CSVExtractor) Extract(r io.Reader, filename string) (*Document, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	doc := &Document{Title: baseTitle(filename), Passages: []Passage{}}
	if len(records) == 0 {
		return doc, nil
	}
	headers := records[0]
	dataRows := records[1:]

	for i := 0; i < len(dataRows); i += csvBatchSize {
		end := min(i+csvBatchSize, len(dataRows))
		var text strings.Builder
		text.WriteString("Headers: " + strings.Join(headers, ", ") + "\n\n")
		for _, row := range dataRows[i:end] {
			for j, cell := range row {
				if j < len(headers) {
					text.WriteString(headers[j] + ": " + cell)
				} else {
					text.WriteString(cell)
				}
				if j < len(row)-1 {
					text.WriteString(", ")
				}
			}
			text.WriteString("\n")
		}
		doc.Passages = append(doc.Passages, Passage{
			Breadcrumb: []string{fmt.Sprintf("Rows %d-%d", i+2, end+1)}, // 1-indexed, skip header
			Text:       strings.TrimSpace(text.String()),
		})
	}
	return doc, nil
}
