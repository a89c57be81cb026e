// Package outline extracts the title and topic list from a streamed outline
// response. The title marker is matched literally; the rest is Markdown.
package outline

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const (
	titleOpen  = "<title>"
	titleClose = "</title>"
)

// Topic is one planned slide.
type Topic struct {
	Title  string   `json:"title"`
	Points []string `json:"points,omitempty"`
}

// Outline is the parsed outline response.
type Outline struct {
	Title  string  `json:"title"`
	Topics []Topic `json:"topics"`
}

// Titles returns the topic titles in order.
func (o Outline) Titles() []string {
	out := make([]string, 0, len(o.Topics))
	for _, t := range o.Topics {
		out = append(out, t.Title)
	}
	return out
}

// NumSlides is the number of slides the outline plans for.
func (o Outline) NumSlides() int {
	return len(o.Topics)
}

// Markdown renders the outline back into the bullet form used in prompts.
func (o Outline) Markdown() string {
	var sb strings.Builder
	for _, t := range o.Topics {
		sb.WriteString("# ")
		sb.WriteString(t.Title)
		sb.WriteByte('\n')
		for _, p := range t.Points {
			sb.WriteString("- ")
			sb.WriteString(p)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// SplitTitle separates the <TITLE>...</TITLE> marker from the remaining text.
// An unterminated marker yields everything after it as the title so far.
func SplitTitle(s string) (title, rest string) {
	i := indexFold(s, titleOpen)
	if i < 0 {
		return "", s
	}
	start := i + len(titleOpen)
	j := indexFold(s[start:], titleClose)
	if j < 0 {
		return strings.TrimSpace(s[start:]), s[:i]
	}
	end := start + j
	return strings.TrimSpace(s[start:end]), s[:i] + s[end+len(titleClose):]
}

// indexFold returns the byte offset of marker in s ignoring ASCII case, or
// -1. marker must be lower case ASCII. Offsets stay valid for s itself.
func indexFold(s, marker string) int {
	for i := 0; i+len(marker) <= len(s); i++ {
		if hasPrefixFold(s[i:], marker) {
			return i
		}
	}
	return -1
}

func hasPrefixFold(s, marker string) bool {
	for j := 0; j < len(marker); j++ {
		c := s[j]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != marker[j] {
			return false
		}
	}
	return true
}

// Extract parses an outline response. It accepts partial input.
func Extract(s string) Outline {
	title, rest := SplitTitle(s)
	o := Outline{Title: title, Topics: []Topic{}}

	src := []byte(rest)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var cur *Topic
	var loose []string
	flush := func() {
		if cur != nil {
			o.Topics = append(o.Topics, *cur)
			cur = nil
		}
	}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			flush()
			if t := inlineText(node, src); t != "" {
				cur = &Topic{Title: t}
			}
		case *ast.List:
			items := listItems(node, src)
			if cur != nil {
				cur.Points = append(cur.Points, items...)
			} else {
				loose = append(loose, items...)
			}
		default:
			for _, line := range strings.Split(blockText(n, src), "\n") {
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if cur != nil {
					cur.Points = append(cur.Points, line)
				} else {
					loose = append(loose, line)
				}
			}
		}
	}
	flush()

	// Without headings every line is its own topic.
	if len(o.Topics) == 0 {
		for _, l := range loose {
			o.Topics = append(o.Topics, Topic{Title: l})
		}
	}
	return o
}

// listItems flattens a (possibly nested) list into its item texts.
func listItems(list *ast.List, src []byte) []string {
	var out []string
	for li := list.FirstChild(); li != nil; li = li.NextSibling() {
		for c := li.FirstChild(); c != nil; c = c.NextSibling() {
			if sub, ok := c.(*ast.List); ok {
				out = append(out, listItems(sub, src)...)
				continue
			}
			if t := strings.TrimSpace(blockText(c, src)); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

func blockText(n ast.Node, src []byte) string {
	switch n.Kind() {
	case ast.KindParagraph, ast.KindTextBlock, ast.KindHeading:
		return inlineText(n, src)
	}
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(src))
	}
	return buf.String()
}

// inlineText concatenates the text segments of inline children, keeping
// soft line breaks as newlines.
func inlineText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch t := c.(type) {
			case *ast.Text:
				buf.Write(t.Segment.Value(src))
				if t.SoftLineBreak() || t.HardLineBreak() {
					buf.WriteByte('\n')
				}
			case *ast.String:
				buf.Write(t.Value)
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return strings.TrimSpace(buf.String())
}
