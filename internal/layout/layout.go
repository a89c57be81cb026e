// Package layout converts segmented markup sections into the slide document
// model. Every input maps to something renderable: malformed or partial
// markup degrades to fewer or rougher blocks, never to an error.
package layout

import (
	"fmt"
	"strings"

	"github.com/dgallion1/deckgen/internal/deck"
	"github.com/dgallion1/deckgen/internal/markup"
)

// FallbackLayout is used when a section has no recognized layout tag.
const FallbackLayout = "bullets"

// Result is the mapping of one section.
type Result struct {
	Slide      deck.Slide
	Violations []markup.Violation
}

// Pass is the outcome of running the whole pipeline over an accumulated text.
type Pass struct {
	Slides     []deck.Slide
	Clean      bool
	Violations map[string][]markup.Violation // by slide id
}

// SlideID is the positional identifier of the i-th (0-based) section.
func SlideID(i int) string {
	return fmt.Sprintf("slide-%d", i+1)
}

// Run builds, segments and maps the full text. It is a pure function of its
// inputs: the same text and final flag always yield identical slides.
func Run(text string, final bool) Pass {
	forest := markup.Build(text)
	sections := markup.Segment(forest, final)
	p := Pass{
		Slides: make([]deck.Slide, 0, len(sections)),
		Clean:  forest.Clean,
	}
	for _, sec := range sections {
		r := Map(sec)
		r.Slide.ID = SlideID(sec.Index)
		p.Slides = append(p.Slides, r.Slide)
		if len(r.Violations) > 0 {
			if p.Violations == nil {
				p.Violations = make(map[string][]markup.Violation)
			}
			p.Violations[r.Slide.ID] = r.Violations
		}
	}
	return p
}

// Document is Run without the diagnostics.
func Document(text string, final bool) []deck.Slide {
	return Run(text, final).Slides
}

type mapper struct {
	violations []markup.Violation
}

func (m *mapper) violate(tag markup.Tag, format string, args ...any) {
	m.violations = append(m.violations, markup.Violation{Tag: tag, Message: fmt.Sprintf(format, args...)})
}

// Map converts one section into a slide (without id).
func Map(sec markup.Section) Result {
	m := &mapper{}
	slide := deck.Slide{
		Placement:   sec.Placement,
		Blocks:      []deck.Block{},
		Width:       deck.DefaultWidth,
		Alignment:   deck.DefaultAlignment,
		Provisional: sec.Provisional,
	}

	// Only one layout per slide: the first recognized layout tag wins.
	var chosen *markup.Node
	for _, n := range sec.Body {
		if n.IsText {
			continue
		}
		if _, _, ok := markup.LayoutOf(n.Tag); ok {
			if chosen == nil {
				chosen = n
			} else {
				m.violate(n.Tag, "additional layout ignored, slide already uses %s", chosen.Tag)
			}
		}
	}

	if chosen != nil {
		slide.Layout, _, _ = markup.LayoutOf(chosen.Tag)
		m.violations = append(m.violations, markup.Check(chosen)...)
	} else {
		slide.Layout = FallbackLayout
	}

	var loose []*markup.Node
	flushLoose := func() {
		if len(loose) == 0 {
			return
		}
		slide.Blocks = append(slide.Blocks, m.fallbackItems(loose)...)
		loose = nil
	}

	for _, n := range sec.Body {
		if n.IsText {
			if chosen == nil {
				loose = append(loose, n)
			} else if t := clean(n.Text); t != "" {
				slide.Blocks = append(slide.Blocks, paragraph(t))
			}
			continue
		}
		if level, ok := markup.IsHeading(n.Tag); ok {
			flushLoose()
			if t := n.TextContent(); t != "" {
				slide.Blocks = append(slide.Blocks, deck.Block{Kind: deck.KindHeading, Level: level, Text: t})
			}
			continue
		}
		switch {
		case n.Tag == markup.TagImg:
			if slide.RootImage == nil {
				slide.RootImage = &deck.RootImage{Query: imageQuery(n), Placement: sec.Placement}
			} else {
				m.violate(n.Tag, "extra root image %q dropped", imageQuery(n))
			}
		case n == chosen:
			flushLoose()
			slide.Blocks = append(slide.Blocks, m.convert(n)...)
		case chosen != nil && isLayout(n.Tag):
			// Already reported above.
		case chosen != nil:
			if t := n.TextContent(); t != "" {
				slide.Blocks = append(slide.Blocks, paragraph(t))
			}
		default:
			loose = append(loose, n)
		}
	}
	flushLoose()

	if len(slide.Blocks) == 0 && !sec.Provisional {
		slide.Blocks = append(slide.Blocks, deck.Block{Kind: deck.KindParagraph})
	}
	if sec.Implicit {
		m.violate(markup.TagSection, "content outside SECTION folded into an implicit slide")
	}
	return Result{Slide: slide, Violations: m.violations}
}

// convert dispatches a layout node to its shape converter.
func (m *mapper) convert(n *markup.Node) []deck.Block {
	name, shape, _ := markup.LayoutOf(n.Tag)
	switch shape {
	case markup.ShapeTable:
		return []deck.Block{m.table(n)}
	case markup.ShapeChart:
		return []deck.Block{m.chart(n)}
	case markup.ShapeList, markup.ShapeSequence:
		return m.items(n, name)
	}
	return m.fallbackItems(n.Children)
}

func isLayout(t markup.Tag) bool {
	_, _, ok := markup.LayoutOf(t)
	return ok
}

func paragraph(t string) deck.Block {
	return deck.Block{Kind: deck.KindParagraph, Text: t}
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func imageQuery(n *markup.Node) string {
	for _, key := range []string{"query", "alt", "src"} {
		if v, ok := n.Attr(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return n.TextContent()
}

func iconQuery(n *markup.Node) string {
	for _, key := range []string{"query", "name"} {
		if v, ok := n.Attr(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return n.TextContent()
}
