package llm

import (
	"fmt"
	"strings"
)

const OutlineSystemPrompt = `You are a presentation planner. Produce an outline for a slide deck.

Rules:
- Start with the deck title wrapped in <TITLE></TITLE> on its own line
- Then write one Markdown heading (# ) per slide, in order
- Under each heading write 2 to 4 short bullet points (- ) with the key ideas
- Do not number the headings
- Do not add any text before the title or after the last slide`

const SlidesSystemPrompt = `You are a presentation designer. Turn the outline into slides using ONLY this XML-like markup.

Structure:
- Wrap the whole deck in <PRESENTATION></PRESENTATION>
- One <SECTION layout="left|right|vertical"> per slide; the layout attribute places the slide image
- Each SECTION may start with an <H1> or <H2> title and an optional <IMG query="..." /> describing a photo
- Each SECTION uses exactly ONE layout component

Layout components (item containers in parentheses):
- <BULLETS> (<DIV>) key points
- <ICONS> (<DIV> with <ICON query="..." />) concepts with an icon each
- <COLUMNS> (<DIV>) side by side comparison of 2 or more options
- <BOXES> (<DIV>) grouped facts
- <COMPARE> (exactly 2 <DIV>) two alternatives
- <BEFORE-AFTER> (exactly 2 <DIV>) a transformation
- <PROS-CONS> (<PROS> and <CONS>) trade-offs
- <CYCLE> (3 or more <DIV>) a repeating process
- <ARROWS>, <ARROW-VERTICAL> (<DIV>) a flow of steps
- <TIMELINE> (<DIV>) dated events
- <PYRAMID>, <STAIRCASE> (<DIV>) levels or progression
- <TABLE> (<TR> with <TH> header cells in the first row and <TD> cells after)
- <CHART charttype="bar|pie|line|area|radar|scatter"> (<DATA> with <LABEL> and <VALUE>, or <X> and <Y> for scatter)

Inside a <DIV> use <H3> for the item title, <P> for text and <LI> for list entries.

Rules:
- Close every tag
- Vary the layout components and the image placement across slides
- Keep text short: at most 3 sentences per item
- Output only the markup, no commentary and no code fences`

// OutlineRequest describes a deck to plan.
type OutlineRequest struct {
	Prompt    string
	NumSlides int
	Language  string
	Reference string // optional extracted text of an uploaded document
}

// SlidesRequest describes a deck to write from an approved outline.
type SlidesRequest struct {
	Title    string
	Outline  []string
	Language string
	Tone     string
}

// OutlinePrompt builds the completion request for an outline.
func OutlinePrompt(r OutlineRequest) Request {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\n", strings.TrimSpace(r.Prompt))
	if r.NumSlides > 0 {
		fmt.Fprintf(&sb, "Number of slides: %d\n", r.NumSlides)
	}
	fmt.Fprintf(&sb, "Language: %s\n", orDefault(r.Language, "English"))
	if r.Reference != "" {
		sb.WriteString("\n---\nReference material:\n")
		sb.WriteString(r.Reference)
		sb.WriteString("\n---\n")
	}
	return Request{System: OutlineSystemPrompt, Prompt: sb.String(), MaxTokens: 2048}
}

// SlidesPrompt builds the completion request for the slide markup.
func SlidesPrompt(r SlidesRequest) Request {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s\n", strings.TrimSpace(r.Title))
	fmt.Fprintf(&sb, "Language: %s\n", orDefault(r.Language, "English"))
	fmt.Fprintf(&sb, "Tone: %s\n", orDefault(r.Tone, "professional"))
	fmt.Fprintf(&sb, "Slides: %d\n\nOutline:\n", len(r.Outline))
	for i, topic := range r.Outline {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, strings.TrimSpace(topic))
	}
	return Request{System: SlidesSystemPrompt, Prompt: sb.String(), MaxTokens: 8192}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
