package outline

import (
	"reflect"
	"strings"
	"testing"
)

func TestExtract_TitleAndHeadings(t *testing.T) {
	in := `<TITLE>The Future of Cities</TITLE>
# Urban growth
- Population trends
- Megacities

# Transport
- Transit
  - Light rail
- Cycling
`
	o := Extract(in)
	if o.Title != "The Future of Cities" {
		t.Errorf("expected title, got %q", o.Title)
	}
	if o.NumSlides() != 2 {
		t.Fatalf("expected 2 topics, got %d: %+v", o.NumSlides(), o.Topics)
	}
	if !reflect.DeepEqual(o.Titles(), []string{"Urban growth", "Transport"}) {
		t.Errorf("unexpected titles %v", o.Titles())
	}
	want := []string{"Transit", "Light rail", "Cycling"}
	if !reflect.DeepEqual(o.Topics[1].Points, want) {
		t.Errorf("expected points %v, got %v", want, o.Topics[1].Points)
	}
}

func TestExtract_CaseInsensitiveTitleMarker(t *testing.T) {
	o := Extract("<title>lower</Title>\n## One")
	if o.Title != "lower" {
		t.Errorf("expected title lower, got %q", o.Title)
	}
	if len(o.Topics) != 1 || o.Topics[0].Title != "One" {
		t.Errorf("unexpected topics %+v", o.Topics)
	}
}

func TestExtract_UnterminatedTitle(t *testing.T) {
	o := Extract("<TITLE>Half a ti")
	if o.Title != "Half a ti" {
		t.Errorf("expected partial title, got %q", o.Title)
	}
	if len(o.Topics) != 0 {
		t.Errorf("expected no topics, got %+v", o.Topics)
	}
}

func TestExtract_NoHeadings(t *testing.T) {
	o := Extract("<TITLE>T</TITLE>\n1. Intro\n2. Market size\n3. Next steps\n")
	want := []string{"Intro", "Market size", "Next steps"}
	if !reflect.DeepEqual(o.Titles(), want) {
		t.Errorf("expected %v, got %v", want, o.Titles())
	}
}

func TestExtract_PlainLines(t *testing.T) {
	o := Extract("First idea\nSecond idea\n\nThird idea")
	if o.Title != "" {
		t.Errorf("expected empty title, got %q", o.Title)
	}
	if o.NumSlides() != 3 {
		t.Errorf("expected 3 topics, got %v", o.Titles())
	}
}

func TestExtract_InlineFormatting(t *testing.T) {
	o := Extract("# The **bold** plan\n- a *quick* win")
	if o.Topics[0].Title != "The bold plan" {
		t.Errorf("expected emphasis stripped, got %q", o.Topics[0].Title)
	}
	if o.Topics[0].Points[0] != "a quick win" {
		t.Errorf("expected emphasis stripped in point, got %q", o.Topics[0].Points[0])
	}
}

func TestSplitTitle(t *testing.T) {
	tests := []struct {
		in, title, rest string
	}{
		{"no marker", "", "no marker"},
		{"<TITLE> Spaced </TITLE>body", "Spaced", "body"},
		{"pre<TITLE>x</TITLE>post", "x", "prepost"},
		{"<TITLE>open", "open", ""},
		{"<TITLE>İstanbul Tarihi</TITLE>\n# Giriş", "İstanbul Tarihi", "\n# Giriş"},
		{"İİİ<title>Ünite</Title>ß", "Ünite", "İİİß"},
		{"<TİTLE>x</TİTLE>", "", "<TİTLE>x</TİTLE>"},
	}
	for _, tt := range tests {
		title, rest := SplitTitle(tt.in)
		if title != tt.title || rest != tt.rest {
			t.Errorf("SplitTitle(%q) = %q, %q; want %q, %q", tt.in, title, rest, tt.title, tt.rest)
		}
	}
}

func TestExtract_NonASCIITitle(t *testing.T) {
	o := Extract("<TITLE>İstanbul Tarihi</TITLE>\n# Giriş\n# Sonuç\n")
	if o.Title != "İstanbul Tarihi" {
		t.Errorf("expected full title, got %q", o.Title)
	}
	if got := strings.Join(o.Titles(), "|"); got != "Giriş|Sonuç" {
		t.Errorf("unexpected topics %q", got)
	}
}

func TestOutline_Markdown(t *testing.T) {
	o := Outline{Topics: []Topic{{Title: "A", Points: []string{"x"}}, {Title: "B"}}}
	if got, want := o.Markdown(), "# A\n- x\n# B\n"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
