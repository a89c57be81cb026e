package markup

import (
	"strings"
	"testing"

	"github.com/dgallion1/deckgen/internal/deck"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name string
		want Tag
	}{
		{"SECTION", TagSection},
		{"section", TagSection},
		{" Bullets ", TagBullets},
		{"ARROW-VERTICAL", TagArrowVertical},
		{"PROS-CONS", TagProsCons},
		{"blink", TagUnknown},
		{"#root", TagUnknown},
	}
	for _, tt := range tests {
		if got := Lookup(tt.name); got != tt.want {
			t.Errorf("Lookup(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestAllows(t *testing.T) {
	tests := []struct {
		parent, child Tag
		want          bool
	}{
		{TagRoot, TagSection, true},
		{TagRoot, TagPresentation, true},
		{TagPresentation, TagSection, true},
		{TagSection, TagBullets, true},
		{TagSection, TagSection, false},
		{TagBullets, TagDiv, true},
		{TagDiv, TagDiv, false},
		{TagProsCons, TagPros, true},
		{TagTable, TagTR, true},
		{TagTR, TagTD, true},
		{TagChart, TagData, true},
		{TagData, TagLabel, true},
		{TagImg, TagP, false},
		{TagP, TagUnknown, true},
		{TagRoot, TagUnknown, false},
		{TagUnknown, TagDiv, true},
		{TagUnknown, TagSection, false},
	}
	for _, tt := range tests {
		if got := Allows(tt.parent, tt.child); got != tt.want {
			t.Errorf("Allows(%q, %q) = %v, want %v", tt.parent, tt.child, got, tt.want)
		}
	}
}

func TestParents(t *testing.T) {
	tests := []struct {
		tag  Tag
		want []Tag
	}{
		{TagTR, []Tag{TagTable}},
		{TagData, []Tag{TagChart}},
		{TagTH, []Tag{TagTR}},
		{TagPresentation, []Tag{TagRoot}},
		{TagSection, []Tag{TagRoot, TagPresentation}},
		{TagPros, []Tag{TagProsCons}},
		{TagRoot, nil},
		{TagUnknown, nil},
	}
	for _, tt := range tests {
		got := Parents(tt.tag)
		if len(got) != len(tt.want) {
			t.Errorf("Parents(%q) = %v, want %v", tt.tag, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Parents(%q) = %v, want %v", tt.tag, got, tt.want)
				break
			}
		}
	}

	// Every parent listed must accept the tag as a child.
	for tag, spec := range registry {
		for _, p := range spec.Parents {
			if !Allows(p, tag) {
				t.Errorf("%q lists parent %q which does not allow it", tag, p)
			}
		}
		for _, c := range spec.Children {
			found := false
			for _, p := range Parents(c) {
				found = found || p == tag
			}
			if !found {
				t.Errorf("%q allows %q but is missing from its parents", tag, c)
			}
		}
	}
}

func TestLayoutOf(t *testing.T) {
	if name, shape, ok := LayoutOf(TagTimeline); !ok || name != "timeline" || shape != ShapeSequence {
		t.Errorf("unexpected timeline layout %q %v %v", name, shape, ok)
	}
	if _, shape, ok := LayoutOf(TagTable); !ok || shape != ShapeTable {
		t.Errorf("expected table shape, got %v", shape)
	}
	if _, _, ok := LayoutOf(TagDiv); ok {
		t.Error("DIV should not be a layout")
	}
}

func TestParsePlacement(t *testing.T) {
	tests := map[string]deck.Placement{
		"left":     deck.PlacementLeft,
		" RIGHT ":  deck.PlacementRight,
		"vertical": deck.PlacementVertical,
		"diagonal": deck.PlacementVertical,
		"":         deck.PlacementVertical,
	}
	for in, want := range tests {
		if got := ParsePlacement(in); got != want {
			t.Errorf("ParsePlacement(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseChartType(t *testing.T) {
	if ct, ok := ParseChartType("Scatter"); !ok || ct != deck.ChartScatter {
		t.Errorf("expected scatter, got %q %v", ct, ok)
	}
	if ct, ok := ParseChartType("donut"); ok || ct != deck.ChartBar {
		t.Errorf("expected bar fallback, got %q %v", ct, ok)
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string // substring of a violation, empty for none
	}{
		{"valid bullets", `<BULLETS><DIV>a</DIV></BULLETS>`, ""},
		{"empty bullets", `<BULLETS></BULLETS>`, "at least 1"},
		{"compare needs two", `<COMPARE><DIV>a</DIV></COMPARE>`, "at least 2"},
		{"compare max two", `<COMPARE><DIV>a</DIV><DIV>b</DIV><DIV>c</DIV></COMPARE>`, "at most 2"},
		{"cycle needs three", `<CYCLE><DIV>a</DIV><DIV>b</DIV></CYCLE>`, "at least 3"},
		{"ragged table", `<TABLE><TR><TD>a</TD><TD>b</TD></TR><TR><TD>c</TD></TR></TABLE>`, "row 2 has 1 cells"},
		{"chart missing type", `<CHART><DATA><LABEL>a</LABEL><VALUE>1</VALUE></DATA></CHART>`, "missing charttype"},
		{"chart bad type", `<CHART charttype="donut"><DATA><LABEL>a</LABEL></DATA></CHART>`, "invalid charttype"},
		{"scatter with labels", `<CHART charttype="scatter"><DATA><LABEL>a</LABEL><VALUE>1</VALUE></DATA></CHART>`, "uses label/value"},
		{"bar with xy", `<CHART charttype="bar"><DATA><X>1</X><Y>2</Y></DATA></CHART>`, "uses x/y"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Build(tt.input)
			vs := Check(f.Nodes[0])
			if tt.want == "" {
				if len(vs) != 0 {
					t.Errorf("expected no violations, got %v", vs)
				}
				return
			}
			for _, v := range vs {
				if strings.Contains(v.Message, tt.want) {
					return
				}
			}
			t.Errorf("expected a violation containing %q, got %v", tt.want, vs)
		})
	}
}

func TestSegment_SectionsAndPlacement(t *testing.T) {
	f := Build(`<PRESENTATION><SECTION layout="right"><P>a</P></SECTION>
<SECTION><P>b</P></SECTION></PRESENTATION>`)
	secs := Segment(f, true)
	if len(secs) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(secs))
	}
	if secs[0].Placement != deck.PlacementRight || secs[1].Placement != deck.PlacementVertical {
		t.Errorf("unexpected placements %q %q", secs[0].Placement, secs[1].Placement)
	}
	if secs[0].Index != 0 || secs[1].Index != 1 {
		t.Error("expected sequential indexes")
	}
	for _, s := range secs {
		if s.Provisional || s.Implicit {
			t.Errorf("section %d: unexpected flags %+v", s.Index, s)
		}
	}
}

func TestSegment_LastProvisionalWhileStreaming(t *testing.T) {
	secs := Segment(Build(`<SECTION><P>a</P></SECTION><SECTION><P>b`), false)
	if len(secs) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(secs))
	}
	if secs[0].Provisional || !secs[1].Provisional {
		t.Error("expected only the last section provisional")
	}
}

func TestSegment_LooseContent(t *testing.T) {
	secs := Segment(Build("stray words\n<SECTION><P>a</P></SECTION>\n \n<P>trailing</P>"), true)
	if len(secs) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(secs))
	}
	if !secs[0].Implicit || secs[1].Implicit || !secs[2].Implicit {
		t.Errorf("unexpected implicit flags: %v %v %v", secs[0].Implicit, secs[1].Implicit, secs[2].Implicit)
	}
}

func TestSegment_WhitespaceOnly(t *testing.T) {
	if secs := Segment(Build("  \n\t "), true); len(secs) != 0 {
		t.Errorf("expected no sections, got %d", len(secs))
	}
}
