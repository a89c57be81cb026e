package markup

import (
	"strings"

	"github.com/dgallion1/deckgen/internal/deck"
)

// Tag is a recognized markup tag. Names are matched case-insensitively.
type Tag string

const (
	TagUnknown Tag = ""
	TagRoot    Tag = "#root"

	TagPresentation Tag = "presentation"
	TagSection      Tag = "section"

	TagColumns       Tag = "columns"
	TagBullets       Tag = "bullets"
	TagIcons         Tag = "icons"
	TagCycle         Tag = "cycle"
	TagArrows        Tag = "arrows"
	TagArrowVertical Tag = "arrow-vertical"
	TagTimeline      Tag = "timeline"
	TagPyramid       Tag = "pyramid"
	TagStaircase     Tag = "staircase"
	TagBoxes         Tag = "boxes"
	TagCompare       Tag = "compare"
	TagBeforeAfter   Tag = "before-after"
	TagProsCons      Tag = "pros-cons"
	TagTable         Tag = "table"
	TagChart         Tag = "chart"

	TagDiv  Tag = "div"
	TagPros Tag = "pros"
	TagCons Tag = "cons"
	TagTR   Tag = "tr"
	TagData Tag = "data"

	TagH1    Tag = "h1"
	TagH2    Tag = "h2"
	TagH3    Tag = "h3"
	TagH4    Tag = "h4"
	TagH5    Tag = "h5"
	TagH6    Tag = "h6"
	TagP     Tag = "p"
	TagLI    Tag = "li"
	TagIcon  Tag = "icon"
	TagImg   Tag = "img"
	TagTH    Tag = "th"
	TagTD    Tag = "td"
	TagLabel Tag = "label"
	TagValue Tag = "value"
	TagX     Tag = "x"
	TagY     Tag = "y"
)

// Kind classifies a tag's role in the grammar.
type Kind int

const (
	KindUnknown Kind = iota
	KindStructural
	KindLayout
	KindContainer
	KindLeaf
)

// Shape selects the converter used for a layout tag.
type Shape int

const (
	ShapeNone Shape = iota
	ShapeList
	ShapeSequence
	ShapeTable
	ShapeChart
)

// Constraint describes the expected arity and attributes of a layout.
type Constraint struct {
	ItemTags     []Tag
	MinItems     int
	MaxItems     int // 0 means unbounded
	RequiredAttr string
	AttrValues   []string
	UniformCells bool
}

// TagSpec is the static grammar entry for one tag.
type TagSpec struct {
	Tag        Tag
	Kind       Kind
	Void       bool
	Children   []Tag
	Parents    []Tag // inverse of Children, in registry order
	Layout     string
	Shape      Shape
	Constraint Constraint
}

var (
	headingTags = []Tag{TagH1, TagH2, TagH3, TagH4, TagH5, TagH6}
	flowTags    = append(append([]Tag{}, headingTags...), TagP, TagLI, TagIcon, TagImg)
	layoutTags  = []Tag{
		TagColumns, TagBullets, TagIcons, TagCycle, TagArrows, TagArrowVertical, TagTimeline,
		TagPyramid, TagStaircase, TagBoxes, TagCompare, TagBeforeAfter, TagProsCons, TagTable, TagChart,
	}
	itemChildren = append([]Tag{}, flowTags...)
)

func listLayout(tag Tag, minItems, maxItems int, items ...Tag) TagSpec {
	if len(items) == 0 {
		items = []Tag{TagDiv}
	}
	children := append(append([]Tag{}, items...), flowTags...)
	return TagSpec{
		Tag: tag, Kind: KindLayout, Children: children, Layout: string(tag), Shape: ShapeList,
		Constraint: Constraint{ItemTags: items, MinItems: minItems, MaxItems: maxItems},
	}
}

func sequenceLayout(tag Tag, minItems, maxItems int) TagSpec {
	s := listLayout(tag, minItems, maxItems)
	s.Shape = ShapeSequence
	return s
}

var registry = func() map[Tag]TagSpec {
	specs := []TagSpec{
		{Tag: TagRoot, Kind: KindStructural, Children: []Tag{TagPresentation, TagSection}},
		{Tag: TagPresentation, Kind: KindStructural, Children: []Tag{TagSection}},
		{Tag: TagSection, Kind: KindStructural, Children: append(append([]Tag{}, layoutTags...), flowTags...)},

		listLayout(TagBullets, 1, 0),
		listLayout(TagIcons, 1, 0),
		listLayout(TagColumns, 2, 0),
		listLayout(TagBoxes, 1, 0),
		listLayout(TagCompare, 2, 2),
		listLayout(TagBeforeAfter, 2, 2),
		listLayout(TagProsCons, 2, 2, TagPros, TagCons),
		sequenceLayout(TagCycle, 3, 0),
		sequenceLayout(TagArrows, 2, 0),
		sequenceLayout(TagArrowVertical, 2, 0),
		sequenceLayout(TagTimeline, 2, 0),
		sequenceLayout(TagPyramid, 2, 0),
		sequenceLayout(TagStaircase, 2, 0),
		{
			Tag: TagTable, Kind: KindLayout, Children: []Tag{TagTR}, Layout: string(TagTable), Shape: ShapeTable,
			Constraint: Constraint{ItemTags: []Tag{TagTR}, MinItems: 1, UniformCells: true},
		},
		{
			Tag: TagChart, Kind: KindLayout, Children: []Tag{TagData}, Layout: string(TagChart), Shape: ShapeChart,
			Constraint: Constraint{
				ItemTags: []Tag{TagData}, MinItems: 1, RequiredAttr: "charttype",
				AttrValues: []string{"bar", "pie", "line", "area", "radar", "scatter"},
			},
		},

		{Tag: TagDiv, Kind: KindContainer, Children: itemChildren},
		{Tag: TagPros, Kind: KindContainer, Children: itemChildren},
		{Tag: TagCons, Kind: KindContainer, Children: itemChildren},
		{Tag: TagTR, Kind: KindContainer, Children: []Tag{TagTH, TagTD}},
		{Tag: TagData, Kind: KindContainer, Children: []Tag{TagLabel, TagValue, TagX, TagY}},

		{Tag: TagP, Kind: KindLeaf},
		{Tag: TagLI, Kind: KindLeaf},
		{Tag: TagIcon, Kind: KindLeaf, Void: true},
		{Tag: TagImg, Kind: KindLeaf, Void: true},
		{Tag: TagTH, Kind: KindLeaf},
		{Tag: TagTD, Kind: KindLeaf},
		{Tag: TagLabel, Kind: KindLeaf},
		{Tag: TagValue, Kind: KindLeaf},
		{Tag: TagX, Kind: KindLeaf},
		{Tag: TagY, Kind: KindLeaf},
	}
	for _, h := range headingTags {
		specs = append(specs, TagSpec{Tag: h, Kind: KindLeaf})
	}
	m := make(map[Tag]TagSpec, len(specs))
	for _, s := range specs {
		m[s.Tag] = s
	}
	for _, p := range specs {
		for _, c := range p.Children {
			child := m[c]
			child.Parents = append(child.Parents, p.Tag)
			m[c] = child
		}
	}
	return m
}()

// Lookup maps a raw tag name to a recognized Tag, or TagUnknown.
func Lookup(name string) Tag {
	t := Tag(strings.ToLower(strings.TrimSpace(name)))
	if t == TagRoot {
		return TagUnknown
	}
	if _, ok := registry[t]; ok {
		return t
	}
	return TagUnknown
}

// Spec returns the grammar entry for a tag. Unknown tags get a zero spec of KindUnknown.
func Spec(t Tag) TagSpec {
	if s, ok := registry[t]; ok {
		return s
	}
	return TagSpec{Tag: TagUnknown, Kind: KindUnknown}
}

// Parents returns the tags a tag may appear directly under. TagRoot stands
// for the top level of the response.
func Parents(t Tag) []Tag {
	return Spec(t).Parents
}

// Allows reports whether child may appear directly under parent. Unknown tags
// (inline formatting and the like) are tolerated under any non-void element.
func Allows(parent, child Tag) bool {
	ps := Spec(parent)
	if ps.Void {
		return false
	}
	if child == TagUnknown {
		return parent != TagRoot
	}
	if parent == TagUnknown {
		return Spec(child).Kind == KindLeaf || child == TagDiv
	}
	for _, c := range ps.Children {
		if c == child {
			return true
		}
	}
	return false
}

// LayoutOf reports the layout identifier and shape for a layout tag.
func LayoutOf(t Tag) (string, Shape, bool) {
	s := Spec(t)
	if s.Kind != KindLayout {
		return "", ShapeNone, false
	}
	return s.Layout, s.Shape, true
}

// IsHeading reports whether t is one of h1..h6 and returns its level.
func IsHeading(t Tag) (int, bool) {
	for i, h := range headingTags {
		if h == t {
			return i + 1, true
		}
	}
	return 0, false
}

// ParsePlacement validates a section layout attribute. Anything unrecognized
// falls back to vertical.
func ParsePlacement(s string) deck.Placement {
	switch deck.Placement(strings.ToLower(strings.TrimSpace(s))) {
	case deck.PlacementLeft:
		return deck.PlacementLeft
	case deck.PlacementRight:
		return deck.PlacementRight
	default:
		return deck.PlacementVertical
	}
}

// ParseChartType validates a charttype attribute.
func ParseChartType(s string) (deck.ChartType, bool) {
	switch ct := deck.ChartType(strings.ToLower(strings.TrimSpace(s))); ct {
	case deck.ChartBar, deck.ChartPie, deck.ChartLine, deck.ChartArea, deck.ChartRadar, deck.ChartScatter:
		return ct, true
	}
	return deck.ChartBar, false
}

// IsXY reports whether a chart type uses {x,y} points instead of {label,value}.
func IsXY(ct deck.ChartType) bool {
	return ct == deck.ChartScatter
}
