package markup

import (
	"strings"

	"github.com/dgallion1/deckgen/internal/deck"
)

// Section is the raw content of one slide.
type Section struct {
	Index       int
	Placement   deck.Placement
	Attrs       map[string]string
	Body        []*Node
	Implicit    bool // folded from content outside any SECTION tag
	Provisional bool // last section of a still-streaming response
}

// Segment splits the top-level forest into sections. Non-trivial content
// outside SECTION tags is folded into implicit sections rather than dropped.
// When final is false the last section is marked provisional.
func Segment(f Forest, final bool) []Section {
	var sections []Section
	var loose []*Node

	flush := func() {
		if len(loose) == 0 {
			return
		}
		if hasContent(loose) {
			sections = append(sections, Section{
				Placement: deck.PlacementVertical,
				Body:      loose,
				Implicit:  true,
			})
		}
		loose = nil
	}

	var visit func(nodes []*Node)
	visit = func(nodes []*Node) {
		for _, n := range nodes {
			switch {
			case !n.IsText && n.Tag == TagPresentation:
				visit(n.Children)
			case !n.IsText && n.Tag == TagSection:
				flush()
				sections = append(sections, Section{
					Placement: ParsePlacement(n.AttrOr("layout", "")),
					Attrs:     n.Attrs,
					Body:      n.Children,
				})
			default:
				loose = append(loose, n)
			}
		}
	}
	visit(f.Nodes)
	flush()

	for i := range sections {
		sections[i].Index = i
	}
	if !final && len(sections) > 0 {
		sections[len(sections)-1].Provisional = true
	}
	return sections
}

func hasContent(nodes []*Node) bool {
	for _, n := range nodes {
		if n.IsText {
			if strings.TrimSpace(n.Text) != "" {
				return true
			}
			continue
		}
		if n.Tag == TagImg || n.Tag == TagIcon {
			return true
		}
		if hasContent(n.Children) {
			return true
		}
	}
	return false
}
