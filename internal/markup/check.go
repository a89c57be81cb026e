package markup

import (
	"fmt"
	"slices"
)

// Violation is a non-fatal grammar diagnostic. Mapping continues regardless.
type Violation struct {
	Tag     Tag
	Message string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Tag, v.Message)
}

// Check evaluates the shape constraints of a layout node.
func Check(n *Node) []Violation {
	if n == nil || n.IsText {
		return nil
	}
	spec := Spec(n.Tag)
	if spec.Kind != KindLayout {
		return nil
	}
	c := spec.Constraint
	var out []Violation
	add := func(format string, args ...any) {
		out = append(out, Violation{Tag: n.Tag, Message: fmt.Sprintf(format, args...)})
	}

	items := 0
	var cellCounts []int
	for _, child := range n.Elements() {
		if !slices.Contains(c.ItemTags, child.Tag) {
			continue
		}
		items++
		if c.UniformCells {
			cells := 0
			for _, cell := range child.Elements() {
				if cell.Tag == TagTH || cell.Tag == TagTD {
					cells++
				}
			}
			cellCounts = append(cellCounts, cells)
		}
	}
	if items < c.MinItems {
		add("expected at least %d %v children, got %d", c.MinItems, c.ItemTags, items)
	}
	if c.MaxItems > 0 && items > c.MaxItems {
		add("expected at most %d %v children, got %d", c.MaxItems, c.ItemTags, items)
	}
	for i := 1; i < len(cellCounts); i++ {
		if cellCounts[i] != cellCounts[0] {
			add("row %d has %d cells, first row has %d", i+1, cellCounts[i], cellCounts[0])
		}
	}

	if c.RequiredAttr != "" {
		v, ok := n.Attr(c.RequiredAttr)
		switch {
		case !ok:
			add("missing %s attribute", c.RequiredAttr)
		case len(c.AttrValues) > 0 && !slices.Contains(c.AttrValues, normalize(v)):
			add("invalid %s %q", c.RequiredAttr, v)
		}
	}

	if n.Tag == TagChart {
		ct, _ := ParseChartType(n.AttrOr("charttype", ""))
		for _, data := range n.ElementsOf(TagData) {
			hasXY := data.First(TagX) != nil || data.First(TagY) != nil
			hasLV := data.First(TagLabel) != nil || data.First(TagValue) != nil
			if IsXY(ct) && hasLV && !hasXY {
				add("scatter chart data point uses label/value")
			}
			if !IsXY(ct) && hasXY && !hasLV {
				add("%s chart data point uses x/y", ct)
			}
		}
	}
	return out
}
