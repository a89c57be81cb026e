package layout

import (
	"math"
	"strconv"
	"strings"

	"github.com/dgallion1/deckgen/internal/deck"
	"github.com/dgallion1/deckgen/internal/markup"
)

// table converts TR rows. The first row is a header row only when every cell
// in it is a TH. Ragged rows are kept as written.
func (m *mapper) table(n *markup.Node) deck.Block {
	t := &deck.Table{Rows: []deck.Row{}}
	for _, tr := range descendants(n, markup.TagTR) {
		var cells []string
		allTH := true
		for _, c := range tr.Elements() {
			switch c.Tag {
			case markup.TagTH:
				cells = append(cells, c.TextContent())
			case markup.TagTD:
				cells = append(cells, c.TextContent())
				allTH = false
			}
		}
		if len(cells) == 0 {
			continue
		}
		t.Rows = append(t.Rows, deck.Row{Header: len(t.Rows) == 0 && allTH, Cells: cells})
	}
	return deck.Block{Kind: deck.KindTable, Table: t}
}

// chart converts DATA points according to the chart type. An invalid or
// missing charttype renders as a bar chart.
func (m *mapper) chart(n *markup.Node) deck.Block {
	ct, _ := markup.ParseChartType(n.AttrOr("charttype", n.AttrOr("type", "")))
	xy := markup.IsXY(ct)
	c := &deck.Chart{Type: ct, Points: []deck.ChartPoint{}}
	for _, d := range descendants(n, markup.TagData) {
		if len(d.Elements()) == 0 {
			continue
		}
		if xy {
			c.Points = append(c.Points, deck.ChartPoint{
				XY: true,
				X:  parseNumber(childText(d, markup.TagX)),
				Y:  parseNumber(childText(d, markup.TagY)),
			})
			continue
		}
		c.Points = append(c.Points, deck.ChartPoint{
			Label: childText(d, markup.TagLabel),
			Value: parseNumber(childText(d, markup.TagValue)),
		})
	}
	return deck.Block{Kind: deck.KindChart, Chart: c}
}

// descendants finds elements with tag t under n, looking through
// unrecognized wrappers but not into matches themselves.
func descendants(n *markup.Node, t markup.Tag) []*markup.Node {
	var out []*markup.Node
	for _, c := range n.Elements() {
		switch c.Tag {
		case t:
			out = append(out, c)
		case markup.TagUnknown:
			out = append(out, descendants(c, t)...)
		}
	}
	return out
}

func childText(n *markup.Node, t markup.Tag) string {
	if c := n.First(t); c != nil {
		return c.TextContent()
	}
	return ""
}

// parseNumber reads a chart value leniently: thousands separators, a leading
// currency sign and a trailing percent are ignored. Anything unparseable is 0.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(",", "", "_", "", " ", "").Replace(s)
	s = strings.TrimLeft(s, "$€£¥")
	s = strings.TrimSuffix(s, "%")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
