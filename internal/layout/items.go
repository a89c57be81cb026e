package layout

import (
	"github.com/dgallion1/deckgen/internal/deck"
	"github.com/dgallion1/deckgen/internal/markup"
)

func itemKind(layout string) deck.BlockKind {
	switch markup.Tag(layout) {
	case markup.TagBullets:
		return deck.KindBulletedItem
	case markup.TagIcons:
		return deck.KindIconItem
	}
	return deck.KindItem
}

// items turns the direct children of a list-like or sequence layout into one
// item block per container. Content written directly under the layout without
// a container is grouped: a heading starts a new item once the current one
// already has text, an icon starts one once the current one has an icon.
func (m *mapper) items(n *markup.Node, layout string) []deck.Block {
	kind := itemKind(layout)
	var out []deck.Block
	var cur *deck.Block

	flush := func() {
		if cur != nil {
			out = appendItem(out, *cur)
			cur = nil
		}
	}
	current := func() *deck.Block {
		if cur == nil {
			cur = &deck.Block{Kind: kind}
		}
		return cur
	}

	for _, c := range n.Children {
		switch {
		case c.IsText:
			if t := clean(c.Text); t != "" {
				b := current()
				b.Children = append(b.Children, paragraph(t))
			}
		case isItemContainer(c):
			flush()
			item := deck.Block{Kind: kind, Group: group(c)}
			m.fill(&item, c)
			out = appendItem(out, item)
		case c.Tag == markup.TagIcon:
			if cur != nil && cur.Icon != "" {
				flush()
			}
			current().Icon = iconQuery(c)
		default:
			if _, ok := markup.IsHeading(c.Tag); ok && cur != nil && len(cur.Children) > 0 {
				flush()
			}
			b := current()
			m.fillOne(b, c)
		}
	}
	flush()
	return out
}

// fallbackItems folds arbitrary content into bulleted items: containers
// become one item each, unrecognized wrappers contribute their children,
// consecutive loose text and leaves share one item.
func (m *mapper) fallbackItems(nodes []*markup.Node) []deck.Block {
	var out []deck.Block
	var cur *deck.Block
	flush := func() {
		if cur != nil {
			out = appendItem(out, *cur)
			cur = nil
		}
	}
	for _, n := range nodes {
		switch {
		case n.IsText:
			if t := clean(n.Text); t != "" {
				if cur == nil {
					cur = &deck.Block{Kind: deck.KindBulletedItem}
				}
				cur.Children = append(cur.Children, paragraph(t))
			}
		case n.Tag == markup.TagUnknown && len(n.Elements()) > 0:
			flush()
			if isLayoutLike(n) {
				m.violate(markup.TagUnknown, "unrecognized layout <%s> rendered as bullets", n.Name)
			}
			out = append(out, m.fallbackItems(n.Children)...)
		case isItemContainer(n) || n.Tag == markup.TagP || n.Tag == markup.TagLI:
			flush()
			item := deck.Block{Kind: deck.KindBulletedItem, Group: group(n)}
			if n.Tag == markup.TagP || n.Tag == markup.TagLI {
				if t := n.TextContent(); t != "" {
					item.Children = []deck.Block{paragraph(t)}
				}
			} else {
				m.fill(&item, n)
			}
			out = appendItem(out, item)
		default:
			if cur == nil {
				cur = &deck.Block{Kind: deck.KindBulletedItem}
			}
			m.fillOne(cur, n)
		}
	}
	flush()
	return out
}

// fill adds the content of a container node to an item as sub-blocks.
func (m *mapper) fill(b *deck.Block, n *markup.Node) {
	for _, c := range n.Children {
		if c.IsText {
			if t := clean(c.Text); t != "" {
				b.Children = append(b.Children, paragraph(t))
			}
			continue
		}
		m.fillOne(b, c)
	}
	if b.Icon != "" && b.Kind == deck.KindBulletedItem {
		b.Kind = deck.KindIconItem
	}
}

func (m *mapper) fillOne(b *deck.Block, c *markup.Node) {
	if level, ok := markup.IsHeading(c.Tag); ok {
		if t := c.TextContent(); t != "" {
			b.Children = append(b.Children, deck.Block{Kind: deck.KindHeading, Level: level, Text: t})
		}
		return
	}
	switch c.Tag {
	case markup.TagP:
		if t := c.TextContent(); t != "" {
			b.Children = append(b.Children, paragraph(t))
		}
	case markup.TagLI:
		if t := c.TextContent(); t != "" {
			b.Children = append(b.Children, deck.Block{Kind: deck.KindListItem, Text: t})
		}
	case markup.TagIcon:
		if b.Icon == "" {
			b.Icon = iconQuery(c)
		}
	case markup.TagImg:
		if q := imageQuery(c); q != "" {
			b.Children = append(b.Children, deck.Block{Kind: deck.KindImage, Image: &deck.Image{Query: q}})
		}
	case markup.TagUnknown, markup.TagDiv, markup.TagPros, markup.TagCons:
		if len(c.Elements()) == 0 {
			if t := c.TextContent(); t != "" {
				b.Children = append(b.Children, paragraph(t))
			}
			return
		}
		m.fill(b, c)
	default:
		if t := c.TextContent(); t != "" {
			b.Children = append(b.Children, paragraph(t))
		}
	}
}

func isItemContainer(n *markup.Node) bool {
	switch n.Tag {
	case markup.TagDiv, markup.TagPros, markup.TagCons:
		return true
	case markup.TagUnknown:
		return len(n.Elements()) > 0
	}
	return false
}

// isLayoutLike reports whether an unrecognized element wraps item containers,
// i.e. looks like a layout tag the grammar does not know.
func isLayoutLike(n *markup.Node) bool {
	for _, c := range n.Elements() {
		if c.Tag == markup.TagDiv {
			return true
		}
	}
	return false
}

func group(n *markup.Node) string {
	switch n.Tag {
	case markup.TagPros, markup.TagCons:
		return string(n.Tag)
	}
	return ""
}

// appendItem drops items that carry no content yet (e.g. a DIV that was just
// opened in the stream).
func appendItem(out []deck.Block, b deck.Block) []deck.Block {
	if len(b.Children) == 0 && b.Icon == "" {
		return out
	}
	if b.Kind == deck.KindBulletedItem && b.Icon != "" {
		b.Kind = deck.KindIconItem
	}
	return append(out, b)
}
