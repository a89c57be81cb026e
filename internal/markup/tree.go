package markup

import (
	"strings"

	"golang.org/x/net/html"
)

// Node is one element or text run of the parse tree.
type Node struct {
	Tag        Tag               // recognized tag, TagUnknown otherwise
	Name       string            // lower-cased tag name as written
	Attrs      map[string]string // lower-cased keys
	Children   []*Node
	Text       string // text runs only
	IsText     bool
	Unexpected bool // attached although the grammar does not allow it here
	Closed     bool // saw an explicit, implicit or self closer
	EndTag     bool // closed by its own end tag or self-closing
}

// Forest is the result of one parse pass over the accumulated text.
type Forest struct {
	Nodes []*Node
	// Clean is true when every tag was closed and no partial tag was held back.
	Clean bool
}

// Attr returns an attribute value by (case-insensitive) key.
func (n *Node) Attr(key string) (string, bool) {
	if n == nil || n.Attrs == nil {
		return "", false
	}
	v, ok := n.Attrs[strings.ToLower(key)]
	return v, ok
}

// AttrOr returns an attribute value or a fallback.
func (n *Node) AttrOr(key, fallback string) string {
	if v, ok := n.Attr(key); ok {
		return v
	}
	return fallback
}

// Elements returns the element children, skipping text runs.
func (n *Node) Elements() []*Node {
	var out []*Node
	for _, c := range n.Children {
		if !c.IsText {
			out = append(out, c)
		}
	}
	return out
}

// ElementsOf returns the element children with the given tag.
func (n *Node) ElementsOf(t Tag) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if !c.IsText && c.Tag == t {
			out = append(out, c)
		}
	}
	return out
}

// First returns the first element child with the given tag.
func (n *Node) First(t Tag) *Node {
	for _, c := range n.Children {
		if !c.IsText && c.Tag == t {
			return c
		}
	}
	return nil
}

// TextContent returns all descendant text with whitespace collapsed.
func (n *Node) TextContent() string {
	var sb strings.Builder
	var walk func(*Node)
	walk = func(n *Node) {
		if n.IsText {
			sb.WriteString(n.Text)
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
		// Block-level leaves separate words from their neighbours.
		if n.Tag != TagUnknown {
			sb.WriteByte(' ')
		}
	}
	walk(n)
	return collapse(sb.String())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

type builder struct {
	root  *Node
	stack []*Node
}

// Build parses the full accumulated markup text into a forest. It tolerates
// truncation at any byte, unclosed tags and mismatched closers, and never fails.
func Build(text string) (f Forest) {
	defer func() {
		if r := recover(); r != nil {
			f = Forest{Nodes: []*Node{{IsText: true, Text: text}}}
		}
	}()

	body, partial := splitPartialTag(text)
	b := &builder{root: &Node{Tag: TagRoot, Name: string(TagRoot)}}
	b.stack = []*Node{b.root}

	z := html.NewTokenizer(strings.NewReader(body))
	consumed := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		consumed += len(z.Raw())
		switch tt {
		case html.TextToken:
			b.text(string(z.Text()))
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tagName := string(name)
			attrs := make(map[string]string)
			for hasAttr {
				var k, v []byte
				k, v, hasAttr = z.TagAttr()
				attrs[string(k)] = string(v)
			}
			b.open(tagName, attrs, tt == html.SelfClosingTagToken)
		case html.EndTagToken:
			name, _ := z.TagName()
			b.close(string(name))
		}
	}
	if consumed < len(body) {
		partial = true
	}
	liftSiblings(b.root)

	return Forest{
		Nodes: b.root.Children,
		Clean: !partial && len(b.stack) == 1,
	}
}

// splitPartialTag holds back a trailing "<..." that has not been terminated by
// '>' yet, so a half-received tag is never rendered as text.
func splitPartialTag(text string) (string, bool) {
	i := strings.LastIndexByte(text, '<')
	if i < 0 || strings.IndexByte(text[i:], '>') >= 0 {
		return text, false
	}
	if i+1 < len(text) {
		c := text[i+1]
		isTagStart := c == '/' || c == '!' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
		if !isTagStart {
			return text, false
		}
	}
	return text[:i], true
}

func (b *builder) top() *Node {
	return b.stack[len(b.stack)-1]
}

// popTo closes everything above stack index i.
func (b *builder) popTo(i int) {
	for _, n := range b.stack[i+1:] {
		n.Closed = true
	}
	b.stack = b.stack[:i+1]
}

func (b *builder) text(s string) {
	if s == "" {
		return
	}
	top := b.top()
	if k := len(top.Children); k > 0 && top.Children[k-1].IsText {
		top.Children[k-1].Text += s
		return
	}
	top.Children = append(top.Children, &Node{IsText: true, Text: s})
}

func (b *builder) open(name string, attrs map[string]string, selfClosing bool) {
	tag := Lookup(name)
	parent := b.placeFor(tag)
	n := &Node{
		Tag:        tag,
		Name:       name,
		Attrs:      attrs,
		Unexpected: !Allows(parent.Tag, tag),
	}
	parent.Children = append(parent.Children, n)
	if selfClosing || Spec(tag).Void {
		n.Closed = true
		n.EndTag = true
		return
	}
	b.stack = append(b.stack, n)
}

// placeFor picks the parent for a new element. A new SECTION or layout ends
// whatever is still open below the nearest element that accepts it. A leaf
// left open ends when its parent accepts the new element, so a stray <P>
// inside a table cell does not tear down the table. A container never opens
// inside a leaf. Anything else attaches to the current top and is flagged
// Unexpected by open.
func (b *builder) placeFor(tag Tag) *Node {
	top := b.top()
	if Allows(top.Tag, tag) {
		return top
	}
	if Spec(top.Tag).Kind == KindLeaf && len(b.stack) > 1 {
		i := len(b.stack) - 2
		if Allows(b.stack[i].Tag, tag) {
			b.popTo(i)
			return b.stack[i]
		}
	}
	switch Spec(tag).Kind {
	case KindStructural, KindLayout:
		for i := len(b.stack) - 2; i >= 0; i-- {
			if Allows(b.stack[i].Tag, tag) {
				b.popTo(i)
				return b.stack[i]
			}
		}
	case KindContainer:
		i := len(b.stack) - 1
		for i > 0 && Spec(b.stack[i].Tag).Kind == KindLeaf {
			i--
		}
		b.popTo(i)
		return b.stack[i]
	}
	return top
}

// liftSiblings moves a container that was opened inside a sibling container
// up beside it, together with everything after it, when the outer one never
// saw its own end tag. <DIV>a<DIV>b</DIV></BULLETS> gives two items while
// <DIV>a<DIV>b</DIV></DIV> stays nested.
func liftSiblings(parent *Node) {
	out := make([]*Node, 0, len(parent.Children))
	queue := parent.Children
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		out = append(out, c)
		if c.IsText || c.EndTag || Spec(c.Tag).Kind != KindContainer {
			continue
		}
		for i, d := range c.Children {
			if d.IsText || !d.Unexpected || Spec(d.Tag).Kind != KindContainer || !Allows(parent.Tag, d.Tag) {
				continue
			}
			rest := c.Children[i:]
			c.Children = c.Children[:i:i]
			for _, r := range rest {
				if !r.IsText {
					r.Unexpected = !Allows(parent.Tag, r.Tag)
				}
			}
			queue = append(append([]*Node{}, rest...), queue...)
			break
		}
	}
	parent.Children = out
	for _, c := range out {
		if !c.IsText {
			liftSiblings(c)
		}
	}
}

// close pops to the nearest open element with the same name. A closer that
// matches nothing on the stack is dropped.
func (b *builder) close(name string) {
	for i := len(b.stack) - 1; i >= 1; i-- {
		if b.stack[i].Name == name {
			b.stack[i].EndTag = true
			b.popTo(i - 1)
			return
		}
	}
}
