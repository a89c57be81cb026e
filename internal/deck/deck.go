package deck

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// BlockKind identifies the type of a content block.
type BlockKind string

const (
	KindHeading      BlockKind = "heading"
	KindParagraph    BlockKind = "paragraph"
	KindBulletedItem BlockKind = "bulleted-item"
	KindIconItem     BlockKind = "icon-item"
	KindItem         BlockKind = "item"
	KindListItem     BlockKind = "list-item"
	KindTable        BlockKind = "table"
	KindChart        BlockKind = "chart"
	KindImage        BlockKind = "image"
)

// Placement anchors the root image of a slide.
type Placement string

const (
	PlacementLeft     Placement = "left"
	PlacementRight    Placement = "right"
	PlacementVertical Placement = "vertical"
)

// Slide defaults.
const (
	DefaultWidth     = "M"
	DefaultAlignment = "start"
)

// Slide is one rendered section of a presentation.
type Slide struct {
	ID          string     `json:"id"`
	Layout      string     `json:"layout"`
	Placement   Placement  `json:"placement"`
	Blocks      []Block    `json:"blocks"`
	RootImage   *RootImage `json:"rootImage,omitempty"`
	Width       string     `json:"width"`
	Alignment   string     `json:"alignment"`
	Provisional bool       `json:"provisional,omitempty"`
}

// Block is a positional content element. Only the fields relevant to Kind are set.
type Block struct {
	Kind     BlockKind `json:"kind"`
	Level    int       `json:"level,omitempty"`
	Text     string    `json:"text,omitempty"`
	Icon     string    `json:"icon,omitempty"`
	Group    string    `json:"group,omitempty"`
	Children []Block   `json:"children,omitempty"`
	Table    *Table    `json:"table,omitempty"`
	Chart    *Chart    `json:"chart,omitempty"`
	Image    *Image    `json:"image,omitempty"`
}

// Table holds rows of cell strings. Rows may be ragged.
type Table struct {
	Rows []Row `json:"rows"`
}

type Row struct {
	Header bool     `json:"header,omitempty"`
	Cells  []string `json:"cells"`
}

// Image is an inline image placeholder inside a layout item.
type Image struct {
	Query string `json:"query"`
	URL   string `json:"url,omitempty"`
}

// RootImage is the single top-level image of a slide. URL is filled in
// asynchronously by an image resolver.
type RootImage struct {
	Query     string    `json:"query"`
	Placement Placement `json:"placement"`
	URL       string    `json:"url,omitempty"`
}

// Presentation is the persisted unit: a title, its outline and the finalized slides.
type Presentation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Outline   []string  `json:"outline"`
	Slides    []Slide   `json:"slides"`
	Theme     string    `json:"theme,omitempty"`
	Language  string    `json:"language,omitempty"`
	Public    bool      `json:"public"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PlainText concatenates the text of a block and all of its descendants.
func (b Block) PlainText() string {
	var parts []string
	var walk func(Block)
	walk = func(b Block) {
		if t := strings.TrimSpace(b.Text); t != "" {
			parts = append(parts, t)
		}
		if b.Table != nil {
			for _, r := range b.Table.Rows {
				parts = append(parts, strings.Join(r.Cells, " | "))
			}
		}
		for _, c := range b.Children {
			walk(c)
		}
	}
	walk(b)
	return strings.Join(parts, "\n")
}

// Hash returns a shallow content hash of a slide, used to detect changes
// between streaming passes.
func Hash(s Slide) string {
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}

// Clone returns a deep copy so callers can hand out snapshots safely.
func Clone(slides []Slide) []Slide {
	if slides == nil {
		return nil
	}
	data, err := json.Marshal(slides)
	if err != nil {
		return nil
	}
	var out []Slide
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
