// Package render turns a list of visual form sections into a paginated,
// image-based A4 PDF. Each section is rasterized on its own, JPEG-encoded and
// stacked onto pages without ever splitting a section across a page break.
package render

import "sync"

// Kind selects the visual treatment of a section.
type Kind int

const (
	KindBody Kind = iota
	KindHeader
	KindHighlight
	KindTitle
)

func (k Kind) String() string {
	switch k {
	case KindHeader:
		return "header"
	case KindHighlight:
		return "highlight"
	case KindTitle:
		return "title"
	default:
		return "body"
	}
}

// Item is one cell of a section row: plain text or a labelled checkbox.
type Item struct {
	Text     string
	Checkbox bool
	Checked  bool
}

// Text returns a plain text cell.
func Text(s string) Item {
	return Item{Text: s}
}

// Checkbox returns a checkbox cell with a label.
func Checkbox(label string, checked bool) Item {
	return Item{Text: label, Checkbox: true, Checked: checked}
}

// Row is laid out left to right, each item getting an equal share of the width.
// A row holding a single text item wraps onto as many lines as it needs.
type Row []Item

// Section is one rasterization unit.
type Section struct {
	Name string
	Kind Kind
	Rows []Row
}

// DefaultCanvasWidth is the natural width of a form layout before it is
// widened for rendering.
const DefaultCanvasWidth = 800

// Canvas is the layout surface of a single form. The renderer widens it for
// the duration of a render and always puts the previous width back. Renders
// of the same canvas run one at a time.
type Canvas struct {
	scope sync.Mutex
	mu    sync.Mutex
	width int
}

// NewCanvas creates a canvas with the given natural width.
func NewCanvas(width int) *Canvas {
	if width <= 0 {
		width = DefaultCanvasWidth
	}
	return &Canvas{width: width}
}

// Width returns the current layout width in pixels.
func (c *Canvas) Width() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width
}

// widen sets a temporary width and returns the function that restores the
// previous one. The canvas stays claimed until restore is called.
func (c *Canvas) widen(width int) (restore func()) {
	c.scope.Lock()
	c.mu.Lock()
	prev := c.width
	c.width = width
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		c.width = prev
		c.mu.Unlock()
		c.scope.Unlock()
	}
}
