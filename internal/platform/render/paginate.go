package render

import "image"

// A4 page size in millimetres.
const (
	A4Width  = 210.0
	A4Height = 297.0
)

// Placement positions one section image on an output page.
type Placement struct {
	Page int
	X, Y float64
	W, H float64
}

// Paginate stacks images top to bottom. Every image is scaled to the full page
// width; an image that does not fit the remaining height starts a new page.
// An image taller than a whole page is placed alone at the top of its page
// rather than leaving a blank page before it.
func Paginate(sizes []image.Point, pageW, pageH float64) []Placement {
	out := make([]Placement, 0, len(sizes))
	page := 0
	cursor := 0.0
	for _, sz := range sizes {
		h := 0.0
		if sz.X > 0 {
			h = float64(sz.Y) * pageW / float64(sz.X)
		}
		if cursor > 0 && cursor+h > pageH {
			page++
			cursor = 0
		}
		out = append(out, Placement{Page: page, X: 0, Y: cursor, W: pageW, H: h})
		cursor += h
	}
	return out
}

// PageCount returns how many pages a set of placements spans.
func PageCount(places []Placement) int {
	if len(places) == 0 {
		return 0
	}
	return places[len(places)-1].Page + 1
}
