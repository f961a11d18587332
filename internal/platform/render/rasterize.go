package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Rasterizer converts a section into pixels at the given layout width.
type Rasterizer interface {
	Rasterize(ctx context.Context, s Section, width int) (image.Image, error)
}

// DefaultScale is the upscale factor applied after drawing a section.
const DefaultScale = 1.2

const (
	padding    = 12
	lineHeight = 20
	boxSize    = 11
	boxGap     = 6
)

var (
	colorInk       = color.RGBA{0x25, 0x32, 0x38, 0xff}
	colorPaper     = color.RGBA{0xff, 0xff, 0xff, 0xff}
	colorTitleBand = color.RGBA{0xe8, 0xee, 0xf1, 0xff}
	colorAccent    = color.RGBA{0x2f, 0x8f, 0x9d, 0xff}
)

// TextRasterizer draws sections with a fixed bitmap face and upscales the
// result. It is safe for concurrent use.
type TextRasterizer struct {
	scale float64
	face  font.Face
}

// NewTextRasterizer returns a rasterizer that upscales by scale. Values <= 0
// fall back to DefaultScale.
func NewTextRasterizer(scale float64) *TextRasterizer {
	if scale <= 0 {
		scale = DefaultScale
	}
	return &TextRasterizer{scale: scale, face: basicfont.Face7x13}
}

// Rasterize implements Rasterizer.
func (r *TextRasterizer) Rasterize(ctx context.Context, s Section, width int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if width <= 2*padding {
		return nil, fmt.Errorf("layout width %d too small for section %q", width, s.Name)
	}

	bg, fg := sectionColors(s.Kind)
	contentW := width - 2*padding
	lines := r.layout(s.Rows, contentW)
	height := 2*padding + len(lines)*lineHeight
	if s.Kind == KindHighlight && len(lines) == 0 {
		height = padding
	}

	base := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(base, base.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	ink := image.NewUniform(fg)
	for i, line := range lines {
		top := padding + i*lineHeight
		cellW := contentW / len(line)
		for j, it := range line {
			x := padding + j*cellW
			textX := x
			avail := cellW
			if it.Checkbox {
				drawCheckbox(base, x, top+(lineHeight-boxSize)/2, fg, it.Checked)
				textX += boxSize + boxGap
				avail -= boxSize + boxGap
			}
			d := &font.Drawer{
				Dst:  base,
				Src:  ink,
				Face: r.face,
				Dot:  fixed.P(textX, top+lineHeight-5),
			}
			d.DrawString(r.fit(it.Text, avail))
		}
	}

	if r.scale == 1 {
		return base, nil
	}
	dstW := int(math.Round(float64(width) * r.scale))
	dstH := int(math.Round(float64(height) * r.scale))
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), base, base.Bounds(), draw.Over, nil)
	return dst, nil
}

// layout expands rows into drawable lines, wrapping single-text rows.
func (r *TextRasterizer) layout(rows []Row, contentW int) [][]Item {
	var lines [][]Item
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if len(row) == 1 && !row[0].Checkbox {
			for _, l := range r.wrap(row[0].Text, contentW) {
				lines = append(lines, []Item{Text(l)})
			}
			continue
		}
		lines = append(lines, row)
	}
	return lines
}

// wrap breaks text on whitespace so every line fits maxW. Explicit newlines
// are kept and an empty input still occupies one line.
func (r *TextRasterizer) wrap(text string, maxW int) []string {
	var out []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		cur := ""
		for _, w := range words {
			next := w
			if cur != "" {
				next = cur + " " + w
			}
			if cur != "" && r.measure(next) > maxW {
				out = append(out, cur)
				cur = r.fit(w, maxW)
				continue
			}
			cur = r.fit(next, maxW)
		}
		out = append(out, cur)
	}
	return out
}

// fit truncates s so it can be drawn within maxW pixels.
func (r *TextRasterizer) fit(s string, maxW int) string {
	if r.measure(s) <= maxW {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && r.measure(string(runes)+"...") > maxW {
		runes = runes[:len(runes)-1]
	}
	if len(runes) == 0 {
		return ""
	}
	return string(runes) + "..."
}

func (r *TextRasterizer) measure(s string) int {
	return font.MeasureString(r.face, s).Ceil()
}

func sectionColors(k Kind) (bg, fg color.Color) {
	switch k {
	case KindHeader:
		return colorInk, colorPaper
	case KindHighlight:
		return colorAccent, colorPaper
	case KindTitle:
		return colorTitleBand, colorInk
	default:
		return colorPaper, colorInk
	}
}

func drawCheckbox(dst draw.Image, x, y int, c color.Color, checked bool) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(x, y, x+boxSize, y+1),
		image.Rect(x, y+boxSize-1, x+boxSize, y+boxSize),
		image.Rect(x, y, x+1, y+boxSize),
		image.Rect(x+boxSize-1, y, x+boxSize, y+boxSize),
	}
	for _, e := range edges {
		draw.Draw(dst, e, src, image.Point{}, draw.Src)
	}
	if checked {
		draw.Draw(dst, image.Rect(x+3, y+3, x+boxSize-3, y+boxSize-3), src, image.Point{}, draw.Src)
	}
}
