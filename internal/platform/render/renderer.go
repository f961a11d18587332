package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/rs/zerolog"
)

// Defaults for Options.
const (
	DefaultWidth   = 1200
	DefaultQuality = 90
)

// Options configures a Renderer.
type Options struct {
	// Width is the layout width forced on the canvas while rendering.
	Width int
	// Quality is the JPEG quality (1-100) used for section images.
	Quality int
	// Title is written into the PDF metadata.
	Title string
}

// Document is a rendered PDF.
type Document struct {
	Data  []byte
	Pages int
}

// Renderer produces paginated PDF snapshots of form sections.
type Renderer struct {
	raster Rasterizer
	opts   Options
	logger zerolog.Logger
}

// New creates a Renderer. Zero option values fall back to the defaults.
func New(raster Rasterizer, opts Options, logger zerolog.Logger) *Renderer {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}
	return &Renderer{raster: raster, opts: opts, logger: logger}
}

// Render rasterizes sections in order and lays them out on A4 pages. The
// canvas is widened for the whole render and restored on every return path.
// Any section failure aborts the render; no partial document is returned.
func (r *Renderer) Render(ctx context.Context, canvas *Canvas, sections []Section) (*Document, error) {
	restore := canvas.widen(r.opts.Width)
	defer restore()

	images := make([][]byte, 0, len(sections))
	sizes := make([]image.Point, 0, len(sections))
	for _, s := range sections {
		img, err := r.raster.Rasterize(ctx, s, canvas.Width())
		if err != nil {
			return nil, fmt.Errorf("rasterize section %q: %w", s.Name, err)
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: r.opts.Quality}); err != nil {
			return nil, fmt.Errorf("encode section %q: %w", s.Name, err)
		}
		images = append(images, buf.Bytes())
		sizes = append(sizes, img.Bounds().Size())
	}

	places := Paginate(sizes, A4Width, A4Height)
	data, err := assemble(images, places, r.opts.Title)
	if err != nil {
		return nil, err
	}

	pages, err := Inspect(data)
	if err != nil {
		return nil, fmt.Errorf("verify rendered pdf: %w", err)
	}
	if want := PageCount(places); want > 0 && pages != want {
		return nil, fmt.Errorf("verify rendered pdf: expected %d pages, got %d", want, pages)
	}

	r.logger.Debug().
		Int("sections", len(sections)).
		Int("pages", pages).
		Int("bytes", len(data)).
		Msg("rendered document")

	return &Document{Data: data, Pages: pages}, nil
}
