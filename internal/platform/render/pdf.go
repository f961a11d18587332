package render

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrEmptyDocument is returned when there is nothing to inspect.
var ErrEmptyDocument = errors.New("empty pdf document")

var disableConfigDir sync.Once

// assemble writes JPEG section images onto A4 pages at the given placements.
func assemble(images [][]byte, places []Placement, title string) ([]byte, error) {
	if len(images) != len(places) {
		return nil, fmt.Errorf("assemble: %d images for %d placements", len(images), len(places))
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("referral-intake", true)
	if title != "" {
		pdf.SetTitle(title, true)
	}

	page := -1
	for i, p := range places {
		for page < p.Page {
			pdf.AddPage()
			page++
		}
		name := fmt.Sprintf("section-%d", i)
		opts := fpdf.ImageOptions{ImageType: "JPG"}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(images[i]))
		pdf.ImageOptions(name, p.X, p.Y, p.W, p.H, false, opts, 0, "")
	}
	if page < 0 {
		pdf.AddPage()
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// Inspect parses a PDF with pdfcpu and returns its page count.
func Inspect(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, ErrEmptyDocument
	}
	disableConfigDir.Do(api.DisableConfigDir)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("read pdf context: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return ctx.PageCount, nil
}
