package media

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/GoCodeAlone/kiejob/failure"
)

// GridOptions controls SliceGrid.
type GridOptions struct {
	Rows, Cols int
	// OuterCrop is trimmed from every edge before slicing.
	OuterCrop int
	// Gutter is the gap between adjacent tiles.
	Gutter      int
	ColumnMajor bool
}

// ParseGrid parses "2x2" or "3x3".
func ParseGrid(s string) (rows, cols int, err error) {
	switch s {
	case "2x2":
		return 2, 2, nil
	case "3x3":
		return 3, 3, nil
	}
	return 0, 0, failure.Fatalf("grid", "grid must be 2x2 or 3x3, got %q", s)
}

// SliceGrid cuts a contact-sheet image into equal tiles. Tiles are copied,
// so they do not alias img.
func SliceGrid(img image.Image, opts GridOptions) ([]image.Image, error) {
	if opts.Rows <= 0 || opts.Cols <= 0 {
		return nil, failure.Fatalf("grid", "grid dimensions must be positive")
	}
	if opts.OuterCrop < 0 {
		return nil, failure.Fatalf("grid", "outer crop must be >= 0")
	}
	if opts.Gutter < 0 {
		return nil, failure.Fatalf("grid", "gutter must be >= 0")
	}

	b := img.Bounds()
	inner := image.Rect(b.Min.X+opts.OuterCrop, b.Min.Y+opts.OuterCrop, b.Max.X-opts.OuterCrop, b.Max.Y-opts.OuterCrop)
	if inner.Dx() <= 0 || inner.Dy() <= 0 {
		return nil, failure.Fatalf("grid", "outer crop is too large for the input image")
	}

	availW := inner.Dx() - opts.Gutter*(opts.Cols-1)
	availH := inner.Dy() - opts.Gutter*(opts.Rows-1)
	if availW <= 0 || availH <= 0 {
		return nil, failure.Fatalf("grid", "gutter is too large for the cropped image")
	}
	tileW, tileH := availW/opts.Cols, availH/opts.Rows
	if tileW <= 0 || tileH <= 0 {
		return nil, failure.Fatalf("grid", "computed tile size %dx%d is not positive", tileW, tileH)
	}

	tile := func(r, c int) image.Image {
		x := inner.Min.X + c*(tileW+opts.Gutter)
		y := inner.Min.Y + r*(tileH+opts.Gutter)
		dst := image.NewRGBA(image.Rect(0, 0, tileW, tileH))
		draw.Draw(dst, dst.Bounds(), img, image.Pt(x, y), draw.Src)
		return dst
	}

	tiles := make([]image.Image, 0, opts.Rows*opts.Cols)
	if opts.ColumnMajor {
		for c := 0; c < opts.Cols; c++ {
			for r := 0; r < opts.Rows; r++ {
				tiles = append(tiles, tile(r, c))
			}
		}
	} else {
		for r := 0; r < opts.Rows; r++ {
			for c := 0; c < opts.Cols; c++ {
				tiles = append(tiles, tile(r, c))
			}
		}
	}
	return tiles, nil
}

// TileName is the file name of tile i for a source named base.
func TileName(base string, i int) string {
	return fmt.Sprintf("%s_tile%02d.png", base, i+1)
}
