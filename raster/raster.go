// Package raster holds the tall document bitmaps a job consumes and the page
// crops cut from them.
package raster

import (
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/wudi/scrollpdf/failure"
)

// Raster is a document bitmap. A job owns its rasters exclusively and
// releases them when it ends; a released raster rejects further use.
type Raster struct {
	Width  int
	Height int
	Pix    *image.RGBA
}

// New allocates a white raster of the given size.
func New(width, height int) *Raster {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(img, img.Bounds(), image.White, image.Point{}, xdraw.Src)
	return &Raster{Width: width, Height: height, Pix: img}
}

// FromImage wraps img. An *image.RGBA anchored at the origin is adopted
// without copying; anything else is converted.
func FromImage(img image.Image) *Raster {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return &Raster{Width: rgba.Rect.Dx(), Height: rgba.Rect.Dy(), Pix: rgba}
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(rgba, rgba.Bounds(), img, b.Min, xdraw.Src)
	return &Raster{Width: b.Dx(), Height: b.Dy(), Pix: rgba}
}

// Validate checks that the raster is usable.
func (r *Raster) Validate() error {
	switch {
	case r == nil:
		return failure.Input("raster", "raster is missing")
	case r.Pix == nil:
		return failure.Input("raster", "raster has no pixel data (released?)")
	case r.Width <= 0 || r.Height <= 0:
		return failure.Input("raster", "invalid raster dimensions %dx%d", r.Width, r.Height)
	case r.Pix.Rect.Dx() != r.Width || r.Pix.Rect.Dy() != r.Height:
		return failure.Input("raster", "pixel buffer %v does not match %dx%d", r.Pix.Rect.Size(), r.Width, r.Height)
	}
	return nil
}

// Image returns the pixel buffer or an input error when the raster was
// released.
func (r *Raster) Image() (*image.RGBA, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r.Pix, nil
}

// Release drops the pixel buffer. It is safe to call more than once.
func (r *Raster) Release() {
	if r != nil {
		r.Pix = nil
	}
}

// Released reports whether Release has been called.
func (r *Raster) Released() bool { return r == nil || r.Pix == nil }

// RowIsBlank reports whether every pixel of row y has luminance at or above
// threshold. Rows outside the raster are not blank.
func (r *Raster) RowIsBlank(y int, threshold uint8) bool {
	if r.Released() || y < 0 || y >= r.Height {
		return false
	}
	row := r.Pix.Pix[y*r.Pix.Stride : y*r.Pix.Stride+r.Width*4]
	for i := 0; i < len(row); i += 4 {
		if luminance(row[i], row[i+1], row[i+2]) < threshold {
			return false
		}
	}
	return true
}

func luminance(r, g, b uint8) uint8 {
	return uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b)) / 1000)
}
