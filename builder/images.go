package builder

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/wudi/scrollpdf/ir/semantic"
)

// FromImage converts a Go image to raw RGB samples. Transparency becomes a
// soft mask.
func FromImage(src image.Image) *semantic.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	nrgba, ok := src.(*image.NRGBA)
	if !ok || bounds.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(nrgba, nrgba.Bounds(), src, bounds.Min, draw.Src)
	}

	pixels := make([]byte, 0, w*h*3)
	alpha := make([]byte, 0, w*h)
	hasAlpha := false
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+4]
			pixels = append(pixels, px[0], px[1], px[2])
			alpha = append(alpha, px[3])
			if px[3] < 255 {
				hasAlpha = true
			}
		}
	}

	img := &semantic.Image{
		Width:            w,
		Height:           h,
		ColorSpace:       "DeviceRGB",
		BitsPerComponent: 8,
		Data:             pixels,
	}
	if hasAlpha {
		img.SMask = &semantic.Image{
			Width:            w,
			Height:           h,
			ColorSpace:       "DeviceGray",
			BitsPerComponent: 8,
			Data:             alpha,
		}
	}
	return img
}

// FromJPEG wraps an already encoded baseline JPEG so it is embedded without
// re-encoding.
func FromJPEG(data []byte, width, height int) (*semantic.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("jpeg data is empty")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid jpeg dimensions %dx%d", width, height)
	}
	return &semantic.Image{
		Width:            width,
		Height:           height,
		ColorSpace:       "DeviceRGB",
		BitsPerComponent: 8,
		Data:             data,
		Filter:           "DCTDecode",
	}, nil
}
