package raster

import (
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/wudi/scrollpdf/failure"
)

// Crop is a page-height canvas cut from a document raster.
type Crop struct {
	*Raster
	// Content is the area of the canvas covered by document pixels. The rest
	// is white fill.
	Content image.Rectangle
}

// CropPage copies cropHeight rows starting at cropY from src onto a white
// canvas pageHeight tall, placed topOffset rows down. Rows that would fall
// below the canvas are dropped.
func CropPage(src *Raster, cropY, cropHeight, pageHeight, topOffset int) (*Crop, error) {
	img, err := src.Image()
	if err != nil {
		return nil, err
	}
	if pageHeight <= 0 {
		return nil, failure.Input("crop", "page height must be positive, got %d", pageHeight)
	}
	if cropY < 0 || cropHeight <= 0 || cropY+cropHeight > src.Height {
		return nil, failure.Input("crop", "crop [%d,%d) outside raster height %d", cropY, cropY+cropHeight, src.Height)
	}
	if topOffset < 0 || topOffset >= pageHeight {
		return nil, failure.Input("crop", "top offset %d outside page height %d", topOffset, pageHeight)
	}

	drawable := cropHeight
	if room := pageHeight - topOffset; drawable > room {
		drawable = room
	}
	canvas := New(src.Width, pageHeight)
	content := image.Rect(0, topOffset, src.Width, topOffset+drawable)
	xdraw.Copy(canvas.Pix, content.Min, img, image.Rect(0, cropY, src.Width, cropY+drawable), xdraw.Src, nil)
	return &Crop{Raster: canvas, Content: content}, nil
}

// Truncated reports how many source rows did not fit on the canvas.
func Truncated(cropHeight, pageHeight, topOffset int) int {
	if over := cropHeight - (pageHeight - topOffset); over > 0 {
		return over
	}
	return 0
}
