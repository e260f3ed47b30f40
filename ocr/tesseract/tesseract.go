// Package tesseract adapts the gosseract client to the ocr.Engine contract.
package tesseract

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/wudi/scrollpdf/failure"
	"github.com/wudi/scrollpdf/ocr"
	"github.com/wudi/scrollpdf/raster"
)

// Engine holds one initialized Tesseract client for the lifetime of a job.
type Engine struct {
	mu     sync.Mutex
	client *gosseract.Client
	dir    string
	closed bool
}

var _ ocr.Factory = New

// New creates a client configured from opts. The custom dictionary and
// engine mode are init-time parameters, so they are written to a config file
// in a private temporary directory that Terminate removes.
func New(ctx context.Context, opts ocr.Options) (ocr.Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp("", "scrollpdf-tess-")
	if err != nil {
		return nil, failure.OCREngine("initialize", err)
	}
	e := &Engine{client: gosseract.NewClient(), dir: dir}
	if err := e.configure(opts); err != nil {
		_ = e.Terminate()
		return nil, failure.OCREngine("initialize", err)
	}
	return e, nil
}

func (e *Engine) configure(opts ocr.Options) error {
	c := e.client
	if opts.TessdataPrefix != "" {
		if err := c.SetTessdataPrefix(opts.TessdataPrefix); err != nil {
			return fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if len(opts.Languages) > 0 {
		if err := c.SetLanguage(opts.Languages...); err != nil {
			return fmt.Errorf("set languages: %w", err)
		}
	}
	if opts.PageSegMode != "" {
		psm, err := strconv.Atoi(opts.PageSegMode)
		if err != nil {
			return fmt.Errorf("page segmentation mode %q: %w", opts.PageSegMode, err)
		}
		if err := c.SetPageSegMode(gosseract.PageSegMode(psm)); err != nil {
			return fmt.Errorf("set page segmentation mode: %w", err)
		}
	}
	if opts.CharWhitelist != "" {
		if err := c.SetWhitelist(opts.CharWhitelist); err != nil {
			return fmt.Errorf("set whitelist: %w", err)
		}
	}
	if opts.DPI > 0 {
		if err := c.SetVariable("user_defined_dpi", strconv.Itoa(opts.DPI)); err != nil {
			return fmt.Errorf("set dpi: %w", err)
		}
	}
	cfg, err := writeConfig(e.dir, opts)
	if err != nil {
		return err
	}
	if cfg != "" {
		if err := c.SetConfigFile(cfg); err != nil {
			return fmt.Errorf("set config file: %w", err)
		}
	}
	return nil
}

// writeConfig writes the init-only settings and returns the config path, or
// "" when there is nothing to configure.
func writeConfig(dir string, opts ocr.Options) (string, error) {
	var lines []string
	if words := ocr.Dictionary(opts.CustomWords); len(words) > 0 {
		path := filepath.Join(dir, "user-words")
		if err := os.WriteFile(path, []byte(strings.Join(words, "\n")+"\n"), 0o600); err != nil {
			return "", fmt.Errorf("write user words: %w", err)
		}
		lines = append(lines, "user_words_file "+path)
	}
	if opts.EngineMode != "" {
		if _, err := strconv.Atoi(opts.EngineMode); err != nil {
			return "", fmt.Errorf("engine mode %q: %w", opts.EngineMode, err)
		}
		lines = append(lines, "tessedit_ocr_engine_mode "+opts.EngineMode)
	}
	if len(lines) == 0 {
		return "", nil
	}
	path := filepath.Join(dir, "scrollpdf.config")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return path, nil
}

// Recognize runs Tesseract on img, or on region of it, and returns lines in
// img's coordinates.
func (e *Engine) Recognize(ctx context.Context, img image.Image, region *ocr.Region) ([]ocr.Line, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, failure.OCREngine("recognize", fmt.Errorf("engine terminated"))
	}

	src, origin, err := crop(img, region)
	if err != nil {
		return nil, failure.OCREngine("recognize", err)
	}
	data, err := raster.Encode(src, raster.PNG, 1)
	if err != nil {
		return nil, failure.OCREngine("recognize", err)
	}
	if err := e.client.SetImageFromBytes(data); err != nil {
		return nil, failure.OCREngine("set image", err)
	}
	out, err := e.client.HOCRText()
	if err != nil {
		return nil, failure.OCREngine("recognize", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lines, err := parseHOCR(strings.NewReader(out))
	if err != nil {
		return nil, failure.OCREngine("recognize", err)
	}
	return ocr.Offset(lines, float64(origin.X), float64(origin.Y)), nil
}

// Terminate closes the client and removes the temporary config. Only the
// first call does any work.
func (e *Engine) Terminate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	var errs []string
	if err := e.client.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if e.dir != "" {
		if err := os.RemoveAll(e.dir); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return failure.Resource("terminate", fmt.Errorf("%s", strings.Join(errs, "; ")))
	}
	return nil
}

// crop returns the part of img to recognize and its offset from img's origin.
func crop(img image.Image, region *ocr.Region) (image.Image, image.Point, error) {
	b := img.Bounds()
	if region == nil || region.IsEmpty() {
		return img, image.Point{}, nil
	}
	rect := region.Rect().Add(b.Min).Intersect(b)
	if rect.Empty() {
		return nil, image.Point{}, fmt.Errorf("region %+v outside image bounds %v", *region, b)
	}
	sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if !ok {
		return nil, image.Point{}, fmt.Errorf("image %T does not support sub-images", img)
	}
	return sub.SubImage(rect), rect.Min.Sub(b.Min), nil
}
