package config

import (
	"compress/zlib"
	"fmt"
	"os"
	"strings"

	"github.com/wudi/scrollpdf/assembler"
	"github.com/wudi/scrollpdf/calibration"
	"github.com/wudi/scrollpdf/fonts"
	"github.com/wudi/scrollpdf/job"
	"github.com/wudi/scrollpdf/ocr"
	"github.com/wudi/scrollpdf/pagination"
	"github.com/wudi/scrollpdf/raster"
	"github.com/wudi/scrollpdf/render"
	"github.com/wudi/scrollpdf/writer"
)

const pointsPerInch = 72

// RenderOptions sizes the markdown renderer so one page of raster matches
// one page of the configured format.
func (c *Config) RenderOptions() render.Options {
	return render.Options{
		Width:      c.Page.Width,
		Padding:    c.Page.Margin,
		FontSize:   c.Render.FontSize * c.Page.WorkspaceScale,
		LineHeight: c.Render.LineHeight,
	}
}

// CalibrationSize is the raster pixel size of the calibration sample, or 0
// when calibration is disabled.
func (c *Config) CalibrationSize() float64 {
	if !c.Calibration.Enabled {
		return 0
	}
	return c.Calibration.KnownFontSize * c.Page.WorkspaceScale
}

// EngineDefaults are the OCR settings every job starts from.
func (c *Config) EngineDefaults() ocr.Options {
	ignorable := ocr.DefaultIgnorable
	if len(c.OCR.IgnorableErrors) > 0 {
		ignorable = append(append([]string(nil), ocr.DefaultIgnorable...), c.OCR.IgnorableErrors...)
	}
	return ocr.Options{
		PageSegMode:    c.OCR.PageSegMode,
		EngineMode:     c.OCR.EngineMode,
		DPI:            c.OCR.DPI,
		TessdataPrefix: c.OCR.TessdataPrefix,
		Ignorable:      ignorable,
	}
}

// JobOptions builds the orchestrator options. Callers add the engine
// factory, logger and tracer.
func (c *Config) JobOptions() ([]job.Option, error) {
	format, err := raster.ParseFormat(c.PDF.ImageFormat)
	if err != nil {
		return nil, err
	}
	color, err := ParseColor(c.PDF.PageNumberColor)
	if err != nil {
		return nil, err
	}
	level := 0
	if c.PDF.Compress {
		level = zlib.DefaultCompression
	}
	asm := []assembler.Option{
		assembler.WithImageFormat(format, c.PDF.ImageQuality),
		assembler.WithPageNumbers(c.Page.PageNumbers, color),
		assembler.WithBaselineFactor(c.TextLayer.BaselineFactor),
	}
	if path := c.TextLayer.Font; path != "" {
		ttf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("text_layer.font: %w", err)
		}
		if _, err := fonts.LoadTrueType(assembler.TextFontName, ttf); err != nil {
			return nil, fmt.Errorf("text_layer.font %s: %w", path, err)
		}
		asm = append(asm, assembler.WithTextFont(ttf))
	}
	opts := []job.Option{
		job.WithEngineDefaults(c.EngineDefaults()),
		job.WithPagination(pagination.Options{
			WhitespaceThreshold: uint8(c.Pagination.WhitespaceThreshold),
			WhitespaceWindow:    c.Pagination.WhitespaceWindow,
		}),
		job.WithBatchSize(c.Performance.BatchSize),
		job.WithWriterConfig(writer.Config{Compression: level}),
		job.WithAssemblerOptions(asm...),
	}
	if src := strings.TrimSpace(c.Calibration.Script); src != "" {
		cal, err := calibration.NewScriptCalibrator(src)
		if err != nil {
			return nil, err
		}
		opts = append(opts, job.WithCalibrator(cal))
	}
	return opts, nil
}

// Input describes a job over a rendered document. Page geometry becomes PDF
// points; the rasters are handed to the job.
func (c *Config) Input(res *render.Result, sample *raster.Raster) (*job.Input, error) {
	if res == nil {
		return nil, fmt.Errorf("config: no rendered document")
	}
	strategy, err := pagination.ParseKind(c.Pagination.Strategy)
	if err != nil {
		return nil, err
	}
	source, err := assembler.ParseSource(c.TextLayer.Source)
	if err != nil {
		return nil, err
	}
	scale := float64(c.Page.DPI) / pointsPerInch
	in := &job.Input{
		Width:          float64(c.Page.Width) / scale,
		Height:         float64(c.Page.Height) / scale,
		Margin:         float64(c.Page.Margin) / scale,
		PageHeight:     c.Page.Height,
		WorkspaceScale: scale,
		Visible:        res.Visible,
		OCR:            res.OCRSafe,
		AutoPaginate:   c.Page.AutoPaginate,
		CustomWords:    strings.Join(res.Words, "\n"),
		CharWhitelist:  res.Whitelist,
		DebugLevel:     c.OCR.DebugLevel,
		OCRSettings: job.OCRSettings{
			ConfidenceThreshold: c.OCR.ConfidenceThreshold,
			PageSegMode:         c.OCR.PageSegMode,
			EngineMode:          c.OCR.EngineMode,
		},
		Language:        c.OCR.Language,
		Strategy:        strategy,
		TextLayerSource: source,
		Title:           c.PDF.Title,
	}
	if sample != nil {
		in.Calibration = &job.CalibrationSample{Raster: sample, KnownFontSize: c.CalibrationSize() / scale}
	}
	return in, nil
}
