package job

import (
	"strings"

	"github.com/wudi/scrollpdf/assembler"
	"github.com/wudi/scrollpdf/failure"
	"github.com/wudi/scrollpdf/observability"
	"github.com/wudi/scrollpdf/ocr"
	"github.com/wudi/scrollpdf/pagination"
	"github.com/wudi/scrollpdf/raster"
)

// Input is one conversion request. The rasters are handed over to the job,
// which releases them when it ends.
type Input struct {
	// JobID is generated when empty.
	JobID string
	// Width, Height and Margin are PDF page units.
	Width  float64
	Height float64
	Margin float64
	// PageHeight is the height of one page in raster pixels.
	PageHeight     int
	WorkspaceScale float64

	Visible *raster.Raster
	OCR     *raster.Raster

	AutoPaginate bool
	// CustomWords is a newline separated dictionary for the engine.
	CustomWords   string
	CharWhitelist string
	// DebugLevel is a log level name; "verbose" also outlines placed words.
	DebugLevel  string
	OCRSettings OCRSettings

	Language        string
	Strategy        pagination.Kind
	TextLayerSource assembler.Source
	Calibration     *CalibrationSample
	Title           string
}

// OCRSettings tune recognition for a job.
type OCRSettings struct {
	// ConfidenceThreshold is exclusive, on a 0-100 scale.
	ConfidenceThreshold float64
	PageSegMode         string
	EngineMode          string
}

// CalibrationSample is the reference text rendered at a known size.
// KnownFontSize is in page units, like Width and Height.
type CalibrationSample struct {
	Raster          *raster.Raster
	KnownFontSize float64
}

const (
	defaultLanguage    = "eng"
	defaultPageSegMode = "3"
	defaultEngineMode  = "1"
)

func (in *Input) validate() error {
	if in == nil {
		return failure.Input("validate", "input is nil")
	}
	if in.Width <= 0 || in.Height <= 0 {
		return failure.Input("validate", "page size %.2fx%.2f must be positive", in.Width, in.Height)
	}
	if in.Margin < 0 {
		return failure.Input("validate", "margin %.2f must not be negative", in.Margin)
	}
	if in.PageHeight <= 0 {
		return failure.Input("validate", "page height %d must be positive", in.PageHeight)
	}
	if in.WorkspaceScale <= 0 {
		return failure.Input("validate", "workspace scale %.2f must be positive", in.WorkspaceScale)
	}
	if in.Visible == nil || in.OCR == nil {
		return failure.Input("validate", "visible and OCR rasters are required")
	}
	if err := in.Visible.Validate(); err != nil {
		return err
	}
	if err := in.OCR.Validate(); err != nil {
		return err
	}
	if in.Visible.Width != in.OCR.Width || in.Visible.Height != in.OCR.Height {
		return failure.Input("validate", "raster sizes differ: visible %dx%d, ocr %dx%d",
			in.Visible.Width, in.Visible.Height, in.OCR.Width, in.OCR.Height)
	}
	if t := in.OCRSettings.ConfidenceThreshold; t < 0 || t > 100 {
		return failure.Input("validate", "confidence threshold %.2f outside 0-100", t)
	}
	if in.Calibration != nil {
		if in.Calibration.KnownFontSize <= 0 {
			return failure.Input("validate", "calibration font size must be positive")
		}
		if err := in.Calibration.Raster.Validate(); err != nil {
			return err
		}
	}
	if _, err := observability.ParseLevel(in.DebugLevel); err != nil {
		return failure.Input("validate", "%v", err)
	}
	return nil
}

// engineOptions merges the job's dictionary and settings into defaults.
func (in *Input) engineOptions(defaults ocr.Options) ocr.Options {
	opts := defaults
	lang := in.Language
	if lang == "" {
		lang = defaultLanguage
	}
	opts.Languages = strings.Split(lang, "+")
	opts.CustomWords = ocr.SplitWords(in.CustomWords)
	opts.CharWhitelist = in.CharWhitelist
	opts.PageSegMode = firstNonEmpty(in.OCRSettings.PageSegMode, defaults.PageSegMode, defaultPageSegMode)
	opts.EngineMode = firstNonEmpty(in.OCRSettings.EngineMode, defaults.EngineMode, defaultEngineMode)
	if opts.Ignorable == nil {
		opts.Ignorable = ocr.DefaultIgnorable
	}
	return opts
}

// Release hands every raster of the input back to the allocator. Jobs call
// it themselves; callers only need it for an input that never started.
func (in *Input) Release() {
	in.Visible.Release()
	in.OCR.Release()
	if in.Calibration != nil {
		in.Calibration.Raster.Release()
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
