package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const envPrefix = "SCROLLPDF_"

// EnvFile is read before overrides are applied. Variables already set in
// the environment win over the file.
var EnvFile = ".env"

func loadDotEnv() error {
	if err := godotenv.Load(EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", EnvFile, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"PAGE_FORMAT":         &c.Page.Format,
		"OCR_LANGUAGE":        &c.OCR.Language,
		"OCR_PAGE_SEG_MODE":   &c.OCR.PageSegMode,
		"OCR_ENGINE_MODE":     &c.OCR.EngineMode,
		"OCR_TESSDATA_PREFIX": &c.OCR.TessdataPrefix,
		"OCR_DEBUG_LEVEL":     &c.OCR.DebugLevel,
		"PDF_IMAGE_FORMAT":    &c.PDF.ImageFormat,
		"PDF_TITLE":           &c.PDF.Title,
		"PAGINATION_STRATEGY": &c.Pagination.Strategy,
		"TEXT_LAYER_SOURCE":   &c.TextLayer.Source,
		"TEXT_LAYER_FONT":     &c.TextLayer.Font,
		"CALIBRATION_SCRIPT":  &c.Calibration.Script,
		"LOG_LEVEL":           &c.Log.Level,
		"LOG_FORMAT":          &c.Log.Format,
		"SERVER_ADDR":         &c.Server.Addr,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PAGE_MARGIN":            &c.Page.Margin,
		"OCR_DPI":                &c.OCR.DPI,
		"PERFORMANCE_BATCH_SIZE": &c.Performance.BatchSize,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s must be an integer, got %q", envPrefix, key, v)
			}
			*dst = n
		}
	}

	floats := map[string]*float64{
		"PAGE_WORKSPACE_SCALE":     &c.Page.WorkspaceScale,
		"OCR_CONFIDENCE_THRESHOLD": &c.OCR.ConfidenceThreshold,
		"PDF_IMAGE_QUALITY":        &c.PDF.ImageQuality,
		"RENDER_FONT_SIZE":         &c.Render.FontSize,
	}
	for key, dst := range floats {
		if v, ok := lookup(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s%s must be a number, got %q", envPrefix, key, v)
			}
			*dst = f
		}
	}

	bools := map[string]*bool{
		"PAGE_AUTO_PAGINATE":  &c.Page.AutoPaginate,
		"PAGE_NUMBERS":        &c.Page.PageNumbers,
		"PDF_COMPRESS":        &c.PDF.Compress,
		"CALIBRATION_ENABLED": &c.Calibration.Enabled,
	}
	for key, dst := range bools {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s must be a boolean, got %q", envPrefix, key, v)
			}
			*dst = b
		}
	}

	if v, ok := lookup("SERVER_MAX_BODY_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sSERVER_MAX_BODY_BYTES must be an integer, got %q", envPrefix, v)
		}
		c.Server.MaxBodyBytes = n
	}
	if v, ok := lookup("OCR_IGNORABLE_ERRORS"); ok {
		c.OCR.IgnorableErrors = splitList(v)
	}
	if v, ok := lookup("SERVER_ALLOWED_ORIGINS"); ok {
		c.Server.AllowedOrigins = splitList(v)
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
