// Package config loads conversion settings from YAML with environment
// overrides and turns them into the options of the pipeline packages.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wudi/scrollpdf/assembler"
	"github.com/wudi/scrollpdf/builder"
	"github.com/wudi/scrollpdf/observability"
	"github.com/wudi/scrollpdf/pagination"
	"github.com/wudi/scrollpdf/raster"
)

type Config struct {
	Page        Page        `yaml:"page"`
	Render      Render      `yaml:"render"`
	OCR         OCR         `yaml:"ocr"`
	PDF         PDF         `yaml:"pdf"`
	Pagination  Pagination  `yaml:"pagination"`
	Performance Performance `yaml:"performance"`
	Calibration Calibration `yaml:"calibration"`
	TextLayer   TextLayer   `yaml:"text_layer"`
	Log         Log         `yaml:"log"`
	Server      Server      `yaml:"server"`
}

// Page geometry is in pixels at DPI. A named format overrides Width and
// Height; "custom" keeps them.
type Page struct {
	Format string `yaml:"format"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	DPI    int    `yaml:"dpi"`
	Margin int    `yaml:"margin"`
	// WorkspaceScale is the number of raster pixels per CSS pixel when
	// markdown is rendered.
	WorkspaceScale float64 `yaml:"workspace_scale"`
	AutoPaginate   bool    `yaml:"auto_paginate"`
	PageNumbers    bool    `yaml:"page_numbers"`
}

type Render struct {
	// FontSize is the body size in CSS pixels.
	FontSize   float64 `yaml:"font_size"`
	LineHeight float64 `yaml:"line_height"`
}

type OCR struct {
	Language            string   `yaml:"language"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold"`
	PageSegMode         string   `yaml:"page_seg_mode"`
	EngineMode          string   `yaml:"engine_mode"`
	DPI                 int      `yaml:"dpi"`
	IgnorableErrors     []string `yaml:"ignorable_errors"`
	TessdataPrefix      string   `yaml:"tessdata_prefix"`
	DebugLevel          string   `yaml:"debug_level"`
}

type PDF struct {
	ImageFormat     string  `yaml:"image_format"`
	ImageQuality    float64 `yaml:"image_quality"`
	Compress        bool    `yaml:"compress"`
	PageNumberColor string  `yaml:"page_number_color"`
	Title           string  `yaml:"title"`
}

type Pagination struct {
	Strategy            string  `yaml:"strategy"`
	WhitespaceThreshold int     `yaml:"whitespace_threshold"`
	WhitespaceWindow    float64 `yaml:"whitespace_window"`
}

type Performance struct {
	BatchSize int `yaml:"batch_size"`
}

type Calibration struct {
	Enabled bool `yaml:"enabled"`
	// KnownFontSize is in CSS pixels, scaled like body text.
	KnownFontSize float64 `yaml:"known_font_size"`
	// Script is an optional JavaScript multiplier expression.
	Script string `yaml:"script"`
}

type TextLayer struct {
	Source         string  `yaml:"source"`
	BaselineFactor float64 `yaml:"baseline_factor"`
	// Font is an optional TrueType file the invisible text is set in.
	Font string `yaml:"font"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Server struct {
	Addr           string   `yaml:"addr"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type format struct{ width, height int }

// formats are page sizes in pixels at 300 dpi.
var formats = map[string]format{
	"letter": {2551, 3295},
	"a4":     {2480, 3508},
	"legal":  {2551, 4205},
}

const formatDPI = 300

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Page: Page{
			Format:         "letter",
			Width:          2551,
			Height:         3295,
			DPI:            formatDPI,
			Margin:         300,
			WorkspaceScale: 3.5,
			AutoPaginate:   true,
			PageNumbers:    true,
		},
		Render: Render{FontSize: 16, LineHeight: 1.4},
		OCR: OCR{
			Language:            "eng",
			ConfidenceThreshold: 30,
			PageSegMode:         "3",
			EngineMode:          "1",
			DPI:                 600,
			DebugLevel:          "info",
		},
		PDF: PDF{
			ImageFormat:     string(raster.JPEG),
			ImageQuality:    1,
			Compress:        true,
			PageNumberColor: "#999",
		},
		Pagination:  Pagination{Strategy: string(pagination.KindLineAware)},
		Performance: Performance{BatchSize: 5},
		Calibration: Calibration{KnownFontSize: 16},
		TextLayer:   TextLayer{Source: string(assembler.SourcePage), BaselineFactor: 0.25},
		Log:         Log{Level: "info", Format: "text"},
		Server:      Server{Addr: ":8080", MaxBodyBytes: 10 << 20},
	}
}

// Load reads path over the defaults, applies .env and SCROLLPDF_*
// overrides, and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		if err := c.parseFile(path); err != nil {
			return nil, err
		}
	}
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	c.applyFormat()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return c, nil
}

func (c *Config) parseFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	data = []byte(os.ExpandEnv(string(data)))

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyFormat() {
	name := strings.ToLower(strings.TrimSpace(c.Page.Format))
	if f, ok := formats[name]; ok {
		c.Page.Format = name
		c.Page.Width = f.width
		c.Page.Height = f.height
		c.Page.DPI = formatDPI
	}
}

// Validate checks ranges and enum values.
func (c *Config) Validate() error {
	var errs []error
	p := c.Page
	if name := strings.ToLower(p.Format); name != "custom" && name != "" {
		if _, ok := formats[name]; !ok {
			errs = append(errs, fmt.Errorf("page.format %q is not letter, a4, legal or custom", p.Format))
		}
	}
	if p.Width <= 0 || p.Height <= 0 || p.DPI <= 0 {
		errs = append(errs, fmt.Errorf("page width, height and dpi must be positive"))
	}
	if p.Margin < 0 || p.Height <= 2*p.Margin || p.Width <= 2*p.Margin {
		errs = append(errs, fmt.Errorf("page.margin %d does not fit a %dx%d page", p.Margin, p.Width, p.Height))
	}
	if p.WorkspaceScale <= 0 {
		errs = append(errs, fmt.Errorf("page.workspace_scale must be positive"))
	}
	if c.Render.FontSize <= 0 {
		errs = append(errs, fmt.Errorf("render.font_size must be positive"))
	}
	if t := c.OCR.ConfidenceThreshold; t < 0 || t > 100 {
		errs = append(errs, fmt.Errorf("ocr.confidence_threshold must be between 0 and 100, got %v", t))
	}
	for name, v := range map[string]string{"ocr.page_seg_mode": c.OCR.PageSegMode, "ocr.engine_mode": c.OCR.EngineMode} {
		if _, err := strconv.Atoi(v); v != "" && err != nil {
			errs = append(errs, fmt.Errorf("%s %q is not a number", name, v))
		}
	}
	if _, err := observability.ParseLevel(c.OCR.DebugLevel); err != nil {
		errs = append(errs, fmt.Errorf("ocr.debug_level: %w", err))
	}
	if _, err := raster.ParseFormat(c.PDF.ImageFormat); err != nil {
		errs = append(errs, fmt.Errorf("pdf.image_format: %w", err))
	}
	if q := c.PDF.ImageQuality; q <= 0 || q > 1 {
		errs = append(errs, fmt.Errorf("pdf.image_quality must be in (0, 1], got %v", q))
	}
	if _, err := ParseColor(c.PDF.PageNumberColor); err != nil {
		errs = append(errs, fmt.Errorf("pdf.page_number_color: %w", err))
	}
	if _, err := pagination.ParseKind(c.Pagination.Strategy); err != nil {
		errs = append(errs, fmt.Errorf("pagination.strategy: %w", err))
	}
	if t := c.Pagination.WhitespaceThreshold; t < 0 || t > 255 {
		errs = append(errs, fmt.Errorf("pagination.whitespace_threshold must be between 0 and 255"))
	}
	if w := c.Pagination.WhitespaceWindow; w < 0 || w >= 1 {
		errs = append(errs, fmt.Errorf("pagination.whitespace_window must be in [0, 1)"))
	}
	if b := c.Performance.BatchSize; b < 1 || b > 20 {
		errs = append(errs, fmt.Errorf("performance.batch_size must be between 1 and 20, got %d", b))
	}
	if c.Calibration.Enabled && c.Calibration.KnownFontSize <= 0 {
		errs = append(errs, fmt.Errorf("calibration.known_font_size must be positive"))
	}
	if _, err := assembler.ParseSource(c.TextLayer.Source); err != nil {
		errs = append(errs, fmt.Errorf("text_layer.source: %w", err))
	}
	if c.TextLayer.BaselineFactor < 0 {
		errs = append(errs, fmt.Errorf("text_layer.baseline_factor must not be negative"))
	}
	if _, err := observability.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if f := c.Log.Format; f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("log.format %q is not text or json", f))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes must be positive"))
	}
	return errors.Join(errs...)
}

// ParseColor accepts #rgb and #rrggbb.
func ParseColor(s string) (builder.Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return builder.Color{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return builder.Color{}, fmt.Errorf("invalid color %q", s)
	}
	return builder.Color{
		R: float64(v>>16&0xff) / 255,
		G: float64(v>>8&0xff) / 255,
		B: float64(v&0xff) / 255,
	}, nil
}
