package calibration

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"
	"time"

	"github.com/wudi/scrollpdf/ocr"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestNewFactorRatioFormula(t *testing.T) {
	// known 16pt, measured 70 raster px, ratio 1/3.5, workspace scale 3.5
	f, err := NewFactor(nil, 16, 70, 1/3.5, 3.5)
	if err != nil {
		t.Fatalf("NewFactor: %v", err)
	}
	want := 16 / (70 * (1 / 3.5) / 3.5)
	if !approx(f.Multiplier, want) {
		t.Fatalf("multiplier = %v, want %v", f.Multiplier, want)
	}
	if f.KnownFontSize != 16 {
		t.Fatalf("known size not recorded: %+v", f)
	}
	// a line exactly as tall as the reference maps back to the known size.
	if got := f.FontSize(70, 1/3.5, 3.5); !approx(got, 16) {
		t.Fatalf("FontSize(reference) = %v, want 16", got)
	}
	if got := f.FontSize(35, 1/3.5, 3.5); !approx(got, 8) {
		t.Fatalf("FontSize(half) = %v, want 8", got)
	}
}

func TestFactorIsReusedAcrossLines(t *testing.T) {
	f, err := NewFactor(Ratio{}, 20, 50, 0.5, 2)
	if err != nil {
		t.Fatalf("NewFactor: %v", err)
	}
	a := f.FontSize(10, 0.5, 2)
	b := f.FontSize(20, 0.5, 2)
	if !approx(b, 2*a) {
		t.Fatalf("font size should scale linearly with a single multiplier: %v vs %v", a, b)
	}
}

func TestNewFactorRejectsBadInput(t *testing.T) {
	cases := []struct {
		known, measured, ratio, ws float64
	}{
		{0, 10, 1, 1},
		{16, 0, 1, 1},
		{16, 10, 0, 1},
		{16, 10, 1, 0},
	}
	for _, tc := range cases {
		if _, err := NewFactor(nil, tc.known, tc.measured, tc.ratio, tc.ws); err == nil {
			t.Fatalf("NewFactor(%+v) expected error", tc)
		}
	}
}

func TestUncalibratedUsesScaledLineHeight(t *testing.T) {
	f := Uncalibrated(3.5)
	if got := f.FontSize(70, 0.25, 3.5); !approx(got, 17.5) {
		t.Fatalf("FontSize = %v, want 17.5", got)
	}
}

func TestPageRatioAspectFit(t *testing.T) {
	if got := PageRatio(2551, 3295, 2551/3.5, 3295/3.5); !approx(got, 1/3.5) {
		t.Fatalf("PageRatio = %v", got)
	}
	if got := PageRatio(100, 400, 100, 100); !approx(got, 0.25) {
		t.Fatalf("PageRatio tall = %v, want 0.25", got)
	}
	if got := PageRatio(0, 10, 10, 10); got != 0 {
		t.Fatalf("PageRatio(0) = %v", got)
	}
}

func TestMeasureReference(t *testing.T) {
	lines := []ocr.Line{
		{BBox: ocr.BBox{Y0: 10, Y1: 40}},
		{BBox: ocr.BBox{Y0: 50, Y1: 100}},
	}
	got, err := MeasureReference(lines)
	if err != nil || !approx(got, 40) {
		t.Fatalf("MeasureReference = %v, %v; want 40", got, err)
	}
	if _, err := MeasureReference(nil); !errors.Is(err, ErrNoReference) {
		t.Fatalf("empty sample error = %v, want ErrNoReference", err)
	}
}

type fixedEngine struct{ lines []ocr.Line }

func (f fixedEngine) Recognize(context.Context, image.Image, *ocr.Region) ([]ocr.Line, error) {
	return f.lines, nil
}
func (fixedEngine) Terminate() error { return nil }

func TestMeasureSample(t *testing.T) {
	eng := fixedEngine{lines: []ocr.Line{{BBox: ocr.BBox{Y0: 0, Y1: 56}}}}
	got, err := MeasureSample(context.Background(), eng, image.NewRGBA(image.Rect(0, 0, 1, 1)))
	if err != nil || got != 56 {
		t.Fatalf("MeasureSample = %v, %v", got, err)
	}
}

func TestScriptCalibrator(t *testing.T) {
	c, err := NewScriptCalibrator("known / measured * 0.5")
	if err != nil {
		t.Fatalf("NewScriptCalibrator: %v", err)
	}
	m, err := c.Calibrate(16, 8)
	if err != nil || !approx(m, 1) {
		t.Fatalf("Calibrate = %v, %v; want 1", m, err)
	}
	f, err := NewFactor(c, 16, 8, 1, 1)
	if err != nil || !approx(f.Multiplier, 1) {
		t.Fatalf("NewFactor with script = %+v, %v", f, err)
	}
}

func TestScriptCalibratorRejectsBadResults(t *testing.T) {
	for _, src := range []string{"-1", "known / 0", "'abc'", "0"} {
		c, err := NewScriptCalibrator(src)
		if err != nil {
			t.Fatalf("compile %q: %v", src, err)
		}
		if _, err := c.Calibrate(16, 8); err == nil {
			t.Fatalf("script %q: expected error", src)
		}
	}
	if _, err := NewScriptCalibrator("known /"); err == nil {
		t.Fatalf("expected compile error")
	}
}

func TestScriptCalibratorTimeout(t *testing.T) {
	c, err := NewScriptCalibrator("while (true) {}")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	c.Timeout = 20 * time.Millisecond
	if _, err := c.Calibrate(16, 8); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}

	ok, _ := NewScriptCalibrator("known / measured")
	if m, err := ok.Calibrate(10, 5); err != nil || m != 2 {
		t.Fatalf("Calibrate = %v, %v", m, err)
	}
}

func TestScriptCalibratorExpiredRunDoesNotLeakInterrupt(t *testing.T) {
	c, err := NewScriptCalibrator("known / measured")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	for i := 0; i < 200; i++ {
		c.Timeout = time.Nanosecond
		_, _ = c.Calibrate(10, 5)

		c.Timeout = time.Second
		if m, err := c.Calibrate(10, 5); err != nil || m != 2 {
			t.Fatalf("run %d after an expired run: %v, %v", i, m, err)
		}
	}
}
