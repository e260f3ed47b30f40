package pagination

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/scrollpdf/failure"
	"github.com/wudi/scrollpdf/ocr"
)

func line(top, bottom float64) ocr.Line {
	return ocr.Line{BBox: ocr.BBox{X0: 0, Y0: top, X1: 100, Y1: bottom}, Confidence: 90}
}

func TestPlanFixedHeightScenario(t *testing.T) {
	specs, err := FixedHeight{}.Plan(1000, 400, 20, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	want := []PageSpec{
		{Index: 0, CropY: 0, CropHeight: 380, IsFirstPage: true},
		{Index: 1, CropY: 380, CropHeight: 360},
		{Index: 2, CropY: 740, CropHeight: 260, IsLastPage: true},
	}
	if diff := cmp.Diff(want, specs); diff != "" {
		t.Fatalf("specs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 380, 740, 1000}, Cuts(specs)); diff != "" {
		t.Fatalf("cuts mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanShortDocumentIsOnePage(t *testing.T) {
	for _, kind := range []Kind{KindFixed, KindLineAware} {
		s, err := New(kind, Options{})
		if err != nil {
			t.Fatalf("New(%s): %v", kind, err)
		}
		specs, err := s.Plan(300, 400, 20, nil)
		if err != nil {
			t.Fatalf("%s Plan: %v", kind, err)
		}
		want := []PageSpec{{Index: 0, CropY: 0, CropHeight: 300, IsFirstPage: true, IsLastPage: true}}
		if diff := cmp.Diff(want, specs); diff != "" {
			t.Fatalf("%s specs mismatch (-want +got):\n%s", kind, diff)
		}
	}
}

func TestLineAwareMovesCutBelowStraddlingLine(t *testing.T) {
	lines := []ocr.Line{line(100, 125), line(370, 395), line(400, 425)}
	specs, err := LineAware{}.Plan(1000, 400, 20, lines)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	cuts := Cuts(specs)
	if cuts[1] != 395 {
		t.Fatalf("first realized cut = %d, want 395", cuts[1])
	}
	// the second proposal starts from the realized cut: 395 + 360 = 755
	if cuts[2] != 755 {
		t.Fatalf("second cut = %d, want 755", cuts[2])
	}
}

func TestLineAwareKeepsCutBetweenLines(t *testing.T) {
	lines := []ocr.Line{line(340, 365), line(385, 410)}
	specs, err := LineAware{}.Plan(1000, 400, 20, lines)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if got := specs[0].End(); got != 380 {
		t.Fatalf("cut = %d, want unmodified 380", got)
	}
}

func TestLineAwareFollowsOverlappingLines(t *testing.T) {
	lines := []ocr.Line{line(360, 390), line(385, 410.4)}
	if got := safeCut(380, 1000, lines); got != 411 {
		t.Fatalf("safeCut = %d, want 411", got)
	}
}

func TestLineAwareClipsAtTotalHeight(t *testing.T) {
	lines := []ocr.Line{line(370, 400)}
	specs, err := LineAware{}.Plan(395, 400, 20, lines)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	want := []PageSpec{{Index: 0, CropY: 0, CropHeight: 395, IsFirstPage: true, IsLastPage: true}}
	if diff := cmp.Diff(want, specs); diff != "" {
		t.Fatalf("specs mismatch (-want +got):\n%s", diff)
	}
}

func TestLineAwareCutsAboveLineThatDoesNotFit(t *testing.T) {
	tests := []struct {
		name   string
		margin int
		lines  []ocr.Line
		want   []int
	}{
		{"no margin", 0, []ocr.Line{line(390, 420)}, []int{0, 390, 790, 1000}},
		{"straddle beyond margin", 20, []ocr.Line{line(370, 420)}, []int{0, 370, 730, 1000}},
		{"overlapping lines", 0, []ocr.Line{line(380, 398), line(395, 410)}, []int{0, 380, 780, 1000}},
		{"bottom fits", 20, []ocr.Line{line(370, 395)}, []int{0, 395, 755, 1000}},
	}
	for _, tc := range tests {
		specs, err := LineAware{}.Plan(1000, 400, tc.margin, tc.lines)
		if err != nil {
			t.Fatalf("%s: Plan: %v", tc.name, err)
		}
		if diff := cmp.Diff(tc.want, Cuts(specs)); diff != "" {
			t.Fatalf("%s: cuts mismatch (-want +got):\n%s", tc.name, diff)
		}
		for i, s := range specs {
			room := 400 - tc.margin
			if s.IsFirstPage {
				room = 400
			}
			if s.CropHeight > room {
				t.Fatalf("%s: page %d is %d rows, canvas holds %d", tc.name, i, s.CropHeight, room)
			}
		}
	}
}

func TestPlanRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name   string
		total  int
		page   int
		margin int
	}{
		{"zero total", 0, 400, 20},
		{"negative total", -5, 400, 20},
		{"zero page", 1000, 0, 20},
		{"negative margin", 1000, 400, -1},
		{"margins consume page", 1000, 40, 20},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FixedHeight{}.Plan(tc.total, tc.page, tc.margin, nil)
			if !failure.Is(err, failure.KindInput) {
				t.Fatalf("error = %v, want input error", err)
			}
		})
	}
}

func TestCutsStrictlyIncreasingAndCoverDocument(t *testing.T) {
	var lines []ocr.Line
	for y := 5.0; y < 5000; y += 37 {
		lines = append(lines, line(y, y+29))
	}
	strategies := []Strategy{FixedHeight{}, LineAware{}}
	for _, s := range strategies {
		for total := 1; total <= 3000; total += 97 {
			for _, page := range []int{50, 120, 400} {
				for _, margin := range []int{0, 10, 24} {
					var inDoc []ocr.Line
					for _, l := range lines {
						if l.Bottom() <= float64(total) {
							inDoc = append(inDoc, l)
						}
					}
					specs, err := s.Plan(total, page, margin, inDoc)
					if err != nil {
						t.Fatalf("%s Plan(%d,%d,%d): %v", s.Kind(), total, page, margin, err)
					}
					cuts := Cuts(specs)
					if cuts[0] != 0 || cuts[len(cuts)-1] != total {
						t.Fatalf("%s cuts %v do not cover [0,%d)", s.Kind(), cuts, total)
					}
					for i := 1; i < len(cuts); i++ {
						if cuts[i] <= cuts[i-1] {
							t.Fatalf("%s cuts not strictly increasing: %v", s.Kind(), cuts)
						}
					}
					for i, sp := range specs {
						room := page - margin
						if sp.IsFirstPage {
							room = page
						}
						if sp.CropHeight > room {
							t.Fatalf("%s page %d of %v overflows its %d row canvas", s.Kind(), i, cuts, room)
						}
					}
					// a 29 row line cannot fit a smaller canvas and is cut anyway
					if s.Kind() != KindLineAware || page-margin < 29 {
						continue
					}
					for _, c := range cuts {
						for _, l := range inDoc {
							if l.Top() < float64(c) && float64(c) < l.Bottom() {
								t.Fatalf("cut %d bisects line [%v,%v)", c, l.Top(), l.Bottom())
							}
						}
					}
				}
			}
		}
	}
}

type blankRows map[int]bool

func (b blankRows) RowIsBlank(y int, _ uint8) bool { return b[y] }

func TestWhitespaceMovesCutUpToBlankRow(t *testing.T) {
	s, err := New(KindWhitespace, Options{Rows: blankRows{350: true, 330: true, 700: true}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	specs, err := s.Plan(1000, 400, 20, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	// 380 -> nearest blank above within 57 rows is 350; 350+360=710 -> 700.
	if diff := cmp.Diff([]int{0, 350, 700, 1000}, Cuts(specs)); diff != "" {
		t.Fatalf("cuts mismatch (-want +got):\n%s", diff)
	}
}

func TestWhitespaceKeepsCutWithoutBlankRow(t *testing.T) {
	s, err := New(KindWhitespace, Options{Rows: blankRows{100: true}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	specs, err := s.Plan(1000, 400, 20, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if diff := cmp.Diff([]int{0, 380, 740, 1000}, Cuts(specs)); diff != "" {
		t.Fatalf("cuts mismatch (-want +got):\n%s", diff)
	}
}

func TestNewValidatesKind(t *testing.T) {
	if _, err := New(KindWhitespace, Options{}); !failure.Is(err, failure.KindInput) {
		t.Fatalf("whitespace without rows error = %v", err)
	}
	if _, err := New(Kind("zigzag"), Options{}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if k, err := ParseKind("Line-Aware"); err != nil || k != KindLineAware {
		t.Fatalf("ParseKind = %v, %v", k, err)
	}
	if k, err := ParseKind(""); err != nil || k != KindLineAware {
		t.Fatalf("ParseKind(empty) = %v, %v", k, err)
	}
	if _, err := ParseKind("nope"); err == nil {
		t.Fatalf("expected error for unknown strategy name")
	}
}
