// Package fonts loads TrueType programs as simple WinAnsi-encoded PDF fonts
// and measures text in them. The text layer is invisible, so only the
// advance widths have to match what a viewer computes when selecting.
package fonts

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/encoding/charmap"

	"github.com/wudi/scrollpdf/ir/semantic"
)

const (
	firstChar = 32
	lastChar  = 255
	// nonsymbolic flag: glyphs are addressed through the standard Latin set.
	flagNonsymbolic = 1 << 5
)

// LoadTrueType parses a TrueType/OpenType font and returns a semantic.Font of
// subtype TrueType with WinAnsiEncoding, widths for codes 32-255 and the full
// program embedded as FontFile2.
func LoadTrueType(name string, data []byte) (*semantic.Font, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("truetype font data is empty")
	}
	font, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse truetype: %w", err)
	}
	unitsPerEm := font.UnitsPerEm()
	if unitsPerEm == 0 {
		return nil, fmt.Errorf("invalid unitsPerEm")
	}
	buf := &sfnt.Buffer{}
	ppem := fixed.Int26_6(unitsPerEm << 6)

	baseName := strings.TrimSpace(name)
	if ps, _ := font.Name(buf, sfnt.NameIDPostScript); len(ps) > 0 {
		baseName = ps
	}
	if baseName == "" {
		baseName = "CustomTT"
	}

	missing := advance(font, buf, 0, unitsPerEm, ppem)
	widths := make(map[int]int, lastChar-firstChar+1)
	for code := firstChar; code <= lastChar; code++ {
		r := charmap.Windows1252.DecodeByte(byte(code))
		if r == utf8.RuneError {
			widths[code] = missing
			continue
		}
		gid, err := font.GlyphIndex(buf, r)
		if err != nil || gid == 0 {
			widths[code] = missing
			continue
		}
		widths[code] = advance(font, buf, gid, unitsPerEm, ppem)
	}

	metrics, _ := font.Metrics(buf, ppem, xfont.HintingNone)
	bounds, _ := font.Bounds(buf, ppem, xfont.HintingNone)
	descriptor := &semantic.FontDescriptor{
		FontName:    baseName,
		Flags:       flagNonsymbolic,
		ItalicAngle: italicAngle(font),
		Ascent:      scaleFixed(metrics.Ascent, unitsPerEm),
		Descent:     -scaleFixed(metrics.Descent, unitsPerEm),
		CapHeight:   scaleFixed(metrics.CapHeight, unitsPerEm),
		StemV:       80,
		FontBBox: [4]float64{
			scaleFixed(bounds.Min.X, unitsPerEm),
			-scaleFixed(bounds.Max.Y, unitsPerEm),
			scaleFixed(bounds.Max.X, unitsPerEm),
			-scaleFixed(bounds.Min.Y, unitsPerEm),
		},
		FontFile: data,
	}
	if descriptor.CapHeight == 0 {
		descriptor.CapHeight = descriptor.Ascent
	}

	return &semantic.Font{
		Subtype:    "TrueType",
		BaseFont:   baseName,
		Encoding:   "WinAnsiEncoding",
		FirstChar:  firstChar,
		LastChar:   lastChar,
		Widths:     widths,
		Descriptor: descriptor,
	}, nil
}

// GoRegular loads the bundled Go Regular face.
func GoRegular() (*semantic.Font, error) {
	return LoadTrueType("GoRegular", goregular.TTF)
}

// Encode converts text to WinAnsi codes. Runes outside the encoding become '?'.
func Encode(text string) []byte {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok || b < firstChar {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}

// TextWidth returns the advance width of text set in f at size, in user
// space units. Fonts without widths fall back to half an em per rune.
func TextWidth(f *semantic.Font, text string, size float64) float64 {
	if f == nil || len(f.Widths) == 0 {
		return float64(utf8.RuneCountInString(text)) * size * 0.5
	}
	var sum float64
	for _, code := range Encode(text) {
		if w, ok := f.Widths[int(code)]; ok {
			sum += float64(w)
		} else {
			sum += 500
		}
	}
	return sum / 1000 * size
}

func advance(font *sfnt.Font, buf *sfnt.Buffer, gid sfnt.GlyphIndex, unitsPerEm sfnt.Units, ppem fixed.Int26_6) int {
	adv, err := font.GlyphAdvance(buf, gid, ppem, xfont.HintingNone)
	if err != nil {
		return 0
	}
	return int(math.Round(scaleFixed(adv, unitsPerEm)))
}

func italicAngle(font *sfnt.Font) float64 {
	post := font.PostTable()
	if post == nil {
		return 0
	}
	return post.ItalicAngle
}

func scaleFixed(val fixed.Int26_6, unitsPerEm sfnt.Units) float64 {
	return float64(val) * 1000.0 / (64.0 * float64(unitsPerEm))
}
