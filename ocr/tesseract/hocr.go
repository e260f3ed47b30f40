package tesseract

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/wudi/scrollpdf/ocr"
)

// lineClasses are the hOCR classes Tesseract uses for a text line.
var lineClasses = map[string]bool{
	"ocr_line":      true,
	"ocr_textfloat": true,
	"ocr_header":    true,
	"ocr_caption":   true,
}

// parseHOCR extracts lines and words from Tesseract's hOCR output.
func parseHOCR(r io.Reader) ([]ocr.Line, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse hocr: %w", err)
	}
	var lines []ocr.Line
	var walk func(*html.Node) error
	walk = func(n *html.Node) error {
		if n.Type == html.ElementNode && n.DataAtom == atom.Span && lineClasses[attr(n, "class")] {
			line, err := parseLine(n)
			if err != nil {
				return err
			}
			if len(line.Words) > 0 {
				lines = append(lines, line)
			}
			return nil
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(doc); err != nil {
		return nil, err
	}
	return lines, nil
}

func parseLine(n *html.Node) (ocr.Line, error) {
	props := titleProps(attr(n, "title"))
	box, err := parseBBox(props["bbox"])
	if err != nil {
		return ocr.Line{}, fmt.Errorf("line bbox: %w", err)
	}
	line := ocr.Line{BBox: box, Baseline: ocr.Baseline{Y0: box.Y1, Y1: box.Y1}}
	if bl := strings.Fields(props["baseline"]); len(bl) == 2 {
		slope, err1 := strconv.ParseFloat(bl[0], 64)
		off, err2 := strconv.ParseFloat(bl[1], 64)
		if err1 == nil && err2 == nil {
			line.Baseline.Y0 = box.Y1 + off
			line.Baseline.Y1 = box.Y1 + off + slope*box.Width()
		}
	}

	var texts []string
	var sum float64
	var walk func(*html.Node) error
	walk = func(c *html.Node) error {
		if c.Type == html.ElementNode && attr(c, "class") == "ocrx_word" {
			w, err := parseWord(c)
			if err != nil {
				return err
			}
			if w.Text != "" {
				line.Words = append(line.Words, w)
				texts = append(texts, w.Text)
				sum += w.Confidence
			}
			return nil
		}
		for cc := c.FirstChild; cc != nil; cc = cc.NextSibling {
			if err := walk(cc); err != nil {
				return err
			}
		}
		return nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := walk(c); err != nil {
			return ocr.Line{}, err
		}
	}
	if len(line.Words) > 0 {
		line.Text = strings.Join(texts, " ")
		line.Confidence = sum / float64(len(line.Words))
	}
	return line, nil
}

func parseWord(n *html.Node) (ocr.Word, error) {
	props := titleProps(attr(n, "title"))
	box, err := parseBBox(props["bbox"])
	if err != nil {
		return ocr.Word{}, fmt.Errorf("word bbox: %w", err)
	}
	w := ocr.Word{Text: strings.TrimSpace(text(n)), BBox: box}
	if v := props["x_wconf"]; v != "" {
		if conf, err := strconv.ParseFloat(v, 64); err == nil {
			w.Confidence = conf
		}
	}
	return w, nil
}

// titleProps splits an hOCR title such as "bbox 1 2 3 4; x_wconf 91" into
// property name and value.
func titleProps(title string) map[string]string {
	props := make(map[string]string)
	for _, part := range strings.Split(title, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, " ")
		props[name] = strings.TrimSpace(value)
	}
	return props
}

func parseBBox(s string) (ocr.BBox, error) {
	f := strings.Fields(s)
	if len(f) != 4 {
		return ocr.BBox{}, fmt.Errorf("malformed bbox %q", s)
	}
	var v [4]float64
	for i, p := range f {
		n, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return ocr.BBox{}, fmt.Errorf("malformed bbox %q: %w", s, err)
		}
		v[i] = n
	}
	return ocr.BBox{X0: v[0], Y0: v[1], X1: v[2], Y1: v[3]}, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}
