package ocr

// Rebase shifts every box and baseline in lines vertically by dy and returns
// the shifted copy. It is used to move document-level OCR results into a page
// crop's local coordinate system.
func Rebase(lines []Line, dy float64) []Line {
	out := make([]Line, len(lines))
	for i, l := range lines {
		l.BBox = shift(l.BBox, dy)
		l.Baseline = Baseline{Y0: l.Baseline.Y0 + dy, Y1: l.Baseline.Y1 + dy}
		if len(l.Words) > 0 {
			words := make([]Word, len(l.Words))
			for j, w := range l.Words {
				w.BBox = shift(w.BBox, dy)
				words[j] = w
			}
			l.Words = words
		}
		out[i] = l
	}
	return out
}

// Within keeps the lines whose vertical midpoint lies in [top, bottom).
func Within(lines []Line, top, bottom float64) []Line {
	var out []Line
	for _, l := range lines {
		mid := (l.BBox.Y0 + l.BBox.Y1) / 2
		if mid >= top && mid < bottom {
			out = append(out, l)
		}
	}
	return out
}

// Offset translates region-local results back to full-image coordinates.
func Offset(lines []Line, dx, dy float64) []Line {
	out := Rebase(lines, dy)
	if dx == 0 {
		return out
	}
	for i := range out {
		out[i].BBox.X0 += dx
		out[i].BBox.X1 += dx
		for j := range out[i].Words {
			out[i].Words[j].BBox.X0 += dx
			out[i].Words[j].BBox.X1 += dx
		}
	}
	return out
}

func shift(b BBox, dy float64) BBox {
	return BBox{X0: b.X0, Y0: b.Y0 + dy, X1: b.X1, Y1: b.Y1 + dy}
}
