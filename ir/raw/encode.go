package raw

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Encode appends the PDF syntax of o to buf.
func Encode(buf *bytes.Buffer, o Object) {
	switch v := o.(type) {
	case NameObj:
		buf.WriteByte('/')
		buf.WriteString(EscapeName(v.Val))
	case NumberObj:
		if v.IsInt {
			buf.WriteString(strconv.FormatInt(v.I, 10))
		} else {
			buf.WriteString(FormatNumber(v.F))
		}
	case BoolObj:
		buf.WriteString(strconv.FormatBool(v.V))
	case NullObj:
		buf.WriteString("null")
	case StringObj:
		if v.Hex {
			buf.WriteByte('<')
			buf.WriteString(hex.EncodeToString(v.Bytes))
			buf.WriteByte('>')
		} else {
			buf.Write(EscapeString(v.Bytes))
		}
	case *ArrayObj:
		buf.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				buf.WriteByte(' ')
			}
			Encode(buf, it)
		}
		buf.WriteByte(']')
	case *DictObj:
		encodeDict(buf, v)
	case *StreamObj:
		d := v.Dict
		if d == nil {
			d = Dict()
		}
		d.Set("Length", Int(int64(len(v.Data))))
		encodeDict(buf, d)
		buf.WriteString("\nstream\n")
		buf.Write(v.Data)
		buf.WriteString("\nendstream")
	case RefObj:
		fmt.Fprintf(buf, "%d %d R", v.R.Num, v.R.Gen)
	default:
		buf.WriteString("null")
	}
}

func encodeDict(buf *bytes.Buffer, d *DictObj) {
	keys := make([]string, 0, len(d.KV))
	for k := range d.KV {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf.WriteString("<<")
	for _, k := range keys {
		buf.WriteByte('/')
		buf.WriteString(EscapeName(k))
		buf.WriteByte(' ')
		Encode(buf, d.KV[k])
	}
	buf.WriteString(">>")
}

// FormatNumber writes a real with at most four decimals and never in
// exponent form.
func FormatNumber(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	r := math.Round(v*1e4) / 1e4
	if r == 0 {
		return "0"
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// EscapeString renders b as a literal string including the parentheses.
func EscapeString(b []byte) []byte {
	var out bytes.Buffer
	out.WriteByte('(')
	for _, ch := range b {
		switch ch {
		case '\\', '(', ')':
			out.WriteByte('\\')
			out.WriteByte(ch)
		case '\n':
			out.WriteString("\\n")
		case '\r':
			out.WriteString("\\r")
		case '\t':
			out.WriteString("\\t")
		case '\b':
			out.WriteString("\\b")
		case '\f':
			out.WriteString("\\f")
		default:
			if ch < 0x20 || ch >= 0x7f {
				fmt.Fprintf(&out, "\\%03o", ch)
			} else {
				out.WriteByte(ch)
			}
		}
	}
	out.WriteByte(')')
	return out.Bytes()
}

// EscapeName hex-escapes the characters a name cannot carry literally.
func EscapeName(s string) string {
	var out []byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch < '!' || ch > '~' || bytes.IndexByte([]byte("#/()<>[]{}%"), ch) >= 0 {
			out = append(out, fmt.Sprintf("#%02X", ch)...)
			continue
		}
		out = append(out, ch)
	}
	return string(out)
}
