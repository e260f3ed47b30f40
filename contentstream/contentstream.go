// Package contentstream serializes page operations into PDF content stream
// syntax.
package contentstream

import (
	"bytes"

	"github.com/wudi/scrollpdf/ir/raw"
	"github.com/wudi/scrollpdf/ir/semantic"
)

// Encode writes ops one per line, operands first.
func Encode(ops []semantic.Operation) []byte {
	if len(ops) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, op := range ops {
		for _, operand := range op.Operands {
			encodeOperand(&buf, operand)
			buf.WriteByte(' ')
		}
		buf.WriteString(op.Operator)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func encodeOperand(buf *bytes.Buffer, op semantic.Operand) {
	switch v := op.(type) {
	case semantic.NumberOperand:
		buf.WriteString(raw.FormatNumber(v.Value))
	case semantic.NameOperand:
		buf.WriteByte('/')
		buf.WriteString(raw.EscapeName(v.Value))
	case semantic.StringOperand:
		buf.Write(raw.EscapeString(v.Value))
	case semantic.ArrayOperand:
		buf.WriteByte('[')
		for i, it := range v.Values {
			if i > 0 {
				buf.WriteByte(' ')
			}
			encodeOperand(buf, it)
		}
		buf.WriteByte(']')
	default:
		buf.WriteString("null")
	}
}
