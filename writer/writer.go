// Package writer serializes a semantic document into a classic PDF 1.7 file
// with a cross-reference table.
package writer

import (
	"context"
	"io"

	"github.com/wudi/scrollpdf/ir/raw"
	"github.com/wudi/scrollpdf/ir/semantic"
)

type Config struct {
	// Compression is the zlib level for content and font streams. Zero
	// leaves them uncompressed. Raw image samples are always compressed.
	Compression int
	// Deterministic omits the creation date so identical input produces
	// identical bytes.
	Deterministic bool
}

type Writer interface {
	Write(ctx context.Context, doc *semantic.Document, w io.Writer, cfg Config) error
	SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error)
}

// New returns the default writer.
func New() Writer { return &impl{} }

// Write serializes doc with the default writer.
func Write(ctx context.Context, doc *semantic.Document, w io.Writer, cfg Config) error {
	return New().Write(ctx, doc, w, cfg)
}
