package ocr

import (
	"context"
	"errors"
	"image"
	"strings"

	"github.com/wudi/scrollpdf/failure"
	"github.com/wudi/scrollpdf/observability"
)

// ErrResourceArtifact marks an error raised by an engine's internal plumbing
// that does not affect recognition results. Adapters wrap such errors with it
// so the suppression filter can match them without string inspection.
var ErrResourceArtifact = errors.New("engine resource artifact")

// DefaultIgnorable lists message fragments of known-benign engine errors.
var DefaultIgnorable = []string{
	"DataCloneError",
	"could not be cloned",
}

// Ignorable reports whether err is a known-benign engine artifact: either it
// wraps ErrResourceArtifact, is classified as a resource failure, or its
// message contains one of the fragments.
func Ignorable(err error, fragments []string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrResourceArtifact) || failure.Is(err, failure.KindResource) {
		return true
	}
	msg := err.Error()
	for _, f := range fragments {
		if f != "" && strings.Contains(msg, f) {
			return true
		}
	}
	return false
}

type suppressed struct {
	engine    Engine
	fragments []string
	log       observability.Logger
}

// Suppress wraps engine so that ignorable errors from Recognize and Terminate
// are logged at debug level and dropped. Any other error is classified as an
// OCR engine failure.
func Suppress(engine Engine, fragments []string, log observability.Logger) Engine {
	if log == nil {
		log = observability.NopLogger{}
	}
	return &suppressed{engine: engine, fragments: fragments, log: log}
}

func (s *suppressed) Recognize(ctx context.Context, img image.Image, region *Region) ([]Line, error) {
	lines, err := s.engine.Recognize(ctx, img, region)
	if err == nil {
		return lines, nil
	}
	if Ignorable(err, s.fragments) {
		s.log.Debug("suppressed engine artifact", observability.String("op", "recognize"), observability.Error("error", err))
		return lines, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if failure.KindOf(err) == failure.KindOCREngine {
		return nil, err
	}
	return nil, failure.OCREngine("recognize", err)
}

func (s *suppressed) Terminate() error {
	err := s.engine.Terminate()
	if err == nil {
		return nil
	}
	if Ignorable(err, s.fragments) {
		s.log.Debug("suppressed engine artifact", observability.String("op", "terminate"), observability.Error("error", err))
		return nil
	}
	return failure.OCREngine("terminate", err)
}
