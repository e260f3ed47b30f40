// Package failure defines the error taxonomy shared by the conversion
// pipeline. Every error that reaches the job boundary is classified by Kind so
// the orchestrator can report it uniformly and callers can branch on it with
// errors.As or Is.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline errors.
type Kind string

const (
	// KindInput marks missing or invalid rasters, dimensions or parameters.
	KindInput Kind = "INPUT_ERROR"
	// KindOCREngine marks a failed or malformed recognition call.
	KindOCREngine Kind = "OCR_ENGINE_ERROR"
	// KindAssembly marks a failure embedding an image or drawing the text layer.
	KindAssembly Kind = "ASSEMBLY_ERROR"
	// KindResource marks benign artifacts of the OCR collaborator's internal
	// plumbing. They are logged and suppressed, never surfaced to callers.
	KindResource Kind = "RESOURCE_ERROR"
)

// Error is a classified pipeline error.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether err carries a failure of the given kind anywhere in its
// chain.
func Is(err error, kind Kind) bool {
	var fe *Error
	for err != nil {
		if !errors.As(err, &fe) {
			return false
		}
		if fe.Kind == kind {
			return true
		}
		err = fe.Cause
	}
	return false
}

// KindOf returns the outermost failure kind in err's chain, or "" when err is
// unclassified.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Input builds an input error.
func Input(op, format string, args ...any) *Error {
	return &Error{Kind: KindInput, Op: op, Message: fmt.Sprintf(format, args...)}
}

// OCREngine wraps a recognition failure.
func OCREngine(op string, cause error) *Error {
	return &Error{Kind: KindOCREngine, Op: op, Message: "recognition failed", Cause: cause}
}

// Assembly wraps a page assembly failure.
func Assembly(op string, cause error) *Error {
	return &Error{Kind: KindAssembly, Op: op, Message: "page assembly failed", Cause: cause}
}

// Resource wraps a benign collaborator artifact.
func Resource(op string, cause error) *Error {
	return &Error{Kind: KindResource, Op: op, Message: "engine resource artifact", Cause: cause}
}
