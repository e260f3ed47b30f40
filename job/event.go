package job

import (
	"time"

	"github.com/wudi/scrollpdf/failure"
)

// EventType classifies messages emitted during a job.
type EventType string

const (
	EventPending EventType = "pending"
	EventDone    EventType = "done"
	EventError   EventType = "error"
)

// Stage labels reported in metrics.
const (
	StagePageComplete = "PAGE_COMPLETE"
	StageComplete     = "COMPLETE"
)

// Event is one progress report. A job emits zero or more pending events and
// then exactly one done or error event, unless it is terminated.
type Event struct {
	Type       EventType `json:"type"`
	JobID      string    `json:"jobId,omitempty"`
	Progress   float64   `json:"progress"`
	Stage      string    `json:"stage,omitempty"`
	PageNumber int       `json:"pageNumber,omitempty"`
	TotalPages int       `json:"totalPages,omitempty"`
	// ETA is the estimated remaining time in milliseconds.
	ETA     float64      `json:"eta,omitempty"`
	PDF     []byte       `json:"pdf,omitempty"`
	Message string       `json:"message,omitempty"`
	Kind    failure.Kind `json:"kind,omitempty"`
	Metrics *Metrics     `json:"metrics,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Metrics describe the timing of a finished page or job.
type Metrics struct {
	Stage    string  `json:"stage"`
	Progress float64 `json:"progress"`
	ETA      float64 `json:"eta"`
	// ProcessingTime is in milliseconds.
	ProcessingTime int64     `json:"processingTime"`
	Timestamp      time.Time `json:"timestamp"`
}

// Terminal reports whether e ends the event stream.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
