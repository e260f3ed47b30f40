package calibration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dop251/goja"
)

const defaultScriptTimeout = time.Second

// ScriptCalibrator evaluates a JavaScript expression with the globals known
// and measured bound, and uses its numeric result as the multiplier. It lets
// operators retune the bias correction for a different OCR backend without a
// rebuild, e.g. "known / measured * 0.97".
type ScriptCalibrator struct {
	Timeout time.Duration

	mu      sync.Mutex
	program *goja.Program
	vm      *goja.Runtime
}

// NewScriptCalibrator compiles src.
func NewScriptCalibrator(src string) (*ScriptCalibrator, error) {
	prog, err := goja.Compile("calibration", src, true)
	if err != nil {
		return nil, fmt.Errorf("compile calibration script: %w", err)
	}
	return &ScriptCalibrator{Timeout: defaultScriptTimeout, program: prog, vm: goja.New()}, nil
}

func (s *ScriptCalibrator) Calibrate(known, measured float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultScriptTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			s.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()
	// a timeout must not outlive this call
	defer func() {
		close(done)
		<-exited
		s.vm.ClearInterrupt()
	}()

	if err := s.vm.Set("known", known); err != nil {
		return 0, err
	}
	if err := s.vm.Set("measured", measured); err != nil {
		return 0, err
	}
	val, err := s.vm.RunProgram(s.program)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if cause := interrupted.Unwrap(); cause != nil {
				return 0, fmt.Errorf("calibration script: %w", cause)
			}
			return 0, fmt.Errorf("calibration script interrupted")
		}
		return 0, fmt.Errorf("calibration script: %w", err)
	}
	m := val.ToFloat()
	if math.IsNaN(m) || math.IsInf(m, 0) || m <= 0 {
		return 0, fmt.Errorf("calibration script returned %v, want a positive finite number", val)
	}
	return m, nil
}
