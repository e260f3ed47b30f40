package server

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/wudi/scrollpdf/config"
	"github.com/wudi/scrollpdf/job"
	"github.com/wudi/scrollpdf/observability"
	"github.com/wudi/scrollpdf/raster"
	"github.com/wudi/scrollpdf/render"
)

// Converter renders markdown and hands the result to the orchestrator.
type Converter struct {
	cfg      *config.Config
	renderer *render.Renderer
	orch     *job.Orchestrator
	log      observability.Logger
}

// NewConverter builds the renderer described by cfg.
func NewConverter(cfg *config.Config, orch *job.Orchestrator, log observability.Logger) (*Converter, error) {
	if log == nil {
		log = observability.NopLogger{}
	}
	opts := cfg.RenderOptions()
	opts.Logger = log
	r, err := render.New(opts)
	if err != nil {
		return nil, err
	}
	return &Converter{cfg: cfg, renderer: r, orch: orch, log: log}, nil
}

// Prepare renders markdown into a job input with a fresh job ID.
func (c *Converter) Prepare(ctx context.Context, markdown string) (*job.Input, error) {
	res, err := c.renderer.Render(ctx, markdown)
	if err != nil {
		return nil, err
	}
	var sample *raster.Raster
	if size := c.cfg.CalibrationSize(); size > 0 {
		if sample, err = c.renderer.Calibration(size); err != nil {
			res.Release()
			return nil, err
		}
	}
	in, err := c.cfg.Input(res, sample)
	if err != nil {
		res.Release()
		sample.Release()
		return nil, err
	}
	in.JobID = uuid.NewString()
	c.log.Debug("prepared job",
		observability.String(observability.AttrJobID, in.JobID),
		observability.Int("raster_height", res.Visible.Height))
	return in, nil
}

// Start prepares markdown and starts the job in the background.
func (c *Converter) Start(ctx context.Context, markdown string) (*job.Input, <-chan job.Event, error) {
	in, err := c.Prepare(ctx, markdown)
	if err != nil {
		return nil, nil, err
	}
	events, err := c.orch.Start(ctx, in)
	if err != nil {
		in.Release()
		return nil, nil, err
	}
	return in, events, nil
}

// Convert runs a job to completion and returns the PDF.
func (c *Converter) Convert(ctx context.Context, markdown string, progress func(job.Event)) ([]byte, error) {
	in, err := c.Prepare(ctx, markdown)
	if err != nil {
		return nil, err
	}
	var pdf []byte
	err = c.orch.Run(ctx, in, func(ev job.Event) {
		if ev.Type == job.EventDone {
			pdf = ev.PDF
		}
		if progress != nil {
			progress(ev)
		}
	})
	if err != nil {
		if err == job.ErrBusy {
			in.Release()
		}
		return nil, err
	}
	if pdf == nil {
		return nil, fmt.Errorf("job %s finished without a document", in.JobID)
	}
	return pdf, nil
}
