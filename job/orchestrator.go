// Package job runs one conversion at a time: it initializes the OCR engine,
// calibrates, plans page boundaries, assembles every page in order while
// reporting progress, and serializes the PDF.
package job

import (
	"bytes"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wudi/scrollpdf/assembler"
	"github.com/wudi/scrollpdf/builder"
	"github.com/wudi/scrollpdf/calibration"
	"github.com/wudi/scrollpdf/failure"
	"github.com/wudi/scrollpdf/ir/semantic"
	"github.com/wudi/scrollpdf/observability"
	"github.com/wudi/scrollpdf/ocr"
	"github.com/wudi/scrollpdf/pagination"
	"github.com/wudi/scrollpdf/raster"
	"github.com/wudi/scrollpdf/writer"
)

// ErrBusy is returned when a job is started while another one runs.
var ErrBusy = errors.New("job already running")

// ErrNoRunningJob is returned by Terminate when nothing runs.
var ErrNoRunningJob = errors.New("no running job")

// ErrTerminated is returned by Run for a job stopped with Terminate.
var ErrTerminated = errors.New("job terminated")

// DefaultBatchSize is how many pages are processed between reclaims.
const DefaultBatchSize = 5

const producer = "scrollpdf"

// Orchestrator owns the single active job.
type Orchestrator struct {
	mu      sync.Mutex
	state   State
	current *run

	factory    ocr.Factory
	engineOpts ocr.Options
	calibrator calibration.Calibrator
	pageOpts   pagination.Options
	asmOpts    []assembler.Option
	writerCfg  writer.Config
	batchSize  int
	reclaim    func()
	now        func() time.Time
	log        observability.Logger
	tracer     observability.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEngineFactory sets how OCR engines are created.
func WithEngineFactory(f ocr.Factory) Option {
	return func(o *Orchestrator) { o.factory = f }
}

// WithEngineDefaults sets engine options a job does not override, such as
// DPI, trained-data location and ignorable error fragments.
func WithEngineDefaults(opts ocr.Options) Option {
	return func(o *Orchestrator) { o.engineOpts = opts }
}

// WithCalibrator replaces calibration.Default.
func WithCalibrator(c calibration.Calibrator) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.calibrator = c
		}
	}
}

// WithPagination sets the whitespace strategy parameters.
func WithPagination(opts pagination.Options) Option {
	return func(o *Orchestrator) { o.pageOpts = opts }
}

// WithAssemblerOptions appends page assembly options.
func WithAssemblerOptions(opts ...assembler.Option) Option {
	return func(o *Orchestrator) { o.asmOpts = append(o.asmOpts, opts...) }
}

// WithWriterConfig sets the serialization config.
func WithWriterConfig(cfg writer.Config) Option {
	return func(o *Orchestrator) { o.writerCfg = cfg }
}

// WithBatchSize sets the number of pages between reclaims.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithReclaim replaces the memory reclaim hook.
func WithReclaim(fn func()) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.reclaim = fn
		}
	}
}

// WithClock sets the time source used for durations and timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t observability.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// New returns an idle orchestrator.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		state:      StateIdle,
		calibrator: calibration.Default,
		writerCfg:  writer.Config{Compression: zlib.DefaultCompression},
		batchSize:  DefaultBatchSize,
		reclaim:    debug.FreeOSMemory,
		now:        time.Now,
		log:        observability.NopLogger{},
		tracer:     observability.NopTracer(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

type run struct {
	id       string
	ctx      context.Context
	cancel   context.CancelFunc
	stop     chan struct{}
	stopOnce sync.Once
}

func (r *run) stopped() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

// Start begins a job in the background. Events arrive on the returned
// channel, which is closed when the job ends.
func (o *Orchestrator) Start(ctx context.Context, in *Input) (<-chan Event, error) {
	r, err := o.acquire(ctx, in)
	if err != nil {
		return nil, err
	}
	events := make(chan Event, 8)
	go func() {
		defer close(events)
		_ = o.execute(r, in, func(ev Event) {
			select {
			case events <- ev:
			case <-r.stop:
			}
		})
	}()
	return events, nil
}

// Run executes a job synchronously, passing every event to emit.
func (o *Orchestrator) Run(ctx context.Context, in *Input, emit func(Event)) error {
	r, err := o.acquire(ctx, in)
	if err != nil {
		return err
	}
	if emit == nil {
		emit = func(Event) {}
	}
	return o.execute(r, in, emit)
}

// Terminate stops the running job. No further events are emitted for it;
// its resources are still released.
func (o *Orchestrator) Terminate() error {
	return o.terminate("")
}

// TerminateJob stops the running job only if its ID is id.
func (o *Orchestrator) TerminateJob(id string) error {
	return o.terminate(id)
}

func (o *Orchestrator) terminate(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil || !isRunning(o.state) || (id != "" && o.current.id != id) {
		return ErrNoRunningJob
	}
	o.state = StateTerminated
	r := o.current
	r.stopOnce.Do(func() { close(r.stop) })
	r.cancel()
	o.log.Info("job terminated", observability.String(observability.AttrJobID, r.id))
	return nil
}

func (o *Orchestrator) acquire(ctx context.Context, in *Input) (*run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if isRunning(o.state) {
		return nil, ErrBusy
	}
	if o.factory == nil {
		return nil, fmt.Errorf("job: no OCR engine factory configured")
	}
	if !isValidTransition(o.state, StateInitializing) {
		return nil, fmt.Errorf("job: invalid transition: %s -> %s", o.state, StateInitializing)
	}
	id := uuid.NewString()
	if in != nil && in.JobID != "" {
		id = in.JobID
	}
	rctx, cancel := context.WithCancel(ctx)
	r := &run{id: id, ctx: rctx, cancel: cancel, stop: make(chan struct{})}
	o.current = r
	o.state = StateInitializing
	return r, nil
}

// transition moves the running job forward unless it was terminated.
func (o *Orchestrator) transition(r *run, to State) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if r.stopped() {
		return ErrTerminated
	}
	if !isValidTransition(o.state, to) {
		return fmt.Errorf("job: invalid transition: %s -> %s", o.state, to)
	}
	o.state = to
	return nil
}

// pipeline carries the per-job values through the stages.
type pipeline struct {
	o       *Orchestrator
	r       *run
	in      *Input
	log     observability.Logger
	emit    func(Event)
	started time.Time

	engine  ocr.Engine
	cleanup sync.Once
}

func (o *Orchestrator) execute(r *run, in *Input, deliver func(Event)) (err error) {
	defer r.cancel()
	log := o.log.With(observability.String(observability.AttrJobID, r.id))
	p := &pipeline{o: o, r: r, in: in, log: log, started: o.now()}
	p.emit = func(ev Event) {
		if r.stopped() {
			return
		}
		ev.JobID = r.id
		if ev.Timestamp.IsZero() {
			ev.Timestamp = o.now()
		}
		deliver(ev)
	}

	ctx, span := o.tracer.StartSpan(r.ctx, "job")
	span.SetTag(observability.AttrJobID, r.id)
	defer func() {
		p.release()
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()

	pdf, err := p.process(ctx)
	if err == nil {
		err = o.transition(r, StateDone)
	}
	if err == nil {
		total := o.now().Sub(p.started).Milliseconds()
		log.Info("job complete", observability.Int(observability.AttrOutputBytes, len(pdf)), observability.Int64(observability.AttrDurationMs, total))
		p.emit(Event{
			Type:     EventDone,
			Progress: 1,
			Stage:    StageComplete,
			PDF:      pdf,
			Metrics: &Metrics{
				Stage:          StageComplete,
				Progress:       1,
				ProcessingTime: total,
				Timestamp:      o.now(),
			},
		})
		return nil
	}

	if r.stopped() {
		log.Debug("job stopped", observability.Error("error", err))
		return ErrTerminated
	}
	o.fail(r)
	log.Error("job failed", observability.Error("error", err))
	p.emit(Event{Type: EventError, Message: err.Error(), Kind: failure.KindOf(err)})
	return err
}

func (o *Orchestrator) fail(r *run) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !r.stopped() && isValidTransition(o.state, StateError) {
		o.state = StateError
	}
}

// release terminates the engine and drops the input rasters exactly once.
func (p *pipeline) release() {
	p.cleanup.Do(func() {
		if p.engine != nil {
			if err := p.engine.Terminate(); err != nil {
				p.log.Warn("engine terminate failed", observability.Error("error", err))
			}
		}
		if p.in != nil {
			p.in.Release()
		}
	})
}

func (p *pipeline) pending(progress float64, stage string, page, total int, eta float64, m *Metrics) {
	p.emit(Event{
		Type:       EventPending,
		Progress:   progress,
		Stage:      stage,
		PageNumber: page,
		TotalPages: total,
		ETA:        eta,
		Metrics:    m,
	})
}

func (p *pipeline) process(ctx context.Context) ([]byte, error) {
	o, in := p.o, p.in
	if err := in.validate(); err != nil {
		return nil, err
	}
	p.pending(0.1, "Initializing worker...", 0, 0, 0, nil)

	engineOpts := in.engineOptions(o.engineOpts)
	if o.factory != nil {
		eng, err := o.factory(ctx, engineOpts)
		if err != nil {
			if failure.KindOf(err) == "" {
				err = failure.OCREngine("initialize", err)
			}
			return nil, err
		}
		p.engine = ocr.Suppress(eng, engineOpts.Ignorable, p.log)
	}

	visible, ocrSafe := in.Visible, in.OCR
	ratio := calibration.PageRatio(float64(visible.Width), float64(in.PageHeight), in.Width, in.Height)
	factor, err := p.calibrate(ctx, ratio)
	if err != nil {
		return nil, err
	}

	if err := o.transition(p.r, StatePlanning); err != nil {
		return nil, err
	}
	p.pending(0.2, "Preparing pages...", 0, 0, 0, nil)
	specs, docLines, err := p.plan(ctx)
	if err != nil {
		return nil, err
	}
	total := len(specs)

	if err := o.transition(p.r, StateProcessingPages); err != nil {
		return nil, err
	}
	p.pending(0.3, "Processing pages...", 1, total, 0, nil)

	pdf := builder.NewBuilder().SetInfo(&semantic.DocumentInfo{Title: in.Title, Producer: producer, Creator: producer})
	if in.Language != "" {
		pdf.SetLanguage(in.Language)
	}
	asmOpts := append([]assembler.Option{
		assembler.WithThreshold(in.OCRSettings.ConfidenceThreshold),
		assembler.WithLogger(p.log),
		assembler.WithTracer(o.tracer),
	}, o.asmOpts...)
	if lvl, _ := observability.ParseLevel(in.DebugLevel); lvl <= observability.LevelVerbose {
		asmOpts = append(asmOpts, assembler.WithDebugBoxes(true))
	}
	if in.TextLayerSource == assembler.SourceDocument {
		asmOpts = append(asmOpts, assembler.WithDocumentLines(docLines))
	}
	asm, err := assembler.New(pdf, p.engine, factor, assembler.Layout{
		PageWidth:      in.Width,
		PageHeight:     in.Height,
		Margin:         in.Margin,
		PageHeightPx:   in.PageHeight,
		WorkspaceScale: in.WorkspaceScale,
	}, asmOpts...)
	if err != nil {
		return nil, err
	}

	var elapsed time.Duration
	for i, spec := range specs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := o.now()
		pctx, span := o.tracer.StartSpan(ctx, "job.page")
		span.SetTag(observability.AttrPage, i+1)
		_, err := asm.Assemble(pctx, spec, visible, ocrSafe)
		if err != nil {
			span.SetError(err)
			span.Finish()
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		span.Finish()
		dur := o.now().Sub(start)
		elapsed += dur

		done := i + 1
		progress := 0.3 + 0.6*float64(done)/float64(total)
		avgMs := float64(elapsed.Milliseconds()) / float64(done)
		eta := avgMs * float64(total-done)
		p.log.Info("page complete",
			observability.Int(observability.AttrPage, done),
			observability.Int(observability.AttrTotalPages, total),
			observability.Duration("duration", dur))
		p.pending(progress, fmt.Sprintf("Processing page %d...", done), done, total, eta, &Metrics{
			Stage:          StagePageComplete,
			Progress:       progress,
			ETA:            eta,
			ProcessingTime: dur.Milliseconds(),
			Timestamp:      o.now(),
		})
		if done%o.batchSize == 0 {
			o.reclaim()
		}
	}

	if err := o.transition(p.r, StateFinalizing); err != nil {
		return nil, err
	}
	p.release()
	p.pending(0.95, "Generating PDF...", total, total, 0, nil)
	return p.finalize(ctx, pdf)
}

func (p *pipeline) calibrate(ctx context.Context, ratio float64) (calibration.Factor, error) {
	in := p.in
	if in.Calibration == nil || p.engine == nil {
		return calibration.Uncalibrated(in.WorkspaceScale), nil
	}
	img, err := in.Calibration.Raster.Image()
	if err != nil {
		return calibration.Factor{}, err
	}
	measured, err := calibration.MeasureSample(ctx, p.engine, img)
	if err != nil {
		if failure.KindOf(err) == "" {
			err = failure.OCREngine("calibrate", err)
		}
		return calibration.Factor{}, err
	}
	factor, err := calibration.NewFactor(p.o.calibrator, in.Calibration.KnownFontSize, measured, ratio, in.WorkspaceScale)
	if err != nil {
		return calibration.Factor{}, failure.Input("calibrate", "%v", err)
	}
	p.log.Debug("calibrated",
		observability.Float64("measured_px", measured),
		observability.Float64("multiplier", factor.Multiplier))
	return factor, nil
}

// plan recognizes the whole OCR raster when the strategy or the text layer
// needs document lines, then cuts the document into pages.
func (p *pipeline) plan(ctx context.Context) ([]pagination.PageSpec, []ocr.Line, error) {
	ctx, span := p.o.tracer.StartSpan(ctx, "job.plan")
	defer span.Finish()
	in := p.in

	kind := in.Strategy
	if kind == "" {
		kind = pagination.KindLineAware
	}
	var lines []ocr.Line
	if kind == pagination.KindLineAware || in.TextLayerSource == assembler.SourceDocument {
		if p.engine == nil {
			return nil, nil, failure.Input("plan", "strategy %s needs an OCR engine", kind)
		}
		img, err := in.OCR.Image()
		if err != nil {
			return nil, nil, err
		}
		lines, err = p.engine.Recognize(ctx, img, nil)
		if err != nil {
			span.SetError(err)
			return nil, nil, err
		}
	}

	opts := p.o.pageOpts
	opts.Logger = p.log
	opts.Rows = in.Visible
	strategy, err := pagination.New(kind, opts)
	if err != nil {
		return nil, nil, err
	}
	margin := int(in.Margin * in.WorkspaceScale)
	specs, err := strategy.Plan(in.Visible.Height, in.PageHeight, margin, lines)
	if err != nil {
		span.SetError(err)
		return nil, nil, err
	}
	if !in.AutoPaginate && len(specs) > 1 {
		specs = specs[:1]
	}
	span.SetTag(observability.AttrTotalPages, len(specs))
	p.log.Debug("planned pages",
		observability.String("strategy", string(strategy.Kind())),
		observability.Int(observability.AttrTotalPages, len(specs)),
		observability.String("cuts", fmt.Sprint(pagination.Cuts(specs))))
	return specs, lines, nil
}

func (p *pipeline) finalize(ctx context.Context, pdf builder.PDFBuilder) ([]byte, error) {
	ctx, span := p.o.tracer.StartSpan(ctx, "job.finalize")
	defer span.Finish()
	doc, err := pdf.Build()
	if err != nil {
		span.SetError(err)
		return nil, failure.Assembly("build", err)
	}
	var buf bytes.Buffer
	if err := writer.Write(ctx, doc, &buf, p.o.writerCfg); err != nil {
		span.SetError(err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, failure.Assembly("serialize", err)
	}
	span.SetTag(observability.AttrOutputBytes, buf.Len())
	return buf.Bytes(), nil
}

// compile-time check that rasters can drive the whitespace strategy.
var _ pagination.RowSource = (*raster.Raster)(nil)
