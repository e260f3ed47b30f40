package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/wudi/scrollpdf/config"
	"github.com/wudi/scrollpdf/job"
	"github.com/wudi/scrollpdf/observability"
	"github.com/wudi/scrollpdf/ocr/tesseract"
	"github.com/wudi/scrollpdf/server"
)

const usage = `usage:
  scroll2pdf convert -in doc.md -out doc.pdf [-config cfg.yaml]
  scroll2pdf serve [-addr :8080] [-config cfg.yaml]`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "convert":
		err = runConvert(ctx, os.Args[2:])
	case "serve":
		err = runServe(ctx, os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "scroll2pdf: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	cfg  *config.Config
	orch *job.Orchestrator
	log  observability.Logger
}

func setup(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}
	opts, err := cfg.JobOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		job.WithEngineFactory(tesseract.New),
		job.WithLogger(log),
		job.WithTracer(observability.NewOtelTracer("scrollpdf")),
	)
	return &app{cfg: cfg, orch: job.New(opts...), log: log}, nil
}

func newLogger(c config.Log, w io.Writer) (observability.Logger, error) {
	level, err := observability.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	hopts := &slog.HandlerOptions{Level: level}

	var h slog.Handler = slog.NewTextHandler(w, hopts)
	if c.Format == "json" {
		h = slog.NewJSONHandler(w, hopts)
	}
	return observability.NewSlogLogger(slog.New(h)), nil
}

// terminateOnCancel stops the running job once ctx is cancelled.
func (a *app) terminateOnCancel(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if err := a.orch.Terminate(); err == nil {
				a.log.Warn("interrupted, job terminated")
			}
		case <-done:
		}
	}()
	return func() { close(done) }
}

func runConvert(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	in := fs.String("in", "", "markdown input file")
	out := fs.String("out", "", "PDF output file")
	configPath := fs.String("config", "", "YAML configuration file")
	fs.Parse(args)

	if *in == "" || *out == "" {
		return errors.New("convert requires -in and -out")
	}

	data, err := os.ReadFile(*in)
	if err != nil {
		return err
	}

	a, err := setup(*configPath)
	if err != nil {
		return err
	}
	conv, err := server.NewConverter(a.cfg, a.orch, a.log)
	if err != nil {
		return err
	}

	defer a.terminateOnCancel(ctx)()

	pdf, err := conv.Convert(ctx, string(data), func(ev job.Event) {
		if ev.Type == job.EventPending {
			fmt.Fprintf(os.Stderr, "[%3.0f%%] %s\n", ev.Progress*100, ev.Stage)
		}
	})
	if err != nil {
		return err
	}

	if err := os.WriteFile(*out, pdf, 0o644); err != nil {
		return err
	}
	a.log.Info("wrote document",
		observability.String("path", *out),
		observability.Int("bytes", len(pdf)))
	return nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "", "listen address (overrides server.addr)")
	configPath := fs.String("config", "", "YAML configuration file")
	fs.Parse(args)

	a, err := setup(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		a.cfg.Server.Addr = *addr
	}

	h, err := server.New(a.cfg, a.orch, a.log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.log.Info("listening", observability.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	a.orch.Terminate()

	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdown); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
