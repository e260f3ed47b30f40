// Package server exposes conversion jobs over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/wudi/scrollpdf/config"
	"github.com/wudi/scrollpdf/failure"
	"github.com/wudi/scrollpdf/job"
	"github.com/wudi/scrollpdf/observability"
)

const (
	contentTypePDF    = "application/pdf"
	contentTypeNDJSON = "application/x-ndjson"
	headerJobID       = "X-Job-ID"
)

type Handler struct {
	conv *Converter
	orch *job.Orchestrator
	cfg  config.Server
	log  observability.Logger
}

func New(cfg *config.Config, orch *job.Orchestrator, log observability.Logger) (*Handler, error) {
	if log == nil {
		log = observability.NopLogger{}
	}
	conv, err := NewConverter(cfg, orch, log)
	if err != nil {
		return nil, err
	}
	return &Handler{conv: conv, orch: orch, cfg: cfg.Server, log: log}, nil
}

// Router returns the full HTTP handler with middleware.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	origins := h.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{headerJobID},
		MaxAge:         300,
	}))

	h.Attach(r)
	return r
}

func (h *Handler) Attach(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/convert", h.handleConvert)
		r.Get("/jobs/current", h.handleState)
		r.Delete("/jobs/current", h.handleTerminate)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJson(w, map[string]string{"status": "ok"})
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	writeJson(w, map[string]job.State{"state": h.orch.State()})
}

func (h *Handler) handleTerminate(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.Terminate(); err != nil {
		if errors.Is(err, job.ErrNoRunningJob) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)

	markdown, err := readMarkdown(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(markdown) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("document is empty"))
		return
	}

	ctx := r.Context()
	in, events, err := h.conv.Start(ctx, markdown)
	if err != nil {
		switch {
		case errors.Is(err, job.ErrBusy):
			writeError(w, http.StatusConflict, err)
		case failure.Is(err, failure.KindInput):
			writeError(w, http.StatusBadRequest, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	log := h.log.With(observability.String(observability.AttrJobID, in.JobID))
	log.Info("job started", observability.String("remote", r.RemoteAddr))
	w.Header().Set(headerJobID, in.JobID)

	// a client that goes away stops its job
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			if err := h.orch.TerminateJob(in.JobID); err == nil {
				log.Info("client disconnected, job terminated")
			}
		case <-done:
		}
	}()

	if wantsPDF(r) {
		h.respondPDF(w, events)
		return
	}
	h.streamEvents(w, events)
}

func (h *Handler) respondPDF(w http.ResponseWriter, events <-chan job.Event) {
	var last *job.Event
	for ev := range events {
		if ev.Terminal() {
			ev := ev
			last = &ev
		}
	}
	switch {
	case last == nil:
		writeError(w, http.StatusServiceUnavailable, job.ErrTerminated)
	case last.Type == job.EventError:
		writeError(w, statusOf(last.Kind), errors.New(last.Message))
	default:
		w.Header().Set("Content-Type", contentTypePDF)
		w.Header().Set("Content-Disposition", `attachment; filename="document.pdf"`)
		w.Write(last.PDF)
	}
}

func (h *Handler) streamEvents(w http.ResponseWriter, events <-chan job.Event) {
	w.Header().Set("Content-Type", contentTypeNDJSON)
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			h.log.Debug("event write failed", observability.Error("error", err))
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// readMarkdown accepts a multipart "file" field or a raw body.
func readMarkdown(r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, _, err := r.FormFile("file")
		if err != nil {
			return "", fmt.Errorf("read file field: %w", err)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func wantsPDF(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mediaType == contentTypePDF {
			return true
		}
	}
	return false
}

func statusOf(kind failure.Kind) int {
	switch kind {
	case failure.KindInput:
		return http.StatusUnprocessableEntity
	case failure.KindOCREngine:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJson(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	text := http.StatusText(code)

	if err != nil {
		text = err.Error()
	}

	json.NewEncoder(w).Encode(map[string]string{"error": text})
}
