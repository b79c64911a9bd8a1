// Package web provides the HTTP surface of the gpio-sensor daemon: the
// control file under /proc/{name} and a status page.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/nullpointer/gpio-sensor/internal/controlfile"
	"github.com/nullpointer/gpio-sensor/internal/status"
	"github.com/rs/zerolog"
)

// ProcPrefix is the mount point of the control file.
const ProcPrefix = "/proc/"

// Server serves the control file and the status page over HTTP.
type Server struct {
	httpServer *http.Server
	file       *controlfile.File
	tracker    *status.Tracker
	log        zerolog.Logger
}

// New creates a Server exposing file and reading state from tracker.
func New(addr string, file *controlfile.File, tracker *status.Tracker, log zerolog.Logger) *Server {
	s := &Server{file: file, tracker: tracker, log: log}

	r := chi.NewRouter()
	r.Use(LoggerMiddleware(&s.log))
	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)
	r.Get(ProcPrefix+"{name}", s.handleRead)
	r.Put(ProcPrefix+"{name}", s.handleWrite)
	r.Post(ProcPrefix+"{name}", s.handleWrite)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Handler returns the router, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap, s.file.Name()); err != nil {
		s.log.Error().Err(err).Msg("render status page")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handleRead is one open-read-close of the control file. The caller buffer
// size comes from ?size=, defaulting to the file capacity.
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "name") != s.file.Name() {
		http.NotFound(w, r)
		return
	}
	size := s.file.Capacity()
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, fmt.Sprintf("invalid size %q", v), http.StatusBadRequest)
			return
		}
		size = n
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := s.file.Open().ReadTo(w, size); err != nil {
		if errors.Is(err, controlfile.ErrFault) {
			// Part of the body may already be on the wire.
			s.log.Warn().Err(err).Msg("control file read aborted")
			return
		}
		respondError(w, err)
	}
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "name") != s.file.Name() {
		http.NotFound(w, r)
		return
	}
	n, err := s.file.Open().WriteFrom(r.Body, r.ContentLength)
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("X-Bytes-Written", strconv.Itoa(n))
	w.WriteHeader(http.StatusNoContent)
}

// StatusCode maps control file errors to HTTP status codes.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, controlfile.ErrNoSpace):
		return http.StatusInsufficientStorage
	case errors.Is(err, controlfile.ErrFault):
		return http.StatusBadRequest
	case errors.Is(err, controlfile.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), StatusCode(err))
}
