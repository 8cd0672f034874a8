// Package control exposes the overlay source over HTTP: submit documents,
// end the stream, flush, seek, toggle live mode and read statistics.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/element"
)

// DefaultMaxBodyBytes bounds POST /v1/svg bodies.
const DefaultMaxBodyBytes int64 = 4 << 20

// Source defines the methods the control plane drives.
type Source interface {
	Submit(content string, pts uint64)
	RequestEndOfStream()
	SetFlushing(active bool)
	HandleSeek(flags element.SeekFlags) bool
	SetLive(live bool)
	IsLive() bool
	Stats() element.Stats
}

// Option configures a Server.
type Option func(*Server)

// WithLogger installs the request logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithGatherer selects the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithMaxBodyBytes bounds submitted documents (<= 0 keeps the default).
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// Server is the HTTP control plane.
type Server struct {
	src      Source
	logger   zerolog.Logger
	gatherer prometheus.Gatherer
	maxBody  int64

	start time.Time
	now   func() time.Time
}

// NewServer creates a control server for src.
func NewServer(src Source, opts ...Option) *Server {
	s := &Server{
		src:      src,
		logger:   zerolog.Nop(),
		gatherer: prometheus.DefaultGatherer,
		maxBody:  DefaultMaxBodyBytes,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.start = s.now()
	return s
}

// Handler returns the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/svg", s.handleSubmit)
		r.Post("/eos", s.handleEOS)
		r.Post("/flush", s.handleFlush)
		r.Post("/seek", s.handleSeek)
		r.Put("/live", s.handleLive)
		r.Get("/stats", s.handleStats)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}).ServeHTTP)

	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("control server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("control: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("control: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control: serve: %w", err)
	}
	return nil
}

type submitResponse struct {
	PTS        uint64 `json:"pts"`
	QueueDepth int    `json:"queue_depth"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "document too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) == 0 {
		writeJSONError(w, http.StatusBadRequest, "empty document")
		return
	}

	pts := uint64(s.now().Sub(s.start))
	if v := r.URL.Query().Get("pts"); v != "" {
		pts, err = strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "pts must be an unsigned integer (ns)")
			return
		}
	}

	s.src.Submit(string(body), pts)
	writeJSON(w, http.StatusAccepted, submitResponse{PTS: pts, QueueDepth: s.src.Stats().QueueDepth})
}

func (s *Server) handleEOS(w http.ResponseWriter, _ *http.Request) {
	s.src.RequestEndOfStream()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	active, ok := boolParam(w, r, "active")
	if !ok {
		return
	}
	s.src.SetFlushing(active)
	writeJSON(w, http.StatusOK, map[string]bool{"flushing": active})
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	flags := element.SeekFlagFlush
	if r.URL.Query().Get("flush") != "" {
		flush, ok := boolParam(w, r, "flush")
		if !ok {
			return
		}
		if !flush {
			flags = element.SeekFlagNone
		}
	}
	handled := s.src.HandleSeek(flags)
	writeJSON(w, http.StatusOK, map[string]bool{"handled": handled})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	enabled, ok := boolParam(w, r, "enabled")
	if !ok {
		return
	}
	s.src.SetLive(enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"live": s.src.IsLive()})
}

type statsResponse struct {
	Submitted          uint64  `json:"submitted"`
	Delivered          uint64  `json:"delivered"`
	Dropped            uint64  `json:"dropped"`
	ContentErrors      uint64  `json:"content_errors"`
	ConsistencyErrors  uint64  `json:"consistency_errors"`
	EndOfStreams       uint64  `json:"end_of_streams"`
	QueueDepth         int     `json:"queue_depth"`
	Live               bool    `json:"live"`
	Flushing           bool    `json:"flushing"`
	EndOfStreamPending bool    `json:"eos_pending"`
	Width              int     `json:"width"`
	Height             int     `json:"height"`
	MinStride          int     `json:"min_stride"`
	InputFPS           float64 `json:"input_fps"`
	OutputFPS          float64 `json:"output_fps"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	st := s.src.Stats()
	writeJSON(w, http.StatusOK, statsResponse{
		Submitted:          st.Submitted,
		Delivered:          st.Delivered,
		Dropped:            st.Dropped,
		ContentErrors:      st.ContentErrors,
		ConsistencyErrors:  st.ConsistencyErrors,
		EndOfStreams:       st.EndOfStreams,
		QueueDepth:         st.QueueDepth,
		Live:               st.Live,
		Flushing:           st.Flushing,
		EndOfStreamPending: st.EndOfStreamPending,
		Width:              st.Geometry.Width,
		Height:             st.Geometry.Height,
		MinStride:          st.Geometry.MinStride,
		InputFPS:           st.InputFPS,
		OutputFPS:          st.OutputFPS,
	})
}

// boolParam parses a required boolean query parameter, writing 400 on error.
func boolParam(w http.ResponseWriter, r *http.Request, name string) (bool, bool) {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("%s must be true or false", name))
		return false, false
	}
	return v, true
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
