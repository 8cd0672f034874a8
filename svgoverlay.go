package svgoverlay

import (
	"log/slog"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/element"
	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/render"
)

// Config is re-exported from the internal element package.
// See internal/element/types.go for field documentation.
type Config = element.Config

// FrameBuffer is re-exported from the internal element package.
type FrameBuffer = element.FrameBuffer

// FillResult is re-exported from the internal element package.
type FillResult = element.FillResult

// Geometry is re-exported from the internal element package.
type Geometry = element.Geometry

// SizeRange is re-exported from the internal element package.
type SizeRange = element.SizeRange

// SeekFlags is re-exported from the internal element package.
type SeekFlags = element.SeekFlags

// Status is re-exported from the internal element package.
type Status = element.Status

// Stats is re-exported from the internal element package.
type Stats = element.Stats

// Observer is re-exported from the internal element package.
type Observer = element.Observer

// Renderer is re-exported from the internal render package.
type Renderer = render.Renderer

// Fill statuses.
const (
	StatusOK       = element.StatusOK
	StatusEOS      = element.StatusEOS
	StatusFlushing = element.StatusFlushing
	StatusError    = element.StatusError
)

// Seek flags.
const (
	SeekFlagNone     = element.SeekFlagNone
	SeekFlagFlush    = element.SeekFlagFlush
	SeekFlagAccurate = element.SeekFlagAccurate
)

// Limits and defaults.
const (
	DefaultWidth   = element.DefaultWidth
	DefaultHeight  = element.DefaultHeight
	MaxPoolBuffers = element.MaxPoolBuffers
	LatencyNone    = element.LatencyNone
	PixelFormat    = render.PixelFormat
)

// Errors.
var (
	ErrConsistency     = element.ErrConsistency
	ErrInvalidGeometry = element.ErrInvalidGeometry
	ErrContent         = render.ErrContent
	ErrResource        = render.ErrResource
)

// Source is the public interface of the overlay source.
//
// Lifecycle: New() → Start() → Submit()/Fill() → Stop()
//
// Implementation is in internal/element (hidden from clients).
type Source interface {
	// Start resets queued work and prepares for streaming.
	Start() error

	// Stop discards pending work. Idempotent.
	Stop() error

	// Submit enqueues a document with its presentation timestamp (ns).
	//
	// Semantics:
	//   - Non-blocking: never waits on the consumer
	//   - Live mode: replaces any pending document
	//   - Backlog mode: appends (FIFO)
	Submit(content string, pts uint64)

	// RequestEndOfStream ends the stream once queued documents are rendered.
	// Idempotent; reported once by Fill.
	RequestEndOfStream()

	// SetFlushing enters or leaves the flushing state. Entering it wakes a
	// blocked Fill with StatusFlushing.
	SetFlushing(active bool)

	// Reset discards queued documents and any pending end-of-stream.
	Reset()

	// Unlock and UnlockStop are the host cancellation hooks (flush on/off).
	Unlock()
	UnlockStop()

	// HandleSeek runs a flush cycle when flags include SeekFlagFlush, then
	// resets. Always returns true.
	HandleSeek(flags SeekFlags) bool

	// SetLive switches queue policy for subsequent submits.
	SetLive(live bool)
	IsLive() bool

	// ConfigureGeometry records the negotiated size and returns the minimum
	// stride.
	ConfigureGeometry(width, height int) (int, error)

	// NegotiateGeometry picks the size nearest the defaults within ranges.
	NegotiateGeometry(width, height SizeRange) (int, int)

	// Geometry returns the negotiated size.
	Geometry() Geometry

	// Fill blocks until a frame, end-of-stream or flush applies and renders
	// into buf. Single consumer only.
	//
	// Contract:
	//   - StatusOK: buf holds the frame, result carries the PTS
	//   - StatusEOS, StatusFlushing: no frame
	//   - ErrConsistency: buf does not match the negotiated geometry
	Fill(buf FrameBuffer) (FillResult, error)

	// DecideMaxBuffers caps the host buffer pool (0 = no preference).
	DecideMaxBuffers(requested int) int

	// Latency reports (live, 0, LatencyNone).
	Latency() (live bool, minLatency, maxLatency time.Duration)

	// Stats returns a snapshot (not a live view).
	Stats() Stats
}

// Option configures a Source.
type Option func(*options)

type options struct {
	renderer Renderer
	elemOpts []element.Option
}

// WithRenderer replaces the default SVG renderer.
func WithRenderer(r Renderer) Option {
	return func(o *options) { o.renderer = r }
}

// WithObserver installs a telemetry observer (see internal/metrics).
func WithObserver(obs Observer) Option {
	return func(o *options) { o.elemOpts = append(o.elemOpts, element.WithObserver(obs)) }
}

// WithLogger overrides the slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.elemOpts = append(o.elemOpts, element.WithLogger(l)) }
}

// DefaultConfig returns 480x640, live, no throughput report.
func DefaultConfig() Config {
	return element.DefaultConfig()
}

// New creates a Source. Without WithRenderer an unlimited oksvg renderer is
// used.
func New(cfg Config, opts ...Option) (Source, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.renderer == nil {
		o.renderer = render.NewSVGRenderer(0)
	}
	e, err := element.New(cfg, o.renderer, o.elemOpts...)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// StrideForWidth returns the minimum row stride for an ARGB32 frame.
func StrideForWidth(width int) (int, error) {
	return render.StrideForWidth(width)
}
