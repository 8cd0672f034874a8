// Package element implements the overlay source element: the producer-facing
// submit/EOS/flush API, geometry negotiation, and the consumer-facing Fill
// protocol that renders one queued document per output buffer.
package element

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/flow"
	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/render"
	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/throughput"
)

// Option configures an Element.
type Option func(*Element)

// WithObserver installs a telemetry observer.
func WithObserver(o Observer) Option {
	return func(e *Element) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithLogger overrides the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(e *Element) {
		if l != nil {
			e.logger = l
		}
	}
}

// Element is one overlay source instance.
//
// Producers (Submit, RequestEndOfStream) and cancellers (SetFlushing, Reset,
// HandleSeek, Unlock) may call from any goroutine. Fill is called by exactly
// one consumer goroutine.
type Element struct {
	cfg      Config
	renderer render.Renderer
	observer Observer
	logger   *slog.Logger

	flow  *flow.Controller
	meter *throughput.Meter

	geoMu    sync.RWMutex
	geometry Geometry

	submitted         atomic.Uint64
	delivered         atomic.Uint64
	dropped           atomic.Uint64
	contentErrors     atomic.Uint64
	consistencyErrors atomic.Uint64
	endOfStreams      atomic.Uint64
}

// New creates an element with cfg's default geometry already configured.
//
// Zero Width or Height fall back to DefaultWidth/DefaultHeight.
func New(cfg Config, renderer render.Renderer, opts ...Option) (*Element, error) {
	if renderer == nil {
		return nil, ErrNilRenderer
	}
	if cfg.Width == 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height == 0 {
		cfg.Height = DefaultHeight
	}

	e := &Element{
		cfg:      cfg,
		renderer: renderer,
		observer: nopObserver{},
		logger:   slog.Default(),
		flow:     flow.NewController(cfg.IsLive),
		meter:    throughput.NewMeter(cfg.ReportInterval),
	}
	for _, opt := range opts {
		opt(e)
	}

	if _, err := e.ConfigureGeometry(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}

	return e, nil
}

// Submit enqueues one document with its presentation timestamp (ns).
//
// Never blocks on the consumer. In live mode any pending item is replaced.
func (e *Element) Submit(content string, pts uint64) {
	item, dropped := e.flow.Submit(content, pts)
	e.meter.AddInput()
	e.submitted.Add(1)
	if dropped > 0 {
		e.dropped.Add(uint64(dropped))
	}

	e.observer.Submitted(dropped)
	e.observer.QueueDepth(e.flow.State().Depth)

	e.logger.Debug("overlay submitted",
		"trace_id", item.TraceID,
		"pts", pts,
		"bytes", len(content),
		"dropped", dropped,
	)
}

// RequestEndOfStream ends the stream once the queue drains. Idempotent.
func (e *Element) RequestEndOfStream() {
	e.flow.RequestEndOfStream()
	e.logger.Debug("end of stream requested")
}

// SetFlushing enters or leaves the flushing state.
func (e *Element) SetFlushing(active bool) {
	e.flow.SetFlushing(active)
	e.logger.Debug("flushing changed", "active", active)
}

// Reset discards queued items and any pending end-of-stream. Flushing is left
// as is.
func (e *Element) Reset() {
	dropped := e.flow.Reset()
	if dropped > 0 {
		e.dropped.Add(uint64(dropped))
	}
	e.observer.Reset(dropped)
	e.observer.QueueDepth(0)
	e.logger.Debug("overlay queue reset", "dropped", dropped)
}

// Start prepares the element for streaming.
func (e *Element) Start() error {
	e.Reset()
	e.logger.Info("overlay source started",
		"live", e.IsLive(),
		"geometry", e.Geometry(),
	)
	return nil
}

// Stop discards pending work. Safe to call repeatedly.
func (e *Element) Stop() error {
	e.Reset()
	e.logger.Info("overlay source stopped", "stats", e.Stats())
	return nil
}

// Unlock aborts a blocked Fill by entering the flushing state.
func (e *Element) Unlock() {
	e.SetFlushing(true)
}

// UnlockStop leaves the flushing state entered by Unlock.
func (e *Element) UnlockStop() {
	e.SetFlushing(false)
}

// HandleSeek applies a seek. With SeekFlagFlush a full flush cycle runs first;
// the queue and pending end-of-stream are always reset. Always succeeds.
func (e *Element) HandleSeek(flags SeekFlags) bool {
	flush := flags&SeekFlagFlush != 0
	if flush {
		e.SetFlushing(true)
		e.SetFlushing(false)
	}
	e.Reset()

	e.logger.Info("seek handled", "flush", flush)
	return true
}

// SetLive switches the queue policy for subsequent submits.
func (e *Element) SetLive(live bool) {
	e.flow.SetLive(live)
}

// IsLive reports whether the element runs in live mode.
func (e *Element) IsLive() bool {
	return e.flow.Live()
}

// DecideMaxBuffers caps the host buffer pool size. 0 means the host has no
// preference and yields the cap.
func (e *Element) DecideMaxBuffers(requested int) int {
	if requested <= 0 || requested > MaxPoolBuffers {
		return MaxPoolBuffers
	}
	return requested
}

// Latency reports the element latency: live flag, zero minimum and no
// maximum.
func (e *Element) Latency() (live bool, minLatency, maxLatency time.Duration) {
	return e.IsLive(), 0, LatencyNone
}

// Stats returns a snapshot of counters and state.
func (e *Element) Stats() Stats {
	st := e.flow.State()
	last := e.meter.Last()

	return Stats{
		Submitted:          e.submitted.Load(),
		Delivered:          e.delivered.Load(),
		Dropped:            e.dropped.Load(),
		ContentErrors:      e.contentErrors.Load(),
		ConsistencyErrors:  e.consistencyErrors.Load(),
		EndOfStreams:       e.endOfStreams.Load(),
		QueueDepth:         st.Depth,
		Live:               st.Live,
		Flushing:           st.Flushing,
		EndOfStreamPending: st.EndOfStream,
		Geometry:           e.Geometry(),
		InputFPS:           last.InputFPS,
		OutputFPS:          last.OutputFPS,
	}
}
