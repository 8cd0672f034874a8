package gstsrc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/element"
)

// Source is the overlay source as seen by the pipeline.
type Source interface {
	Filler
	Start() error
	Stop() error
	Unlock()
	UnlockStop()
	ConfigureGeometry(width, height int) (int, error)
	NegotiateGeometry(width, height element.SizeRange) (int, int)
	DecideMaxBuffers(requested int) int
	Latency() (live bool, minLatency, maxLatency time.Duration)
}

// Config configures a Stream.
type Config struct {
	Width      int
	Height     int
	IsLive     bool
	MaxBuffers int
	GL         bool
	Sink       string

	Restart RestartConfig

	// FlushBackoff is the pump retry delay while the source is flushing.
	FlushBackoff time.Duration
}

// Option configures a Stream.
type Option func(*Stream)

// WithObserver installs pipeline telemetry.
func WithObserver(obs Observer) Option {
	return func(s *Stream) {
		if obs != nil {
			s.observer = obs
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Stream) {
		if l != nil {
			s.logger = l
		}
	}
}

// Stream runs an overlay source inside a GStreamer pipeline.
//
// Lifecycle: NewStream() → Run(ctx) (blocks) → cancel ctx
type Stream struct {
	cfg      Config
	src      Source
	observer Observer
	logger   *slog.Logger
	state    RestartState

	mu      sync.Mutex
	running bool
}

// NewStream validates cfg and creates a stream. Fail-fast on bad geometry or
// an empty sink name.
func NewStream(cfg Config, src Source, opts ...Option) (*Stream, error) {
	if src == nil {
		return nil, errors.New("gstsrc: source is required")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("gstsrc: invalid size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Sink == "" {
		return nil, errors.New("gstsrc: sink element is required")
	}
	if cfg.Restart == (RestartConfig{}) {
		cfg.Restart = DefaultRestartConfig()
	}

	s := &Stream{
		cfg:      cfg,
		src:      src,
		observer: nopObserver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run builds and plays the pipeline, restarting it after recoverable bus
// errors. Blocks until EOS reaches the sink, ctx is cancelled, or a fatal
// error occurs.
func (s *Stream) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("gstsrc: stream already running")
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	return RunWithRestart(ctx, s.runOnce, s.cfg.Restart, &s.state, s.observer.PipelineRestarted, s.logger)
}

// Restarts returns the number of pipeline restarts so far.
func (s *Stream) Restarts() uint32 {
	return s.state.Restarts()
}

// runOnce runs one pipeline instance.
func (s *Stream) runOnce(ctx context.Context) error {
	_, minLatency, maxLatency := s.src.Latency()
	elements, err := CreatePipeline(PipelineConfig{
		Width:      s.cfg.Width,
		Height:     s.cfg.Height,
		IsLive:     s.cfg.IsLive,
		MinLatency: minLatency,
		MaxLatency: maxLatency,
		GL:         s.cfg.GL,
		Sink:       s.cfg.Sink,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := DestroyPipeline(elements); err != nil {
			s.logger.Warn("gstsrc: pipeline teardown failed", "error", err)
		}
	}()

	// Fixate against what downstream accepts, nearest the configured size.
	width, height := s.src.NegotiateGeometry(peerSizeRanges(elements.AppSrc))
	stride, err := s.src.ConfigureGeometry(width, height)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotRestartable, err)
	}
	buffers := s.src.DecideMaxBuffers(s.cfg.MaxBuffers)
	applyGeometry(elements.AppSrc, width, height, uint64(buffers)*uint64(stride*height))
	if width != s.cfg.Width || height != s.cfg.Height {
		s.logger.Info("gstsrc: downstream fixated a different frame size",
			"configured_width", s.cfg.Width,
			"configured_height", s.cfg.Height,
			"width", width,
			"height", height,
		)
	}

	if err := s.src.Start(); err != nil {
		return fmt.Errorf("gstsrc: source start failed: %w", err)
	}

	p := newPump(s.src, appsrcSink{src: elements.AppSrc}, s.cfg.FlushBackoff, s.logger)
	p.onPush = s.observer.BufferPushed
	elements.AppSrc.SetCallbacks(p.callbacks())

	runCtx, cancel := context.WithCancel(ctx)
	pumpErr := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pumpErr <- p.run(runCtx)
	}()

	defer func() {
		// Wake a Fill blocked on an empty queue before cancelling.
		s.src.Unlock()
		cancel()
		wg.Wait()
		s.src.UnlockStop()
		if err := s.src.Stop(); err != nil {
			s.logger.Warn("gstsrc: source stop failed", "error", err)
		}
	}()

	if err := elements.Pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("gstsrc: failed to start pipeline: %w", err)
	}
	s.logger.Info("gstsrc: pipeline started",
		"width", width,
		"height", height,
		"min_stride", stride,
		"max_buffers", buffers,
	)

	busErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		busErr <- MonitorPipelineBus(runCtx, elements.Pipeline, &s.state, s.observer, s.logger)
	}()

	select {
	case err := <-busErr:
		return err
	case err := <-pumpErr:
		if err != nil {
			// Consistency failures repeat on every restart.
			if errors.Is(err, element.ErrConsistency) {
				return fmt.Errorf("%w: %v", ErrNotRestartable, err)
			}
			return err
		}
		// Pump finished (EOS pushed or cancelled); wait for EOS at the sink.
		return <-busErr
	}
}
