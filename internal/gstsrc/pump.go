package gstsrc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/element"
)

// Filler is the part of the overlay source the pump drives.
type Filler interface {
	Fill(buf element.FrameBuffer) (element.FillResult, error)
	Geometry() element.Geometry
}

// frameSink hands out writable frames and receives end-of-stream.
// appsrcSink is the GStreamer implementation; tests use a fake.
type frameSink interface {
	NewFrame(size int) (sinkFrame, error)
	EndStream() error
}

// sinkFrame is writable frame memory owned by the sink. Exactly one of Push
// or Discard ends its use.
type sinkFrame interface {
	Bytes() []byte
	Push(pts time.Duration) error
	Discard()
}

// errSinkFlushing means the pipeline refused the buffer while flushing.
var errSinkFlushing = errors.New("gstsrc: sink flushing")

// pump answers appsrc demand by rendering one frame per Fill.
//
// Demand is level-triggered: need-data sets it, enough-data clears it. While
// demand is off the pump parks on a one-slot wake channel.
type pump struct {
	src     Filler
	sink    frameSink
	backoff time.Duration
	logger  *slog.Logger
	onPush  func()

	wanted atomic.Bool
	wake   chan struct{}

	pushed uint64
}

func newPump(src Filler, sink frameSink, backoff time.Duration, logger *slog.Logger) *pump {
	if backoff <= 0 {
		backoff = 10 * time.Millisecond
	}
	return &pump{
		src:     src,
		sink:    sink,
		backoff: backoff,
		logger:  logger,
		wake:    make(chan struct{}, 1),
	}
}

// needData is the appsrc need-data callback.
func (p *pump) needData() {
	p.wanted.Store(true)
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// enoughData is the appsrc enough-data callback.
func (p *pump) enoughData() {
	p.wanted.Store(false)
}

// callbacks wires the pump to appsrc signals.
func (p *pump) callbacks() *app.SourceCallbacks {
	return &app.SourceCallbacks{
		NeedDataFunc:   func(_ *app.Source, _ uint) { p.needData() },
		EnoughDataFunc: func(_ *app.Source) { p.enoughData() },
	}
}

// run pumps frames until end-of-stream (nil), cancellation (nil) or a
// consistency/push failure (error).
//
// Cancellation cannot interrupt a blocked Fill; callers unlock the source
// (flushing on) before cancelling ctx.
func (p *pump) run(ctx context.Context) error {
	geo := p.src.Geometry()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if !p.wanted.Load() {
			select {
			case <-ctx.Done():
				return nil
			case <-p.wake:
			}
			continue
		}

		frame, err := p.sink.NewFrame(geo.FrameSize())
		if err != nil {
			return err
		}
		res, err := p.src.Fill(element.FrameBuffer{
			Data:   frame.Bytes(),
			Width:  geo.Width,
			Height: geo.Height,
			Stride: geo.MinStride,
		})
		if err != nil {
			frame.Discard()
			return fmt.Errorf("gstsrc: fill failed: %w", err)
		}

		switch res.Status {
		case element.StatusEOS:
			frame.Discard()
			p.logger.Info("gstsrc: end of stream, closing appsrc", "pushed", p.pushed)
			return p.sink.EndStream()

		case element.StatusFlushing:
			frame.Discard()
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.backoff):
			}

		case element.StatusOK:
			err := frame.Push(ptsDuration(res.PTS))
			if errors.Is(err, errSinkFlushing) {
				p.logger.Debug("gstsrc: pipeline flushing, frame dropped", "pts", res.PTS)
				continue
			}
			if err != nil {
				return err
			}
			p.pushed++
			if p.onPush != nil {
				p.onPush()
			}
			p.logger.Debug("gstsrc: frame pushed",
				"pts", res.PTS,
				"trace_id", res.TraceID,
			)
		}
	}
}

// ptsDuration converts a nanosecond PTS, saturating at the largest
// representable duration.
func ptsDuration(pts uint64) time.Duration {
	if pts > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(pts)
}

// appsrcSink pushes frames into an appsrc.
type appsrcSink struct {
	src *app.Source
}

// NewFrame allocates a buffer and maps it for writing. Fill renders straight
// into the mapped memory.
func (s appsrcSink) NewFrame(size int) (sinkFrame, error) {
	buffer := gst.NewBufferWithSize(int64(size))
	if buffer == nil {
		return nil, fmt.Errorf("gstsrc: failed to allocate %d byte buffer", size)
	}
	info := buffer.Map(gst.MapWrite)
	if info == nil {
		return nil, fmt.Errorf("gstsrc: failed to map buffer for writing")
	}
	return &gstFrame{
		src:    s.src,
		buffer: buffer,
		data:   unsafe.Slice((*byte)(info.Data()), int(info.Size())),
	}, nil
}

// gstFrame is a mapped gst.Buffer.
type gstFrame struct {
	src    *app.Source
	buffer *gst.Buffer
	data   []byte
}

func (f *gstFrame) Bytes() []byte { return f.data }

// Push unmaps the buffer, stamps pts and pushes it.
func (f *gstFrame) Push(pts time.Duration) error {
	f.data = nil
	f.buffer.Unmap()
	f.buffer.SetPresentationTimestamp(pts)

	switch ret := f.src.PushBuffer(f.buffer); ret {
	case gst.FlowOK:
		return nil
	case gst.FlowFlushing:
		return errSinkFlushing
	default:
		return fmt.Errorf("gstsrc: push buffer failed: %v", ret)
	}
}

// Discard unmaps the buffer without pushing it.
func (f *gstFrame) Discard() {
	f.data = nil
	f.buffer.Unmap()
}

// EndStream signals end-of-stream downstream.
func (s appsrcSink) EndStream() error {
	if ret := s.src.EndStream(); ret != gst.FlowOK {
		return fmt.Errorf("gstsrc: end stream failed: %v", ret)
	}
	return nil
}
