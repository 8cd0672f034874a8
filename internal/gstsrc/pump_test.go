package gstsrc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/element"
)

type pushed struct {
	data []byte
	pts  time.Duration
}

// fakeSink hands out plain byte frames and records pushes and end-of-stream.
type fakeSink struct {
	mu        sync.Mutex
	frames    []pushed
	discarded int
	ended     bool
	err       error
}

func (s *fakeSink) NewFrame(size int) (sinkFrame, error) {
	return &fakeFrame{sink: s, data: make([]byte, size)}, nil
}

func (s *fakeSink) EndStream() error {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	return nil
}

type fakeFrame struct {
	sink *fakeSink
	data []byte
}

func (f *fakeFrame) Bytes() []byte { return f.data }

func (f *fakeFrame) Push(pts time.Duration) error {
	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	if f.sink.err != nil {
		return f.sink.err
	}
	f.sink.frames = append(f.sink.frames, pushed{data: f.data, pts: pts})
	return nil
}

func (f *fakeFrame) Discard() {
	f.sink.mu.Lock()
	f.sink.discarded++
	f.sink.mu.Unlock()
}

type blankRenderer struct{}

func (blankRenderer) Render(string, []byte, int, int, int) error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSource(t *testing.T) *element.Element {
	t.Helper()
	e, err := element.New(element.Config{Width: 8, Height: 4}, blankRenderer{}, element.WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("element.New: %v", err)
	}
	return e
}

func runPump(ctx context.Context, p *pump) <-chan error {
	done := make(chan error, 1)
	go func() { done <- p.run(ctx) }()
	return done
}

func waitPump(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not exit")
		return nil
	}
}

// TestPumpPushesUntilEOS validates frames flow with their PTS and EOS closes
// the appsrc.
//
// Scenario:
//  1. Backlog source with 3 documents + EOS
//  2. Demand on
//  3. Assert: 3 pushes of frame size with PTS 1,2,3ms, EndStream called, nil
func TestPumpPushesUntilEOS(t *testing.T) {
	src := newTestSource(t)
	for i := 1; i <= 3; i++ {
		src.Submit("<svg/>", uint64(i)*uint64(time.Millisecond))
	}
	src.RequestEndOfStream()

	sink := &fakeSink{}
	p := newPump(src, sink, time.Millisecond, discardLogger())
	pushes := 0
	p.onPush = func() { pushes++ }
	p.needData()

	if err := waitPump(t, runPump(context.Background(), p)); err != nil {
		t.Fatalf("run() = %v", err)
	}

	if len(sink.frames) != 3 {
		t.Fatalf("pushed %d frames, want 3", len(sink.frames))
	}
	for i, f := range sink.frames {
		if len(f.data) != src.Geometry().FrameSize() {
			t.Errorf("frame %d size %d, want %d", i, len(f.data), src.Geometry().FrameSize())
		}
		if want := time.Duration(i+1) * time.Millisecond; f.pts != want {
			t.Errorf("frame %d pts %v, want %v", i, f.pts, want)
		}
	}
	if !sink.ended {
		t.Error("EndStream not called")
	}
	if pushes != 3 {
		t.Errorf("onPush called %d times, want 3", pushes)
	}
	if sink.discarded != 1 {
		t.Errorf("discarded %d frames, want 1 (the EOS fill)", sink.discarded)
	}
}

// markRenderer paints the first pixel opaque white.
type markRenderer struct{}

func (markRenderer) Render(_ string, dst []byte, _, _, _ int) error {
	copy(dst, []byte{0xff, 0xff, 0xff, 0xff})
	return nil
}

// TestPumpRendersIntoSinkFrame validates Fill writes straight into the
// memory the sink hands out, and that memory is what gets pushed.
func TestPumpRendersIntoSinkFrame(t *testing.T) {
	src, err := element.New(element.Config{Width: 8, Height: 4}, markRenderer{}, element.WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("element.New: %v", err)
	}
	src.Submit("<svg/>", 5)
	src.RequestEndOfStream()

	sink := &fakeSink{}
	p := newPump(src, sink, time.Millisecond, discardLogger())
	p.needData()

	if err := waitPump(t, runPump(context.Background(), p)); err != nil {
		t.Fatalf("run() = %v", err)
	}
	if len(sink.frames) != 1 {
		t.Fatalf("pushed %d frames, want 1", len(sink.frames))
	}
	if got := sink.frames[0].data[:4]; string(got) != "\xff\xff\xff\xff" {
		t.Errorf("first pixel = %v, want rendered mark", got)
	}
}

func TestPTSDurationSaturates(t *testing.T) {
	tests := []struct {
		pts  uint64
		want time.Duration
	}{
		{0, 0},
		{1500, 1500 * time.Nanosecond},
		{math.MaxInt64, time.Duration(math.MaxInt64)},
		{math.MaxInt64 + 1, time.Duration(math.MaxInt64)},
		{math.MaxUint64, time.Duration(math.MaxInt64)},
	}
	for _, tt := range tests {
		if got := ptsDuration(tt.pts); got != tt.want {
			t.Errorf("ptsDuration(%d) = %v, want %v", tt.pts, got, tt.want)
		}
	}
}

// TestPumpParksWithoutDemand validates enough-data stops filling.
func TestPumpParksWithoutDemand(t *testing.T) {
	src := newTestSource(t)
	src.Submit("<svg/>", 1)

	sink := &fakeSink{}
	p := newPump(src, sink, time.Millisecond, discardLogger())
	p.needData()
	p.enoughData()

	ctx, cancel := context.WithCancel(context.Background())
	done := runPump(ctx, p)

	time.Sleep(30 * time.Millisecond)
	if n := src.Stats().QueueDepth; n != 1 {
		t.Errorf("queue depth = %d, want 1 (nothing filled)", n)
	}

	cancel()
	if err := waitPump(t, done); err != nil {
		t.Errorf("run() = %v, want nil on cancel", err)
	}
}

// TestPumpStopsOnUnlock validates the shutdown sequence: unlock wakes a
// blocked Fill, cancellation ends the pump.
func TestPumpStopsOnUnlock(t *testing.T) {
	src := newTestSource(t)
	sink := &fakeSink{}
	p := newPump(src, sink, time.Millisecond, discardLogger())
	p.needData()

	ctx, cancel := context.WithCancel(context.Background())
	done := runPump(ctx, p)

	time.Sleep(20 * time.Millisecond) // pump blocked in Fill
	src.Unlock()
	cancel()

	if err := waitPump(t, done); err != nil {
		t.Errorf("run() = %v, want nil", err)
	}
	if len(sink.frames) != 0 {
		t.Errorf("pushed %d frames while flushing", len(sink.frames))
	}
}

type badGeometrySource struct{ *element.Element }

func (s badGeometrySource) Geometry() element.Geometry {
	g := s.Element.Geometry()
	g.MinStride /= 2
	return g
}

func TestPumpConsistencyError(t *testing.T) {
	src := newTestSource(t)
	src.Submit("<svg/>", 1)

	p := newPump(badGeometrySource{src}, &fakeSink{}, time.Millisecond, discardLogger())
	p.needData()

	err := waitPump(t, runPump(context.Background(), p))
	if !errors.Is(err, element.ErrConsistency) {
		t.Fatalf("run() = %v, want ErrConsistency", err)
	}
	if n := src.Stats().QueueDepth; n != 1 {
		t.Errorf("queue depth = %d, want item kept", n)
	}
}

func TestPumpSinkFailure(t *testing.T) {
	src := newTestSource(t)
	src.Submit("<svg/>", 1)

	failure := errors.New("push buffer failed")
	p := newPump(src, &fakeSink{err: failure}, time.Millisecond, discardLogger())
	p.needData()

	if err := waitPump(t, runPump(context.Background(), p)); !errors.Is(err, failure) {
		t.Fatalf("run() = %v, want sink failure", err)
	}
}

func TestBuildCaps(t *testing.T) {
	want := "video/x-raw,format=BGRA,width=480,height=640,framerate=0/1"
	if got := BuildCaps(480, 640); got != want {
		t.Errorf("BuildCaps() = %q, want %q", got, want)
	}
}

func TestNewStreamValidation(t *testing.T) {
	src := newTestSource(t)

	if _, err := NewStream(Config{Width: 0, Height: 4, Sink: "fakesink"}, src); err == nil {
		t.Error("accepted zero width")
	}
	if _, err := NewStream(Config{Width: 8, Height: 4}, src); err == nil {
		t.Error("accepted empty sink")
	}
	if _, err := NewStream(Config{Width: 8, Height: 4, Sink: "fakesink"}, nil); err == nil {
		t.Error("accepted nil source")
	}

	s, err := NewStream(Config{Width: 8, Height: 4, Sink: "fakesink"}, src)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if s.cfg.Restart != DefaultRestartConfig() {
		t.Errorf("restart config = %+v, want defaults", s.cfg.Restart)
	}
}
