package feed

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type call struct {
	kind    string
	content string
	pts     uint64
	active  bool
}

// recordingSink records producer calls.
type recordingSink struct {
	mu    sync.Mutex
	calls []call
}

func (s *recordingSink) Submit(content string, pts uint64) {
	s.mu.Lock()
	s.calls = append(s.calls, call{kind: "submit", content: content, pts: pts})
	s.mu.Unlock()
}

func (s *recordingSink) RequestEndOfStream() {
	s.mu.Lock()
	s.calls = append(s.calls, call{kind: "eos"})
	s.mu.Unlock()
}

func (s *recordingSink) SetFlushing(active bool) {
	s.mu.Lock()
	s.calls = append(s.calls, call{kind: "flush", active: active})
	s.mu.Unlock()
}

func (s *recordingSink) snapshot() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]call(nil), s.calls...)
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func encodeAll(t *testing.T, msgs ...Message) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, m := range msgs {
		frame, err := EncodeFrame(m)
		require.NoError(t, err)
		buf.Write(frame)
	}
	return buf.Bytes()
}

func rawFrame(payload []byte) []byte {
	frame := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[LengthPrefixSize:], payload)
	return frame
}

func TestRunAppliesMessages(t *testing.T) {
	stream := encodeAll(t,
		Message{Type: TypeSVG, SVG: "<svg/>", PTS: 1000},
		Message{Type: TypeFlush, Active: true},
		Message{Type: TypeFlush, Active: false},
		Message{Type: TypeEOS},
	)

	sink := &recordingSink{}
	require.NoError(t, Run(context.Background(), bytes.NewReader(stream), sink, quiet()))

	assert.Equal(t, []call{
		{kind: "submit", content: "<svg/>", pts: 1000},
		{kind: "flush", active: true},
		{kind: "flush", active: false},
		{kind: "eos"},
	}, sink.snapshot())
}

func TestRunSkipsUndecodableMessages(t *testing.T) {
	garbage, err := msgpack.Marshal(42)
	require.NoError(t, err)
	unknown, err := msgpack.Marshal(map[string]any{"type": "caption"})
	require.NoError(t, err)

	var stream bytes.Buffer
	stream.Write(rawFrame(garbage))
	stream.Write(rawFrame(unknown))
	stream.Write(encodeAll(t, Message{Type: TypeSVG, SVG: "<svg/>", PTS: 7}))

	sink := &recordingSink{}
	require.NoError(t, Run(context.Background(), &stream, sink, quiet()))
	assert.Equal(t, []call{{kind: "submit", content: "<svg/>", pts: 7}}, sink.snapshot())
}

func TestRunFatalFrames(t *testing.T) {
	t.Run("partial prefix", func(t *testing.T) {
		err := Run(context.Background(), bytes.NewReader([]byte{0, 0}), &recordingSink{}, quiet())
		require.Error(t, err)
		assert.True(t, IsFatalFrameError(err))
	})

	t.Run("partial payload", func(t *testing.T) {
		frame := encodeAll(t, Message{Type: TypeSVG, SVG: "<svg/>"})
		err := Run(context.Background(), bytes.NewReader(frame[:len(frame)-2]), &recordingSink{}, quiet())
		require.Error(t, err)
		assert.True(t, IsFatalFrameError(err))
	})

	t.Run("too large", func(t *testing.T) {
		var prefix [LengthPrefixSize]byte
		binary.BigEndian.PutUint32(prefix[:], MaxPayloadSize+1)
		err := Run(context.Background(), bytes.NewReader(prefix[:]), &recordingSink{}, quiet())

		var frameErr *FrameError
		require.ErrorAs(t, err, &frameErr)
		assert.Equal(t, FrameErrorTooLarge, frameErr.Kind)
	})
}

func TestDecodeMessageErrors(t *testing.T) {
	_, err := DecodeMessage([]byte{0xc1})
	var frameErr *FrameError
	require.ErrorAs(t, err, &frameErr)
	assert.Equal(t, FrameErrorDecode, frameErr.Kind)
	assert.False(t, frameErr.IsFatal())
	assert.False(t, IsFatalFrameError(err))
}

func TestServeUnixSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "feed")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "s.sock")

	sink := &recordingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ListenUnix(ctx, path, sink, quiet()) }()

	var conn net.Conn
	require.Eventually(t, func() bool {
		conn, err = net.Dial("unix", path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	_, err = conn.Write(encodeAll(t, Message{Type: TypeSVG, SVG: "<svg/>", PTS: 3}))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)

	// Connection still open: cancellation must close it.
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ListenUnix did not return after cancel")
	}
	conn.Close()
}

func TestFileWatcherSubmitsChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overlay.svg")
	require.NoError(t, os.WriteFile(path, []byte("<svg>1</svg>"), 0o644))

	sink := &recordingSink{}
	w := NewFileWatcher(path, sink, quiet())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return len(sink.snapshot()) >= 1 }, 2*time.Second, 10*time.Millisecond)
	first := sink.snapshot()[0]
	assert.Equal(t, "<svg>1</svg>", first.content)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("<svg>2</svg>"), 0o644))

	require.Eventually(t, func() bool {
		calls := sink.snapshot()
		last := calls[len(calls)-1]
		return last.content == "<svg>2</svg>" && last.pts > first.pts
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
