package element

import (
	"errors"
	"time"
)

var (
	// ErrConsistency indicates the host violated the buffer/geometry contract
	// (negotiation bug). Fatal to the current Fill call only.
	ErrConsistency = errors.New("svgoverlay: buffer inconsistent with negotiated geometry")

	// ErrInvalidGeometry indicates a non-positive or overflowing frame size.
	ErrInvalidGeometry = errors.New("svgoverlay: invalid geometry")

	// ErrNilRenderer is returned by New when no renderer is supplied.
	ErrNilRenderer = errors.New("svgoverlay: renderer is required")
)

const (
	// DefaultWidth and DefaultHeight are used when the host does not constrain
	// the frame size.
	DefaultWidth  = 480
	DefaultHeight = 640

	// MaxPoolBuffers caps the number of buffers the host pre-allocates.
	MaxPoolBuffers = 3

	// LatencyNone marks an unbounded maximum latency.
	LatencyNone time.Duration = -1
)

// Status is the outcome of a Fill call.
type Status int

const (
	// StatusOK means the buffer holds a rendered frame.
	StatusOK Status = iota
	// StatusEOS means the stream ended; the buffer was not touched.
	StatusEOS
	// StatusFlushing means the source is flushing; the buffer carries no frame.
	StatusFlushing
	// StatusError means the call was aborted by a consistency error.
	StatusError
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEOS:
		return "eos"
	case StatusFlushing:
		return "flushing"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// FrameBuffer describes caller-owned destination memory for one frame.
//
// Width and Height are optional video metadata: when set they must equal the
// negotiated geometry. Stride 0 means the negotiated minimum stride.
type FrameBuffer struct {
	Data   []byte
	Width  int
	Height int
	Stride int
}

// FillResult is returned by Fill.
type FillResult struct {
	Status Status
	// PTS is the presentation timestamp in nanoseconds (StatusOK only).
	PTS uint64
	// TraceID identifies the rendered item (StatusOK only).
	TraceID string
}

// Geometry is the negotiated frame size and minimum row stride.
type Geometry struct {
	Width     int
	Height    int
	MinStride int
}

// FrameSize returns MinStride × Height, the smallest valid buffer length.
func (g Geometry) FrameSize() int {
	return g.MinStride * g.Height
}

// SizeRange constrains one dimension during negotiation. A zero bound is open;
// Min == Max pins the value.
type SizeRange struct {
	Min int
	Max int
}

// Fixed returns a range holding exactly v.
func Fixed(v int) SizeRange {
	return SizeRange{Min: v, Max: v}
}

// SeekFlags mirrors the host seek flags the element cares about.
type SeekFlags uint32

const (
	// SeekFlagNone is a plain seek.
	SeekFlagNone SeekFlags = 0
	// SeekFlagFlush requests a flush cycle before the reset.
	SeekFlagFlush SeekFlags = 1 << 0
	// SeekFlagAccurate is accepted and ignored.
	SeekFlagAccurate SeekFlags = 1 << 1
)

// Config contains construction-time settings.
type Config struct {
	// Width and Height are the default frame size (also the fixation target).
	Width  int
	Height int

	// IsLive selects live mode (keep only the newest item).
	IsLive bool

	// ReportInterval enables the periodic throughput report (0 disables).
	ReportInterval time.Duration
}

// DefaultConfig returns the defaults: 480x640, live, no throughput report.
func DefaultConfig() Config {
	return Config{
		Width:  DefaultWidth,
		Height: DefaultHeight,
		IsLive: true,
	}
}

// Stats is a snapshot of element counters and state.
type Stats struct {
	// Submitted counts Submit calls since creation.
	Submitted uint64
	// Delivered counts frames rendered by Fill.
	Delivered uint64
	// Dropped counts items discarded by live collapse or reset.
	Dropped uint64
	// ContentErrors counts frames replaced by a transparent frame.
	ContentErrors uint64
	// ConsistencyErrors counts Fill calls aborted by ErrConsistency.
	ConsistencyErrors uint64
	// EndOfStreams counts StatusEOS results.
	EndOfStreams uint64

	QueueDepth         int
	Live               bool
	Flushing           bool
	EndOfStreamPending bool
	Geometry           Geometry

	// InputFPS and OutputFPS come from the last closed throughput window.
	InputFPS  float64
	OutputFPS float64
}
