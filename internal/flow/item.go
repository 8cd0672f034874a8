package flow

import "time"

// Item is a pending (markup, timestamp) pair waiting to be rendered.
//
// IMMUTABILITY CONTRACT:
//   - Built once by Submit, never modified afterwards
//   - Owned by the queue until Take pops it, then by the caller of Take
type Item struct {
	// Content is the vector-graphics markup to render.
	Content string

	// PTS is the presentation timestamp in nanoseconds, supplied by the producer.
	PTS uint64

	// TraceID identifies the item across submit/fill log lines.
	TraceID string

	// SubmittedAt is the wall-clock time Submit accepted the item.
	// Used for queue-latency telemetry only.
	SubmittedAt time.Time
}

// Outcome is the result kind of a Take call.
type Outcome int

const (
	// OutcomeItem means an Item was popped from the queue.
	OutcomeItem Outcome = iota
	// OutcomeEndOfStream means the queue drained and end-of-stream was pending.
	// Delivered once per RequestEndOfStream call.
	OutcomeEndOfStream
	// OutcomeFlushing means the controller is flushing. Level-triggered:
	// returned on every Take until SetFlushing(false).
	OutcomeFlushing
)

// String returns a human-readable name for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeItem:
		return "item"
	case OutcomeEndOfStream:
		return "eos"
	case OutcomeFlushing:
		return "flushing"
	default:
		return "unknown"
	}
}
