package gstsrc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
)

// ErrorCategory classifies GStreamer bus errors for telemetry and restart
// decisions.
type ErrorCategory int

const (
	// ErrCategoryNegotiation indicates caps/format negotiation failures
	// (restart will not help).
	ErrCategoryNegotiation ErrorCategory = iota
	// ErrCategoryResource indicates missing elements, busy devices or
	// allocation failures.
	ErrCategoryResource
	// ErrCategoryStream indicates data flow failures (internal data stream
	// error, push failures).
	ErrCategoryStream
	// ErrCategoryUnknown indicates unclassified errors.
	ErrCategoryUnknown
)

// String returns the category label.
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNegotiation:
		return "negotiation"
	case ErrCategoryResource:
		return "resource"
	case ErrCategoryStream:
		return "stream"
	default:
		return "unknown"
	}
}

// Restartable reports whether rebuilding the pipeline may clear the error.
func (c ErrorCategory) Restartable() bool {
	return c != ErrCategoryNegotiation
}

// ErrNotRestartable marks pipeline failures RunWithRestart must not retry.
var ErrNotRestartable = errors.New("gstsrc: error is not restartable")

// PipelineError is returned when the bus reports an error.
type PipelineError struct {
	Category ErrorCategory
	Message  string
	Debug    string
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("gstsrc: pipeline error [%s]: %s", e.Category, e.Message)
}

// Is lets negotiation errors match ErrNotRestartable.
func (e *PipelineError) Is(target error) bool {
	return target == ErrNotRestartable && !e.Category.Restartable()
}

// ClassifyGStreamerError categorizes a bus error by message heuristics.
// go-gst's GError does not expose the error domain.
func ClassifyGStreamerError(gerr *gst.GError) ErrorCategory {
	if gerr == nil {
		return ErrCategoryUnknown
	}
	return classifyMessage(gerr.Error(), gerr.DebugString())
}

func classifyMessage(msg, debug string) ErrorCategory {
	combined := strings.ToLower(msg + " " + debug)

	// Most specific first.
	switch {
	case containsAny(combined, negotiationKeywords):
		return ErrCategoryNegotiation
	case containsAny(combined, resourceKeywords):
		return ErrCategoryResource
	case containsAny(combined, streamKeywords):
		return ErrCategoryStream
	default:
		return ErrCategoryUnknown
	}
}

var (
	negotiationKeywords = []string{
		"not-negotiated",
		"not negotiated",
		"negotiation",
		"caps",
		"format",
	}
	resourceKeywords = []string{
		"no such element",
		"missing plugin",
		"could not open",
		"resource",
		"busy",
		"no space",
		"allocate",
		"display",
	}
	streamKeywords = []string{
		"internal data stream error",
		"streaming stopped",
		"data flow",
		"flow error",
		"push",
	}
)

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
