package gstsrc

import (
	"errors"
	"testing"
)

func TestClassifyMessage(t *testing.T) {
	tests := []struct {
		name  string
		msg   string
		debug string
		want  ErrorCategory
	}{
		{"not negotiated", "Internal data stream error.", "streaming stopped, reason not-negotiated (-4)", ErrCategoryNegotiation},
		{"caps", "Could not link", "caps are incompatible", ErrCategoryNegotiation},
		{"missing element", "no such element factory glupload", "", ErrCategoryResource},
		{"display", "Could not initialise Xv output", "Could not open display", ErrCategoryResource},
		{"flow error", "Internal data stream error.", "streaming stopped, reason error (-5)", ErrCategoryStream},
		{"unknown", "something odd happened", "", ErrCategoryUnknown},
		{"case insensitive", "NOT NEGOTIATED", "", ErrCategoryNegotiation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyMessage(tt.msg, tt.debug); got != tt.want {
				t.Errorf("classifyMessage(%q, %q) = %v, want %v", tt.msg, tt.debug, got, tt.want)
			}
		})
	}
}

func TestClassifyNilError(t *testing.T) {
	if got := ClassifyGStreamerError(nil); got != ErrCategoryUnknown {
		t.Errorf("ClassifyGStreamerError(nil) = %v, want unknown", got)
	}
}

func TestErrorCategoryString(t *testing.T) {
	want := map[ErrorCategory]string{
		ErrCategoryNegotiation: "negotiation",
		ErrCategoryResource:    "resource",
		ErrCategoryStream:      "stream",
		ErrCategoryUnknown:     "unknown",
		ErrorCategory(42):      "unknown",
	}
	for c, s := range want {
		if c.String() != s {
			t.Errorf("%d.String() = %q, want %q", c, c.String(), s)
		}
	}
}

func TestPipelineErrorRestartable(t *testing.T) {
	neg := &PipelineError{Category: ErrCategoryNegotiation, Message: "not negotiated"}
	if !errors.Is(neg, ErrNotRestartable) {
		t.Error("negotiation error should not be restartable")
	}

	stream := &PipelineError{Category: ErrCategoryStream, Message: "flow error"}
	if errors.Is(stream, ErrNotRestartable) {
		t.Error("stream error should be restartable")
	}
	if stream.Error() != "gstsrc: pipeline error [stream]: flow error" {
		t.Errorf("Error() = %q", stream.Error())
	}
}
