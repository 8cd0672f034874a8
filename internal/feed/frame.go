// Package feed turns external caption producers into Submit calls: a stream
// of length-prefixed msgpack frames (socket or pipe) and a watched SVG file.
package feed

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// LengthPrefixSize is the size of the big-endian length prefix.
	LengthPrefixSize = 4
	// MaxPayloadSize is the maximum msgpack payload size.
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
)

// Message types.
const (
	TypeSVG   = "svg"
	TypeEOS   = "eos"
	TypeFlush = "flush"
)

// Message is one decoded feed frame.
type Message struct {
	Type   string `msgpack:"type"`
	SVG    string `msgpack:"svg,omitempty"`
	PTS    uint64 `msgpack:"pts,omitempty"`
	Active bool   `msgpack:"active,omitempty"`
}

// FrameErrorKind classifies frame errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates an undecodable or unknown message.
	FrameErrorDecode
)

// FrameError is returned by Decoder.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether the stream cannot continue. Partial and oversized
// frames lose framing; decode errors only lose one message.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError reports whether err is a fatal *FrameError.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// Decoder reads length-prefixed msgpack messages.
type Decoder struct {
	reader io.Reader
}

// NewDecoder creates a decoder over r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: r}
}

// ReadFrame reads one raw payload.
//
// Errors:
//   - io.EOF: stream ended cleanly between frames
//   - *FrameError (partial, too large): fatal
func (d *Decoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(d.reader, lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read length prefix", Err: err}
	}

	size := binary.BigEndian.Uint32(lengthBuf[:])
	if size > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", size, MaxPayloadSize),
		}
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(d.reader, payload); err != nil {
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read payload", Err: err}
	}
	return payload, nil
}

// Next reads and decodes the next message.
func (d *Decoder) Next() (Message, error) {
	payload, err := d.ReadFrame()
	if err != nil {
		return Message{}, err
	}
	return DecodeMessage(payload)
}

// DecodeMessage decodes and validates one payload.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := msgpack.Unmarshal(payload, &msg); err != nil {
		return Message{}, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode message", Err: err}
	}
	switch msg.Type {
	case TypeSVG, TypeEOS, TypeFlush:
		return msg, nil
	default:
		return Message{}, &FrameError{Kind: FrameErrorDecode, Msg: fmt.Sprintf("unknown message type %q", msg.Type)}
	}
}

// EncodeFrame encodes msg as one length-prefixed frame.
func EncodeFrame(msg Message) ([]byte, error) {
	payload, err := msgpack.Marshal(&msg)
	if err != nil {
		return nil, fmt.Errorf("feed: encode message: %w", err)
	}
	if len(payload) > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}

	frame := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[LengthPrefixSize:], payload)
	return frame, nil
}
