package element

import (
	"errors"
	"fmt"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/flow"
	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/render"
)

// Fill blocks until an item, end-of-stream or flushing is available, then
// renders the item into buf.
//
// Results:
//   - StatusOK: buf holds the frame, result carries the item PTS.
//   - StatusEOS: end-of-stream was reported; buf untouched.
//   - StatusFlushing: flushing vetoed delivery; buf carries no frame. An item
//     rendered while flushing began is discarded.
//   - StatusError + ErrConsistency: buf does not match the negotiated
//     geometry. Checked before taking, so no item is lost.
//
// Malformed or oversized documents never fail Fill: the frame is delivered
// fully transparent and the failure is logged.
func (e *Element) Fill(buf FrameBuffer) (FillResult, error) {
	geo := e.Geometry()

	stride, err := checkBuffer(buf, geo)
	if err != nil {
		return e.failFill(err)
	}

	item, outcome := e.flow.Take()
	e.observer.QueueDepth(e.flow.State().Depth)

	switch outcome {
	case flow.OutcomeEndOfStream:
		e.endOfStreams.Add(1)
		e.observer.Filled(StatusEOS)
		e.logger.Info("end of stream reached")
		return FillResult{Status: StatusEOS}, nil
	case flow.OutcomeFlushing:
		e.observer.Filled(StatusFlushing)
		return FillResult{Status: StatusFlushing}, nil
	}

	if err := e.renderItem(item, buf.Data, geo, stride); err != nil {
		return e.failFill(err)
	}

	if report, ok := e.meter.AddOutput(); ok {
		e.observer.Throughput(report)
		e.logger.Info("overlay throughput",
			"input_fps", fmt.Sprintf("%.2f", report.InputFPS),
			"output_fps", fmt.Sprintf("%.2f", report.OutputFPS),
			"inputs", report.Inputs,
			"outputs", report.Outputs,
			"elapsed", report.Elapsed,
		)
	}

	// Flushing may have started while rendering. End-of-stream stays pending
	// for the next call so this frame is not lost.
	if e.flow.Flushing() {
		e.observer.Filled(StatusFlushing)
		e.logger.Debug("rendered frame discarded by flush", "trace_id", item.TraceID)
		return FillResult{Status: StatusFlushing}, nil
	}

	e.delivered.Add(1)
	e.observer.Filled(StatusOK)

	return FillResult{
		Status:  StatusOK,
		PTS:     item.PTS,
		TraceID: item.TraceID,
	}, nil
}

// renderItem zeroes dst and rasterizes item into it. Content errors leave a
// transparent frame and return nil.
func (e *Element) renderItem(item flow.Item, dst []byte, geo Geometry, stride int) error {
	clear(dst)

	start := time.Now()
	err := e.renderer.Render(item.Content, dst, geo.Width, geo.Height, stride)
	elapsed := time.Since(start)

	if err == nil {
		e.observer.Rendered(elapsed, nil)
		return nil
	}

	if !errors.Is(err, render.ErrContent) {
		return fmt.Errorf("%w: %v", ErrConsistency, err)
	}

	clear(dst)
	e.contentErrors.Add(1)
	e.observer.Rendered(elapsed, err)

	kind := render.KindParse
	var rerr *render.RenderError
	if errors.As(err, &rerr) {
		kind = rerr.Kind
	}
	e.logger.Warn("overlay render failed, delivering transparent frame",
		"kind", kind.String(),
		"trace_id", item.TraceID,
		"pts", item.PTS,
		"error", err,
	)

	return nil
}

func (e *Element) failFill(err error) (FillResult, error) {
	e.consistencyErrors.Add(1)
	e.observer.Filled(StatusError)
	e.logger.Error("fill aborted", "error", err)
	return FillResult{Status: StatusError}, err
}

// checkBuffer validates buf against geo and returns the effective stride.
func checkBuffer(buf FrameBuffer, geo Geometry) (int, error) {
	if geo.Width <= 0 || geo.Height <= 0 {
		return 0, fmt.Errorf("%w: no geometry negotiated", ErrConsistency)
	}
	if (buf.Width != 0 || buf.Height != 0) && (buf.Width != geo.Width || buf.Height != geo.Height) {
		return 0, fmt.Errorf("%w: buffer is %dx%d, negotiated %dx%d",
			ErrConsistency, buf.Width, buf.Height, geo.Width, geo.Height)
	}

	stride := buf.Stride
	if stride == 0 {
		stride = geo.MinStride
	}
	if stride < geo.MinStride {
		return 0, fmt.Errorf("%w: stride %d below minimum %d", ErrConsistency, stride, geo.MinStride)
	}
	if need := stride * geo.Height; len(buf.Data) < need {
		return 0, fmt.Errorf("%w: buffer has %d bytes, need %d", ErrConsistency, len(buf.Data), need)
	}

	return stride, nil
}
