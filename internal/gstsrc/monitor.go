package gstsrc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
)

// Observer receives pipeline telemetry. internal/metrics.PromObserver
// implements it.
type Observer interface {
	BufferPushed()
	PipelineRestarted()
	PipelineError(category string)
}

type nopObserver struct{}

func (nopObserver) BufferPushed()        {}
func (nopObserver) PipelineRestarted()   {}
func (nopObserver) PipelineError(string) {}

// MonitorPipelineBus polls the pipeline bus until EOS, an error or
// cancellation.
//
// This function:
//  1. Polls the bus with a short timeout for responsive shutdown
//  2. Classifies errors for telemetry
//  3. Resets restart state on the PLAYING transition
//
// Returns a *PipelineError on bus errors, nil on EOS or cancellation.
func MonitorPipelineBus(
	ctx context.Context,
	pipeline *gst.Pipeline,
	state *RestartState,
	obs Observer,
	logger *slog.Logger,
) error {
	if pipeline == nil {
		return fmt.Errorf("gstsrc: pipeline not initialized")
	}

	bus := pipeline.GetPipelineBus()
	started := time.Now()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("gstsrc: context cancelled, stopping bus monitor")
			return nil
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			logger.Info("gstsrc: end of stream reached sink", "uptime", time.Since(started))
			return nil

		case gst.MessageError:
			gerr := msg.ParseError()
			category := ClassifyGStreamerError(gerr)
			obs.PipelineError(category.String())

			perr := &PipelineError{Category: category}
			if gerr != nil {
				perr.Message = gerr.Error()
				perr.Debug = gerr.DebugString()
			}

			logger.Error("gstsrc: pipeline error",
				"error", perr.Message,
				"debug", perr.Debug,
				"category", category.String(),
				"restartable", category.Restartable(),
				"uptime", time.Since(started),
				"restarts", state.Restarts(),
			)
			return perr

		case gst.MessageWarning:
			if gerr := msg.ParseWarning(); gerr != nil {
				logger.Warn("gstsrc: pipeline warning", "warning", gerr.Error())
			}

		case gst.MessageStateChanged:
			if msg.Source() == pipeline.GetName() {
				oldState, newState := msg.ParseStateChanged()
				logger.Debug("gstsrc: pipeline state changed",
					"from", oldState,
					"to", newState,
				)
				if newState == gst.StatePlaying {
					state.Reset()
					logger.Info("gstsrc: pipeline playing, restart state reset")
				}
			}
		}
	}
}
