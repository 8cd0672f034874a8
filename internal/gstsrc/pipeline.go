// Package gstsrc drives an overlay source from a GStreamer appsrc: a pump
// goroutine answers appsrc demand with Fill, and a bus monitor restarts the
// pipeline on recoverable errors.
package gstsrc

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// PipelineConfig contains configuration for pipeline creation.
type PipelineConfig struct {
	Width  int
	Height int
	// IsLive marks the appsrc as a live source.
	IsLive bool
	// MinLatency and MaxLatency answer latency queries (negative max = none).
	MinLatency time.Duration
	MaxLatency time.Duration
	// GL appends the GL upload chain before the sink.
	GL bool
	// Sink is the sink element factory name (e.g. fakesink, autovideosink).
	Sink string
}

// PipelineElements holds references needed by the pump and for teardown.
type PipelineElements struct {
	Pipeline *gst.Pipeline
	AppSrc   *app.Source
	Sink     *gst.Element
	GLChain  []*gst.Element
}

var initOnce sync.Once

// CreatePipeline builds the overlay pipeline.
//
// Pipeline structure:
//
//	appsrc(BGRA WxH, framerate 0/1) → [queue → glupload → glcolorconvert →
//	capsfilter(GLMemory RGBA)] → sink
//
// The appsrc caps carry the proposed size until applyGeometry fixates them.
// The pipeline is configured but NOT started (state remains NULL).
func CreatePipeline(cfg PipelineConfig) (*PipelineElements, error) {
	initOnce.Do(func() { gst.Init(nil) })

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	appsrc, err := app.NewAppSrc()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsrc: %w", err)
	}
	appsrc.SetCaps(gst.NewCapsFromString(BuildCaps(cfg.Width, cfg.Height)))
	appsrc.SetStreamType(app.AppStreamTypeStream)
	appsrc.SetProperty("format", gst.FormatTime)
	appsrc.SetProperty("is-live", cfg.IsLive)
	appsrc.SetProperty("block", false)
	appsrc.SetProperty("min-latency", int64(cfg.MinLatency))
	appsrc.SetProperty("max-latency", int64(cfg.MaxLatency))

	sink, err := gst.NewElement(cfg.Sink)
	if err != nil {
		return nil, fmt.Errorf("failed to create sink %q: %w", cfg.Sink, err)
	}

	chain := []*gst.Element{appsrc.Element}
	var glChain []*gst.Element
	if cfg.GL {
		glChain, err = createGLChain()
		if err != nil {
			return nil, err
		}
		chain = append(chain, glChain...)
	}
	chain = append(chain, sink)

	if err := pipeline.AddMany(chain...); err != nil {
		return nil, fmt.Errorf("failed to add elements: %w", err)
	}
	if err := gst.ElementLinkMany(chain...); err != nil {
		return nil, fmt.Errorf("failed to link pipeline elements: %w", err)
	}

	slog.Info("gstsrc: pipeline created",
		"width", cfg.Width,
		"height", cfg.Height,
		"live", cfg.IsLive,
		"max_latency", cfg.MaxLatency,
		"gl", cfg.GL,
		"sink", cfg.Sink,
	)

	return &PipelineElements{
		Pipeline: pipeline,
		AppSrc:   appsrc,
		Sink:     sink,
		GLChain:  glChain,
	}, nil
}

// createGLChain builds queue → glupload → glcolorconvert → capsfilter.
func createGLChain() ([]*gst.Element, error) {
	factories := []string{"queue", "glupload", "glcolorconvert", "capsfilter"}
	chain := make([]*gst.Element, 0, len(factories))
	for _, name := range factories {
		el, err := gst.NewElement(name)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s (GL output requires gst-plugins-base GL): %w", name, err)
		}
		chain = append(chain, el)
	}
	chain[len(chain)-1].SetProperty("caps", gst.NewCapsFromString(GLCaps))
	return chain, nil
}

// DestroyPipeline sets the pipeline to NULL. Safe on nil or already destroyed
// pipelines.
func DestroyPipeline(elements *PipelineElements) error {
	if elements == nil || elements.Pipeline == nil {
		return nil
	}
	if err := elements.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	return nil
}

// GLCaps are the caps enforced after glcolorconvert.
const GLCaps = "video/x-raw(memory:GLMemory),format=RGBA"

// BuildCaps returns the appsrc caps: BGRA (ARGB32 little-endian) at the given
// size with a variable frame rate.
func BuildCaps(width, height int) string {
	return fmt.Sprintf("video/x-raw,format=BGRA,width=%d,height=%d,framerate=0/1", width, height)
}
