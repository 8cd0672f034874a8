// Package metrics exports overlay source telemetry as Prometheus collectors.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/element"
	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/render"
	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/throughput"
)

const namespace = "svgoverlay"

// PromObserver implements element.Observer with Prometheus collectors.
type PromObserver struct {
	submitted    prometheus.Counter
	dropped      *prometheus.CounterVec
	fills        *prometheus.CounterVec
	renderErrors *prometheus.CounterVec
	renderTime   prometheus.Histogram
	queueDepth   prometheus.Gauge
	inputFPS     prometheus.Gauge
	outputFPS    prometheus.Gauge

	// Pipeline-side collectors, driven by internal/gstsrc.
	pushed   prometheus.Counter
	restarts prometheus.Counter
	busErrs  *prometheus.CounterVec
}

// NewPromObserver creates the collectors and registers them on reg.
func NewPromObserver(reg prometheus.Registerer) (*PromObserver, error) {
	p := &PromObserver{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_submitted_total",
			Help:      "Documents submitted by producers.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_dropped_total",
			Help:      "Documents discarded before rendering.",
		}, []string{"reason"}),
		fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fills_total",
			Help:      "Fill calls by final status.",
		}, []string{"status"}),
		renderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_errors_total",
			Help:      "Documents replaced by a transparent frame.",
		}, []string{"kind"}),
		renderTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Time spent rasterizing one document.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Documents waiting to be rendered.",
		}),
		inputFPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "input_fps",
			Help:      "Submit rate over the last reporting window.",
		}),
		outputFPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "output_fps",
			Help:      "Render rate over the last reporting window.",
		}),
		pushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffers_pushed_total",
			Help:      "Frames pushed into the pipeline.",
		}),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_restarts_total",
			Help:      "Pipeline restarts after fatal bus errors.",
		}),
		busErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_errors_total",
			Help:      "Pipeline bus errors by category.",
		}, []string{"category"}),
	}

	for _, c := range []prometheus.Collector{
		p.submitted, p.dropped, p.fills, p.renderErrors, p.renderTime,
		p.queueDepth, p.inputFPS, p.outputFPS, p.pushed, p.restarts, p.busErrs,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Submitted implements element.Observer.
func (p *PromObserver) Submitted(dropped int) {
	p.submitted.Inc()
	if dropped > 0 {
		p.dropped.WithLabelValues("live").Add(float64(dropped))
	}
}

// Reset implements element.Observer.
func (p *PromObserver) Reset(dropped int) {
	if dropped > 0 {
		p.dropped.WithLabelValues("reset").Add(float64(dropped))
	}
}

// Filled implements element.Observer.
func (p *PromObserver) Filled(status element.Status) {
	p.fills.WithLabelValues(status.String()).Inc()
}

// Rendered implements element.Observer.
func (p *PromObserver) Rendered(elapsed time.Duration, err error) {
	p.renderTime.Observe(elapsed.Seconds())
	if err == nil {
		return
	}
	kind := render.KindParse
	var rerr *render.RenderError
	if errors.As(err, &rerr) {
		kind = rerr.Kind
	}
	p.renderErrors.WithLabelValues(kind.String()).Inc()
}

// QueueDepth implements element.Observer.
func (p *PromObserver) QueueDepth(depth int) {
	p.queueDepth.Set(float64(depth))
}

// Throughput implements element.Observer.
func (p *PromObserver) Throughput(report throughput.Report) {
	p.inputFPS.Set(report.InputFPS)
	p.outputFPS.Set(report.OutputFPS)
}

// BufferPushed counts one frame pushed into the pipeline.
func (p *PromObserver) BufferPushed() {
	p.pushed.Inc()
}

// PipelineRestarted counts one pipeline restart.
func (p *PromObserver) PipelineRestarted() {
	p.restarts.Inc()
}

// PipelineError counts one bus error by category.
func (p *PromObserver) PipelineError(category string) {
	p.busErrs.WithLabelValues(category).Inc()
}
