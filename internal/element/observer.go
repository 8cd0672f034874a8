package element

import (
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/svg-overlay/internal/throughput"
)

// Observer receives element telemetry. Calls happen on the producer or
// consumer goroutine that caused them and must not block.
type Observer interface {
	// Submitted is called after each Submit with the number of items the
	// live policy discarded.
	Submitted(dropped int)
	// Reset is called after a reset with the number of discarded items.
	Reset(dropped int)
	// Filled is called once per Fill with its final status.
	Filled(status Status)
	// Rendered is called after each render step. err is nil or a content error.
	Rendered(elapsed time.Duration, err error)
	// QueueDepth reports the queue depth after a submit or take.
	QueueDepth(depth int)
	// Throughput is called when a reporting window closes.
	Throughput(report throughput.Report)
}

type nopObserver struct{}

func (nopObserver) Submitted(int)                 {}
func (nopObserver) Reset(int)                     {}
func (nopObserver) Filled(Status)                 {}
func (nopObserver) Rendered(time.Duration, error) {}
func (nopObserver) QueueDepth(int)                {}
func (nopObserver) Throughput(throughput.Report)  {}
