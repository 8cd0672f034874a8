// Package throughput measures input and output frame rates over a rolling window.
package throughput

import (
	"sync"
	"time"
)

// Report is one closed measurement window.
type Report struct {
	// Inputs counts submitted items during the window.
	Inputs uint64
	// Outputs counts rendered frames during the window.
	Outputs uint64
	// Elapsed is the window length.
	Elapsed time.Duration
	// InputFPS is Inputs / Elapsed.
	InputFPS float64
	// OutputFPS is Outputs / Elapsed.
	OutputFPS float64
}

// Meter counts inputs and outputs and closes a window every interval.
//
// The window opens at the first output after construction or after the
// previous report, and closes on the first output once more than interval has
// elapsed. Interval 0 disables reporting; counters still accumulate.
//
// Thread-safety: AddInput may run concurrently with AddOutput.
type Meter struct {
	mu       sync.Mutex
	interval time.Duration
	now      func() time.Time

	windowStart time.Time
	inputs      uint64
	outputs     uint64
	last        Report
}

// NewMeter creates a meter reporting every interval (0 = never).
func NewMeter(interval time.Duration) *Meter {
	return &Meter{interval: interval, now: time.Now}
}

// AddInput counts one submitted item.
func (m *Meter) AddInput() {
	m.mu.Lock()
	m.inputs++
	m.mu.Unlock()
}

// AddOutput counts one rendered frame. When the window has run longer than the
// interval it returns the closed window's report and true, and starts a new
// window.
func (m *Meter) AddOutput() (Report, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.outputs++
	now := m.now()
	if m.windowStart.IsZero() {
		m.windowStart = now
	}

	elapsed := now.Sub(m.windowStart)
	if m.interval <= 0 || elapsed <= m.interval {
		return Report{}, false
	}

	secs := elapsed.Seconds()
	report := Report{
		Inputs:    m.inputs,
		Outputs:   m.outputs,
		Elapsed:   elapsed,
		InputFPS:  float64(m.inputs) / secs,
		OutputFPS: float64(m.outputs) / secs,
	}

	m.windowStart = now
	m.inputs = 0
	m.outputs = 0
	m.last = report

	return report, true
}

// Last returns the most recent closed window (zero if none yet).
func (m *Meter) Last() Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
