// Package common provides small helpers shared by the processing stages.
package common

import (
	"log/slog"
	"time"
)

// Timer measures one processing stage.
type Timer struct {
	start    time.Time
	name     string
	duration time.Duration
	stopped  bool
}

// NewNamedTimer creates a new timer labelled with the stage name.
func NewNamedTimer(name string) *Timer {
	return &Timer{
		name:  name,
		start: time.Now(),
	}
}

// Stop stops the timer and returns the elapsed duration. Later calls return
// the first measurement.
func (t *Timer) Stop() time.Duration {
	if !t.stopped {
		t.duration = time.Since(t.start)
		t.stopped = true
		slog.Debug("stage finished", "stage", t.name, "duration", t.duration)
	}
	return t.duration
}

// Milliseconds returns the recorded duration in fractional milliseconds.
func (t *Timer) Milliseconds() float64 {
	return float64(t.duration) / float64(time.Millisecond)
}
