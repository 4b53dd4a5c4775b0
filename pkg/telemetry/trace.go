package telemetry

import (
	"time"

	"chatcore/pkg/timeutil"
)

// Trace times the steps of one operation into chatcore_operation_step_seconds.
type Trace struct {
	name     string
	start    time.Time
	lastMark time.Time
	done     bool
}

// Track starts a trace for op.
func Track(op string) *Trace {
	now := timeutil.Now()
	return &Trace{name: op, start: now, lastMark: now}
}

// Mark records the time since the previous mark under label.
func (tr *Trace) Mark(label string) {
	now := timeutil.Now()
	stepSeconds.WithLabelValues(tr.name, label).Observe(now.Sub(tr.lastMark).Seconds())
	tr.lastMark = now
}

// Finish records the total duration. Safe to call more than once.
func (tr *Trace) Finish() {
	if tr.done {
		return
	}
	tr.done = true
	stepSeconds.WithLabelValues(tr.name, "total").Observe(time.Since(tr.start).Seconds())
}
