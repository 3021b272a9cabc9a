package session

import (
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

// Sample is one tick of telemetry. Nil fields carry no update.
type Sample struct {
	RxActive bool
	TxActive bool
	RxBps    *float64
	TxBps    *float64
	MemAlloc *int64
	MemFree  *int64
}

func (s Sample) Empty() bool {
	return !s.RxActive && !s.TxActive && s.RxBps == nil && s.TxBps == nil && s.MemAlloc == nil && s.MemFree == nil
}

// Gauge is a sticky numeric display value.
type Gauge struct {
	Value float64
	Set   bool
}

// Rate renders a throughput value, e.g. "1,200 B/s".
func (g Gauge) Rate() string {
	if !g.Set {
		return "- B/s"
	}
	return humanize.Commaf(g.Value) + " B/s"
}

// Bytes renders a byte count with thousands grouping, e.g. "123,456 B".
func (g Gauge) Bytes() string {
	if !g.Set {
		return "- B"
	}
	return humanize.Comma(int64(g.Value)) + " B"
}

func (g Gauge) String() string {
	if !g.Set {
		return "-"
	}
	return strconv.FormatFloat(g.Value, 'f', -1, 64)
}

// Display is what the telemetry indicators currently show.
type Display struct {
	RxOn     bool
	TxOn     bool
	RxBps    Gauge
	TxBps    Gauge
	MemAlloc Gauge
	MemFree  Gauge
}

// Telemetry applies samples to the display. Each field is independent of
// every other field.
type Telemetry struct {
	display Display
	rx, tx  *Pulse
	notify  func(Display)
}

func NewTelemetry(sched Scheduler, dwell time.Duration, notify func(Display)) *Telemetry {
	if notify == nil {
		notify = func(Display) {}
	}
	t := &Telemetry{notify: notify}
	t.rx = NewPulse(sched, dwell, func(on bool) {
		t.display.RxOn = on
		t.notify(t.display)
	})
	t.tx = NewPulse(sched, dwell, func(on bool) {
		t.display.TxOn = on
		t.notify(t.display)
	})
	return t
}

func (t *Telemetry) Display() Display {
	return t.display
}

// Apply updates every present field. Pulse transitions notify on their own;
// numeric changes are notified once at the end.
func (t *Telemetry) Apply(s Sample) {
	if s.RxActive {
		t.rx.Trigger()
	}
	if s.TxActive {
		t.tx.Trigger()
	}

	changed := false
	if s.RxBps != nil {
		t.display.RxBps = Gauge{Value: *s.RxBps, Set: true}
		changed = true
	}
	if s.TxBps != nil {
		t.display.TxBps = Gauge{Value: *s.TxBps, Set: true}
		changed = true
	}
	if s.MemAlloc != nil {
		t.display.MemAlloc = Gauge{Value: float64(*s.MemAlloc), Set: true}
		changed = true
	}
	if s.MemFree != nil {
		t.display.MemFree = Gauge{Value: float64(*s.MemFree), Set: true}
		changed = true
	}
	if changed {
		t.notify(t.display)
	}
}

// Stop switches both pulses off and cancels their decay timers.
func (t *Telemetry) Stop() {
	t.rx.Stop()
	t.tx.Stop()
}
