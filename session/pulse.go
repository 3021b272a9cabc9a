package session

import "time"

// PulseDwell is how long an activity pulse stays on after its last trigger.
const PulseDwell = 100 * time.Millisecond

// Scheduler runs fn once after d unless the returned cancel is called first.
// Callbacks must run on the same goroutine as the code that schedules them.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) (cancel func())
}

// Pulse is a retriggerable on/off indicator with a fixed decay. Triggers
// inside the dwell window extend one continuous pulse.
type Pulse struct {
	dwell    time.Duration
	sched    Scheduler
	on       bool
	cancel   func()
	onChange func(on bool)
}

func NewPulse(sched Scheduler, dwell time.Duration, onChange func(on bool)) *Pulse {
	if onChange == nil {
		onChange = func(bool) {}
	}
	return &Pulse{dwell: dwell, sched: sched, onChange: onChange}
}

func (p *Pulse) On() bool {
	return p.on
}

func (p *Pulse) Trigger() {
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = p.sched.Schedule(p.dwell, p.expire)
	if !p.on {
		p.on = true
		p.onChange(true)
	}
}

// Stop cancels a pending decay and switches the pulse off.
func (p *Pulse) Stop() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.on {
		p.on = false
		p.onChange(false)
	}
}

func (p *Pulse) expire() {
	p.cancel = nil
	if p.on {
		p.on = false
		p.onChange(false)
	}
}
