package session

import (
	"time"

	"pbterm/log"
)

// Sink receives every change the core makes to what the operator sees.
// Calls arrive on the session's event-loop goroutine, one at a time.
type Sink interface {
	Output(line OutputLine)
	Mode(mode InputMode, a Affordance)
	Telemetry(d Display)
	Cleared()
	Closed(err error)
}

// State is the session-scoped context every handler operates on: one
// transcript, one input mode, one telemetry display.
type State struct {
	Transcript *Transcript
	Mode       *ModeController
	Telemetry  *Telemetry

	sink  Sink
	send  func(data []byte) bool
	stats stateStats
}

type stateStats struct {
	framesRecv   int
	decodeFaults int
	fieldFaults  int
	linesAdded   int
	inputsSent   int
	inputsDrop   int
}

// NewState wires the core components together. send hands an encoded input
// frame to the transport and reports whether it was accepted; it must not
// block and must keep frames in order.
func NewState(sink Sink, sched Scheduler, now func() time.Time, send func([]byte) bool) *State {
	if sink == nil {
		sink = NopSink{}
	}
	st := &State{
		Transcript: NewTranscript(now),
		Mode:       NewModeController(),
		sink:       sink,
		send:       send,
	}
	st.Telemetry = NewTelemetry(sched, PulseDwell, sink.Telemetry)
	return st
}

// HandleFrame decodes and applies one inbound frame. A malformed frame
// changes nothing and is reported through the returned error; a bad field
// only skips that field.
func (st *State) HandleFrame(data []byte) error {
	st.stats.framesRecv++
	f, fieldErrs, err := DecodeFrame(data)
	if err != nil {
		st.stats.decodeFaults++
		log.DecodeFault(err, len(data))
		return err
	}
	for _, fe := range fieldErrs {
		st.stats.fieldFaults++
		log.FieldFault(fe)
	}

	if !f.Sample.Empty() {
		st.Telemetry.Apply(f.Sample)
	}

	if f.Output != nil && *f.Output != "" {
		line := st.Transcript.Append(*f.Output)
		st.stats.linesAdded++
		st.sink.Output(line)

		v := Classify(line.Text)
		if st.Mode.Apply(v) {
			log.ModeChange(st.Mode.Mode().String(), v.String())
			st.sink.Mode(st.Mode.Mode(), st.Mode.Affordance())
		}
	}
	return nil
}

// HandleSubmit sends one line of input and consumes a pending secret mode.
// The transcript is not touched; any echo comes back through the stream.
func (st *State) HandleSubmit(text string) error {
	data, err := EncodeInput(text)
	if err != nil {
		return err
	}
	if st.send(data) {
		st.stats.inputsSent++
	} else {
		st.stats.inputsDrop++
		log.Warn("input dropped: session closing")
	}
	if st.Mode.Submitted() {
		log.ModeChange(st.Mode.Mode().String(), "submitted")
		st.sink.Mode(st.Mode.Mode(), st.Mode.Affordance())
	}
	return nil
}

func (st *State) HandleClear() {
	st.Transcript.Clear()
	st.sink.Cleared()
}

// NopSink discards every notification.
type NopSink struct{}

func (NopSink) Output(OutputLine)          {}
func (NopSink) Mode(InputMode, Affordance) {}
func (NopSink) Telemetry(Display)          {}
func (NopSink) Cleared()                   {}
func (NopSink) Closed(error)               {}
