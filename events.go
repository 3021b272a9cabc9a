package main

import (
	tea "github.com/charmbracelet/bubbletea"

	"pbterm/session"
)

// TUI message types carrying session notifications.
type OutputMsg struct{ Line session.OutputLine }
type ModeMsg struct {
	Mode       session.InputMode
	Affordance session.Affordance
}
type TelemetryMsg struct{ Display session.Display }
type ClearedMsg struct{}
type ClosedMsg struct{ Err error }

// tuiSink forwards session notifications into the Bubble Tea program.
type tuiSink struct {
	p *tea.Program
}

func (s tuiSink) Output(l session.OutputLine) { s.p.Send(OutputMsg{Line: l}) }

func (s tuiSink) Mode(m session.InputMode, a session.Affordance) {
	s.p.Send(ModeMsg{Mode: m, Affordance: a})
}

func (s tuiSink) Telemetry(d session.Display) { s.p.Send(TelemetryMsg{Display: d}) }
func (s tuiSink) Cleared()                    { s.p.Send(ClearedMsg{}) }
func (s tuiSink) Closed(err error)            { s.p.Send(ClosedMsg{Err: err}) }
