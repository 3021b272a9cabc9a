package session

import (
	"strings"
	"time"
)

// OutputLine is one line of remote output as received from the device.
type OutputLine struct {
	Text       string
	ReceivedAt time.Time
}

// Rendered returns the line without its trailing line break.
func (l OutputLine) Rendered() string {
	return strings.TrimRight(l.Text, "\r\n")
}

// Transcript is the append-only, receipt-ordered log of output lines.
// It has no size cap.
type Transcript struct {
	lines []OutputLine
	now   func() time.Time
}

func NewTranscript(now func() time.Time) *Transcript {
	if now == nil {
		now = time.Now
	}
	return &Transcript{now: now}
}

func (t *Transcript) Append(text string) OutputLine {
	line := OutputLine{Text: text, ReceivedAt: t.now()}
	t.lines = append(t.lines, line)
	return line
}

func (t *Transcript) Clear() {
	t.lines = nil
}

func (t *Transcript) Len() int {
	return len(t.lines)
}

// Lines returns a copy of the log.
func (t *Transcript) Lines() []OutputLine {
	out := make([]OutputLine, len(t.lines))
	copy(out, t.lines)
	return out
}

// ExportText joins all rendered lines with "\n". Used for both the clipboard
// and the file export.
func (t *Transcript) ExportText() string {
	if len(t.lines) == 0 {
		return ""
	}
	var b strings.Builder
	for i, l := range t.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l.Rendered())
	}
	return b.String()
}
