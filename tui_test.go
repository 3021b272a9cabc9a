package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pbterm/devapi"
	"pbterm/session"
)

func update(t *testing.T, m tuiModel, msg tea.Msg) tuiModel {
	t.Helper()
	next, _ := m.Update(msg)
	nm, ok := next.(tuiModel)
	require.True(t, ok)
	return nm
}

func sizedModel(t *testing.T) tuiModel {
	t.Helper()
	m := newTUIModel(tuiOptions{host: "192.168.4.1"}, nil)
	return update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
}

func line(text string) OutputMsg {
	return OutputMsg{Line: session.OutputLine{Text: text, ReceivedAt: time.Now()}}
}

func TestTUIInitialAffordance(t *testing.T) {
	m := sizedModel(t)
	assert.Equal(t, textinput.EchoNormal, m.input.EchoMode)
	assert.Equal(t, session.PlainPlaceholder, m.input.Placeholder)
}

func TestTUISecretModeMasksInput(t *testing.T) {
	m := sizedModel(t)
	mc := session.NewModeController()
	mc.Apply(session.ExpectSecret)

	m = update(t, m, ModeMsg{Mode: mc.Mode(), Affordance: mc.Affordance()})
	assert.Equal(t, textinput.EchoPassword, m.input.EchoMode)
	assert.Equal(t, session.SecretPlaceholder, m.input.Placeholder)

	mc.Submitted()
	m = update(t, m, ModeMsg{Mode: mc.Mode(), Affordance: mc.Affordance()})
	assert.Equal(t, textinput.EchoNormal, m.input.EchoMode)
}

func TestTUIOutputAndClear(t *testing.T) {
	m := sizedModel(t)
	m = update(t, m, line("Username:\r\n"))
	m = update(t, m, line("picobridge> "))
	assert.Equal(t, []string{"Username:", "picobridge> "}, m.lines)
	assert.Contains(t, m.View(), "Username:")

	m = update(t, m, ClearedMsg{})
	assert.Empty(t, m.lines)
}

func TestTUIOutputBeforeResize(t *testing.T) {
	m := newTUIModel(tuiOptions{host: "h"}, nil)
	m = update(t, m, line("early"))
	assert.Equal(t, "Connecting...", m.View())

	m = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 20})
	assert.Contains(t, m.View(), "early")
}

func TestTUIClosed(t *testing.T) {
	m := sizedModel(t)
	m = update(t, m, ClosedMsg{Err: errors.New("link down")})
	assert.True(t, m.closed)
	assert.True(t, m.noticeErr)
	assert.Contains(t, m.View(), "connection lost: link down")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestTUIHeaderAndStatus(t *testing.T) {
	m := sizedModel(t)
	s := devapi.DefaultSettings()
	s.PluggedDevice = "switch-01"
	m = update(t, m, SettingsMsg{Settings: &s})
	m = update(t, m, IdentifyMsg{On: true})

	header := m.headerLine()
	assert.Contains(t, header, "UART 9600 8N1")
	assert.Contains(t, header, "switch-01")
	assert.Contains(t, header, "identify on")

	d := session.Display{
		RxBps:    session.Gauge{Value: 1200, Set: true},
		MemAlloc: session.Gauge{Value: 1234567, Set: true},
	}
	status := statusLine(d)
	assert.Contains(t, status, "1,200 B/s")
	assert.Contains(t, status, "- B/s")
	assert.Contains(t, status, "1,234,567 B used")
	assert.True(t, strings.Contains(status, "- B free"))
}

func TestTUIHelpListsBindings(t *testing.T) {
	m := sizedModel(t)
	view := m.View()
	for _, k := range []string{"enter", "ctrl+y", "ctrl+s", "ctrl+l", "ctrl+t", "ctrl+c"} {
		assert.Contains(t, view, k)
	}
}

func TestTUICtrlCQuits(t *testing.T) {
	m := sizedModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestTUIOutputScrollsToNewestLine(t *testing.T) {
	m := sizedModel(t)
	for i := 0; i < 100; i++ {
		m = update(t, m, line(fmt.Sprintf("boot %d", i)))
	}
	require.True(t, m.view.AtBottom())

	m = update(t, m, tea.KeyMsg{Type: tea.KeyPgUp})
	require.False(t, m.view.AtBottom(), "page up leaves the bottom")

	m = update(t, m, line("Password:"))
	assert.True(t, m.view.AtBottom(), "new output brings the newest line into view")
	assert.Contains(t, m.View(), "Password:")
}

func TestTUIEnterSendsLinesInOrder(t *testing.T) {
	conn := session.NewFakeConn()
	sess := session.New(conn, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sess.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	m := newTUIModel(tuiOptions{host: "h"}, sess)
	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	var want []string
	for i := 0; i < 20; i++ {
		text := fmt.Sprintf("cmd %d", i)
		want = append(want, fmt.Sprintf(`{"input":%q}`, text))
		m.input.SetValue(text)
		next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		m = next.(tuiModel)
		assert.Nil(t, cmd)
		assert.Empty(t, m.input.Value())
	}

	require.Eventually(t, func() bool { return len(conn.Sent()) == len(want) }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, want, conn.Sent())
}
