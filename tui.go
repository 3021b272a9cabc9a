package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pbterm/devapi"
	"pbterm/export"
	"pbterm/log"
	"pbterm/session"
)

type NoticeMsg struct {
	Text string
	Err  bool
}
type SettingsMsg struct{ Settings *devapi.Settings }
type IdentifyMsg struct{ On bool }

const opTimeout = 5 * time.Second

var (
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	hostStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	ledOnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	ledOffStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	statStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	secretStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true)
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpKeyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
)

type keyMap struct {
	Send     key.Binding
	Copy     key.Binding
	Save     key.Binding
	Clear    key.Binding
	Identify key.Binding
	Scroll   key.Binding
	Quit     key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.Copy, k.Save, k.Clear, k.Identify, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp(), {k.Scroll}}
}

func newKeyMap() keyMap {
	return keyMap{
		Send:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		Copy:     key.NewBinding(key.WithKeys("ctrl+y"), key.WithHelp("ctrl+y", "copy")),
		Save:     key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "save")),
		Clear:    key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "clear")),
		Identify: key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("ctrl+t", "identify")),
		Scroll:   key.NewBinding(key.WithKeys("pgup", "pgdown", "ctrl+home", "ctrl+end"), key.WithHelp("pgup/pgdn", "scroll")),
		Quit:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
}

type tuiOptions struct {
	host        string
	api         *devapi.Client
	downloadDir string
	saveOnExit  bool
}

type tuiModel struct {
	opts tuiOptions
	sess *session.Session

	input textinput.Model
	view  viewport.Model
	keys  keyMap
	help  help.Model
	lines []string

	mode     session.InputMode
	display  session.Display
	settings *devapi.Settings
	identify bool

	notice    string
	noticeErr bool
	closed    bool

	width, height int
	ready         bool
}

func newTUIModel(opts tuiOptions, sess *session.Session) tuiModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 1024
	ti.Focus()
	applyAffordance(&ti, session.NewModeController().Affordance())

	h := help.New()
	h.ShortSeparator = " • "
	h.Styles.ShortKey = helpKeyStyle
	h.Styles.ShortDesc = helpStyle
	h.Styles.ShortSeparator = helpStyle

	return tuiModel{
		opts:  opts,
		sess:  sess,
		input: ti,
		view:  viewport.New(80, 20),
		keys:  newKeyMap(),
		help:  h,
	}
}

func applyAffordance(ti *textinput.Model, a session.Affordance) {
	ti.Placeholder = a.Placeholder
	if a.Masked {
		ti.EchoMode = textinput.EchoPassword
		ti.EchoCharacter = '•'
	} else {
		ti.EchoMode = textinput.EchoNormal
	}
}

// runTUI connects to the bridge and runs the interactive terminal until the
// user quits or the connection ends and the user dismisses it.
func runTUI(ctx context.Context, opts tuiOptions) error {
	sink := &tuiSink{}
	sess, err := session.Connect(ctx, opts.host, sink)
	if err != nil {
		return err
	}

	p := tea.NewProgram(newTUIModel(opts, sess), tea.WithAltScreen(), tea.WithContext(ctx))
	sink.p = p

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go sess.Run(runCtx)

	_, err = p.Run()
	cancel()
	<-sess.Done()

	if opts.saveOnExit {
		saveTranscript(sess, opts.downloadDir)
	}
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func saveTranscript(sess *session.Session, dir string) {
	text, err := sess.ExportText(context.Background())
	if err != nil {
		return
	}
	path, err := export.Save(dir, text, time.Now())
	if err != nil {
		if !errors.Is(err, export.ErrEmpty) {
			log.Errorf("save on exit: %v", err)
		}
		return
	}
	fmt.Println("transcript saved to", path)
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.fetchSettings(), m.fetchIdentify())
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 4
		m.view.Width = msg.Width
		m.view.Height = m.viewHeight()
		m.help.Width = msg.Width
		m.ready = true
		m.refreshView()
		m.view.GotoBottom()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Send):
			if m.closed {
				return m, tea.Quit
			}
			text := m.input.Value()
			m.input.Reset()
			m.submit(text)
			return m, nil
		case key.Matches(msg, m.keys.Copy):
			return m, m.copyTranscript()
		case key.Matches(msg, m.keys.Save):
			return m, m.saveTranscript()
		case key.Matches(msg, m.keys.Clear):
			return m, m.clear()
		case key.Matches(msg, m.keys.Identify):
			return m, m.toggleIdentify()
		case key.Matches(msg, m.keys.Scroll):
			var cmd tea.Cmd
			m.view, cmd = m.view.Update(msg)
			return m, cmd
		}

	case OutputMsg:
		m.lines = append(m.lines, msg.Line.Rendered())
		m.refreshView()
		m.view.GotoBottom()
		return m, nil

	case ModeMsg:
		m.mode = msg.Mode
		applyAffordance(&m.input, msg.Affordance)
		return m, nil

	case TelemetryMsg:
		m.display = msg.Display
		return m, nil

	case ClearedMsg:
		m.lines = nil
		m.refreshView()
		return m, nil

	case ClosedMsg:
		m.closed = true
		m.input.Blur()
		if msg.Err != nil {
			m.notice, m.noticeErr = "connection lost: "+msg.Err.Error()+" (enter to exit)", true
		} else {
			m.notice, m.noticeErr = "session closed (enter to exit)", false
		}
		return m, nil

	case NoticeMsg:
		m.notice, m.noticeErr = msg.Text, msg.Err
		return m, nil

	case SettingsMsg:
		m.settings = msg.Settings
		return m, nil

	case IdentifyMsg:
		m.identify = msg.On
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m tuiModel) viewHeight() int {
	// header, status, notice, input, help
	h := m.height - 5
	if h < 1 {
		h = 1
	}
	return h
}

func (m *tuiModel) refreshView() {
	if !m.ready {
		return
	}
	wrap := lipgloss.NewStyle().Width(m.view.Width)
	m.view.SetContent(wrap.Render(strings.Join(m.lines, "\n")))
}

// submit hands the line to the session from inside Update, so lines reach
// the device in the order they were entered. Submit only enqueues.
func (m *tuiModel) submit(text string) {
	if m.sess == nil {
		return
	}
	if err := m.sess.Submit(text); err != nil {
		m.notice, m.noticeErr = "send failed: "+err.Error(), true
	}
}

func (m tuiModel) copyTranscript() tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		text, err := sess.ExportText(ctx)
		if err == nil {
			err = export.Copy(text)
		}
		if err != nil {
			return NoticeMsg{Text: "copy failed: " + err.Error(), Err: true}
		}
		return NoticeMsg{Text: fmt.Sprintf("copied %d bytes to clipboard", len(text))}
	}
}

func (m tuiModel) saveTranscript() tea.Cmd {
	sess, dir := m.sess, m.opts.downloadDir
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		text, err := sess.ExportText(ctx)
		if err != nil {
			return NoticeMsg{Text: "save failed: " + err.Error(), Err: true}
		}
		path, err := export.Save(dir, text, time.Now())
		if err != nil {
			return NoticeMsg{Text: "save failed: " + err.Error(), Err: true}
		}
		return NoticeMsg{Text: "saved " + path}
	}
}

func (m tuiModel) clear() tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := sess.Clear(ctx); err != nil {
			return NoticeMsg{Text: "clear failed: " + err.Error(), Err: true}
		}
		return nil
	}
}

func (m tuiModel) fetchSettings() tea.Cmd {
	api := m.opts.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		s, err := api.Settings(ctx)
		if err != nil {
			return NoticeMsg{Text: "settings unavailable: " + err.Error(), Err: true}
		}
		return SettingsMsg{Settings: s}
	}
}

func (m tuiModel) fetchIdentify() tea.Cmd {
	api := m.opts.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		on, err := api.Identify(ctx)
		if err != nil {
			return nil
		}
		return IdentifyMsg{On: on}
	}
}

func (m tuiModel) toggleIdentify() tea.Cmd {
	api := m.opts.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		on, err := api.ToggleIdentify(ctx)
		if err != nil {
			return NoticeMsg{Text: "identify failed: " + err.Error(), Err: true}
		}
		return IdentifyMsg{On: on}
	}
}

func (m tuiModel) View() string {
	if !m.ready {
		return "Connecting..."
	}

	var b strings.Builder
	b.WriteString(m.headerLine())
	b.WriteString("\n")
	b.WriteString(m.view.View())
	b.WriteString("\n")
	b.WriteString(statusLine(m.display))
	b.WriteString("\n")
	if m.noticeErr {
		b.WriteString(errorStyle.Render(m.notice))
	} else {
		b.WriteString(noticeStyle.Render(m.notice))
	}
	b.WriteString("\n")
	if m.mode == session.Secret {
		b.WriteString(secretStyle.Render("🔒 "))
	}
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m tuiModel) headerLine() string {
	parts := []string{hostStyle.Render("pbterm " + m.opts.host)}
	if s := m.settings; s != nil {
		parts = append(parts, "UART "+s.UART.Summary())
		if s.PluggedDevice != "" {
			parts = append(parts, s.PluggedDevice)
		}
		if s.Location != "" {
			parts = append(parts, s.Location)
		}
	}
	if m.identify {
		parts = append(parts, "identify on")
	}
	return headerStyle.Render(strings.Join(parts, " | "))
}

func led(on bool) string {
	if on {
		return ledOnStyle.Render("●")
	}
	return ledOffStyle.Render("●")
}

func statusLine(d session.Display) string {
	return fmt.Sprintf("RX %s %s  TX %s %s  %s",
		led(d.RxOn), statStyle.Render(d.RxBps.Rate()),
		led(d.TxOn), statStyle.Render(d.TxBps.Rate()),
		statStyle.Render("mem "+d.MemAlloc.Bytes()+" used / "+d.MemFree.Bytes()+" free"),
	)
}
