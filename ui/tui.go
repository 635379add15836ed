package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUI message types
type StatusMsg struct{ Text string }
type SendEnabledMsg struct{ Enabled bool }
type BeginTurnMsg struct{}
type AppendTextMsg struct{ Text string }
type EndTurnMsg struct{}
type EchoMsg struct{ Text string }
type AudioSavedMsg struct{ Path string }
type errMsg struct{ err error }
type micErrMsg struct{ err error }

type speaker int

const (
	speakerUser speaker = iota
	speakerAgent
	speakerNote
)

type entry struct {
	who  speaker
	text string
}

type model struct {
	ctrl          Controller
	status        string
	sendEnabled   bool
	audioMode     bool
	recording     bool
	input         []rune
	entries       []entry
	open          int // index of the agent entry being streamed, -1 when none
	lastErr       string
	width, height int
}

func newModel(ctrl Controller, audioMode bool) model {
	return model{
		ctrl:      ctrl,
		status:    "Connecting...",
		audioMode: audioMode,
		open:      -1,
	}
}

// TUI is a full-screen session display backed by a bubbletea program.
// Display calls are forwarded to the program as messages.
type TUI struct {
	program *tea.Program
}

type bindMsg struct{ ctrl Controller }

// NewTUI builds the program. The controller is bound in Run, so the
// TUI can be handed to the session as its Display first.
func NewTUI(audioMode bool, opts ...tea.ProgramOption) *TUI {
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	return &TUI{program: tea.NewProgram(newModel(nil, audioMode), opts...)}
}

// Run blocks until the user quits
func (t *TUI) Run(ctrl Controller) error {
	go t.program.Send(bindMsg{ctrl: ctrl})
	_, err := t.program.Run()
	return err
}

func (t *TUI) Quit() {
	t.program.Quit()
}

func (t *TUI) Status(text string)       { t.program.Send(StatusMsg{Text: text}) }
func (t *TUI) SendEnabled(enabled bool) { t.program.Send(SendEnabledMsg{Enabled: enabled}) }
func (t *TUI) BeginTurn()               { t.program.Send(BeginTurnMsg{}) }
func (t *TUI) AppendText(text string)   { t.program.Send(AppendTextMsg{Text: text}) }
func (t *TUI) EndTurn()                 { t.program.Send(EndTurnMsg{}) }
func (t *TUI) Echo(text string)         { t.program.Send(EchoMsg{Text: text}) }
func (t *TUI) AudioSaved(path string)   { t.program.Send(AudioSavedMsg{Path: path}) }

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case bindMsg:
		m.ctrl = msg.ctrl

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StatusMsg:
		m.status = msg.Text

	case SendEnabledMsg:
		m.sendEnabled = msg.Enabled

	case BeginTurnMsg:
		m.entries = append(m.entries, entry{who: speakerAgent})
		m.open = len(m.entries) - 1

	case AppendTextMsg:
		if m.open < 0 {
			m.entries = append(m.entries, entry{who: speakerAgent})
			m.open = len(m.entries) - 1
		}
		m.entries[m.open].text += msg.Text

	case EndTurnMsg:
		m.open = -1

	case EchoMsg:
		m.entries = append(m.entries, entry{who: speakerUser, text: msg.Text})

	case AudioSavedMsg:
		m.entries = append(m.entries, entry{who: speakerNote, text: "Audio saved to " + msg.Path})

	case errMsg:
		m.lastErr = msg.err.Error()

	case micErrMsg:
		m.recording = false
		m.lastErr = msg.err.Error()
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}
	if m.ctrl == nil {
		return m, nil
	}

	switch msg.Type {
	case tea.KeyEnter:
		text := strings.TrimSpace(string(m.input))
		if text == "" || !m.sendEnabled {
			return m, nil
		}
		m.input = nil
		m.lastErr = ""
		ctrl := m.ctrl
		return m, func() tea.Msg {
			return result(ctrl.SendText(text))
		}

	case tea.KeyBackspace:
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}

	case tea.KeySpace:
		m.input = append(m.input, ' ')

	case tea.KeyRunes:
		m.input = append(m.input, msg.Runes...)

	case tea.KeyCtrlT:
		m.audioMode = !m.audioMode
		on, ctrl := m.audioMode, m.ctrl
		return m, func() tea.Msg {
			return result(ctrl.SetAudioMode(on))
		}

	case tea.KeyCtrlR:
		m.recording = !m.recording
		recording, ctrl := m.recording, m.ctrl
		return m, func() tea.Msg {
			if recording {
				if err := ctrl.StartAudio(); err != nil {
					return micErrMsg{err: err}
				}
				return nil
			}
			return result(ctrl.StopAudio())
		}

	case tea.KeyCtrlO:
		ctrl := m.ctrl
		return m, func() tea.Msg {
			return result(ctrl.Reconnect())
		}
	}
	return m, nil
}

func result(err error) tea.Msg {
	if err != nil {
		return errMsg{err: err}
	}
	return nil
}

func (m model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	header := m.renderHeader()
	footer := m.renderFooter()

	available := m.height - lipgloss.Height(header) - lipgloss.Height(footer)
	if available < 1 {
		available = 1
	}

	lines := strings.Split(m.renderTranscript(), "\n")
	if len(lines) > available {
		lines = lines[len(lines)-available:]
	}
	for len(lines) < available {
		lines = append(lines, "")
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, strings.Join(lines, "\n"), footer)
}

func (m model) renderHeader() string {
	status := statusStyle.Render(m.status)
	if m.sendEnabled {
		status = connectedStyle.Render("● " + m.status)
	}

	mode := "text"
	if m.audioMode {
		mode = "audio"
	}
	parts := []string{status, statusStyle.Render("replies: " + mode)}
	if m.recording {
		parts = append(parts, recordingStyle.Render("● REC"))
	}
	return strings.Join(parts, statusStyle.Render("  |  "))
}

func (m model) renderTranscript() string {
	width := m.width - 2
	if width < 10 {
		width = 10
	}

	var b strings.Builder
	for i, e := range m.entries {
		if i > 0 {
			b.WriteString("\n")
		}
		switch e.who {
		case speakerUser:
			b.WriteString(labelStyle.Render("You: "))
			b.WriteString(userStyle.Width(width - 5).Render(e.text))
		case speakerAgent:
			b.WriteString(labelStyle.Render("Agent: "))
			b.WriteString(agentStyle.Width(width - 7).Render(e.text))
		case speakerNote:
			b.WriteString(savedStyle.Render(e.text))
		}
	}
	return b.String()
}

func (m model) renderFooter() string {
	var lines []string
	if m.lastErr != "" {
		lines = append(lines, errorStyle.Render(m.lastErr))
	}

	prompt := "> " + string(m.input)
	if !m.sendEnabled {
		prompt = disabledStyle.Render(prompt)
	}
	lines = append(lines, prompt)

	help := fmt.Sprintf("%s send  %s mic  %s reply mode  %s reconnect  %s quit",
		helpKeyStyle.Render("Enter"),
		helpKeyStyle.Render("Ctrl+R"),
		helpKeyStyle.Render("Ctrl+T"),
		helpKeyStyle.Render("Ctrl+O"),
		helpKeyStyle.Render("Ctrl+C"))
	lines = append(lines, helpStyle.Render(help))
	return strings.Join(lines, "\n")
}
