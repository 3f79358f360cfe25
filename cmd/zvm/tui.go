package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/gozork/zvm/internal/host"
	"github.com/gozork/zvm/internal/vm"
)

// screenBuffer implements host.Screen by keeping an append-only lower
// window (the transcript, as the Z-Machine models it) and a fixed grid of
// rows for the upper window that opcodes address by row/column.
type screenBuffer struct {
	width, height int

	upperHeight int
	upperLines  []string

	lowerText strings.Builder

	cursorRow, cursorCol int
	style                lipgloss.Style

	statusLeft, statusRight string

	bell bool
}

func newScreenBuffer() *screenBuffer {
	return &screenBuffer{style: lipgloss.NewStyle()}
}

func (s *screenBuffer) resize(w, h int) {
	s.width, s.height = w, h
	for len(s.upperLines) < s.upperHeight {
		s.upperLines = append(s.upperLines, strings.Repeat(" ", w))
	}
	for i, row := range s.upperLines {
		if len(row) < w {
			s.upperLines[i] = row + strings.Repeat(" ", w-len(row))
		} else if len(row) > w {
			s.upperLines[i] = row[:w]
		}
	}
}

func (s *screenBuffer) Print(window host.Window, text string) {
	if window == host.UpperWindow {
		s.printUpper(text)
		return
	}
	s.lowerText.WriteString(text)
}

func (s *screenBuffer) printUpper(text string) {
	for _, seg := range strings.Split(text, "\n") {
		if seg != "" && s.cursorRow >= 0 && s.cursorRow < len(s.upperLines) {
			row := []rune(s.upperLines[s.cursorRow])
			for i, r := range seg {
				col := s.cursorCol + i
				if col >= 0 && col < len(row) {
					row[col] = r
				}
			}
			s.upperLines[s.cursorRow] = string(row)
			s.cursorCol += len(seg)
		}
	}
	if strings.Contains(text, "\n") {
		s.cursorRow++
		s.cursorCol = 0
	}
}

func (s *screenBuffer) SplitWindow(upperHeight int) {
	s.upperHeight = upperHeight
	if upperHeight < len(s.upperLines) {
		s.upperLines = s.upperLines[:upperHeight]
	}
	for len(s.upperLines) < upperHeight {
		s.upperLines = append(s.upperLines, strings.Repeat(" ", s.width))
	}
}

func (s *screenBuffer) SetWindow(host.Window) {}

func (s *screenBuffer) SetCursor(window host.Window, row, col int) {
	if window == host.UpperWindow {
		s.cursorRow, s.cursorCol = row-1, col-1
	}
}

func (s *screenBuffer) EraseWindow(window host.Window) {
	if window == host.UpperWindow {
		for i := range s.upperLines {
			s.upperLines[i] = strings.Repeat(" ", s.width)
		}
	} else {
		s.lowerText.Reset()
	}
}

func (s *screenBuffer) EraseLine(host.Window) {
	if s.cursorRow >= 0 && s.cursorRow < len(s.upperLines) {
		s.upperLines[s.cursorRow] = strings.Repeat(" ", s.width)
	}
}

func (s *screenBuffer) SetTextStyle(_ host.Window, style host.TextStyle) {
	s.style = lipgloss.NewStyle().
		Bold(style&host.StyleBold != 0).
		Italic(style&host.StyleItalic != 0).
		Reverse(style&host.StyleReverse != 0)
}

func (s *screenBuffer) SetColor(_ host.Window, fg, bg host.Color) {
	s.style = s.style.
		Foreground(lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", fg.R, fg.G, fg.B))).
		Background(lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", bg.R, bg.G, bg.B)))
}

func (s *screenBuffer) SetStatusBar(left, right string) {
	s.statusLeft, s.statusRight = left, right
}

func (s *screenBuffer) Ring() { s.bell = true }

// interpreterInput implements host.Input by recording the request; the
// tea.Model itself drives the actual line/char collection through its
// own text input widget and calls Machine.Resume once the player answers.
type interpreterInput struct {
	waitingLine, waitingChar bool
	timeout                  time.Duration
	generation               int
}

func (in *interpreterInput) RequestLine(req host.InputRequest) {
	in.waitingLine, in.timeout = true, req.Timeout
	in.generation++
}
func (in *interpreterInput) RequestChar(req host.InputRequest) {
	in.waitingChar, in.timeout = true, req.Timeout
	in.generation++
}

// timeoutMsg fires when a sread/read_char's deci-second timer elapses;
// generation guards against a stale timer from a prior input request firing
// after the player has already answered.
type timeoutMsg struct{ generation int }

func waitForTimeout(d time.Duration, generation int) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return timeoutMsg{generation: generation} })
}

// ranMsg signals that a Run() pass completed (the machine suspended or
// halted) and the view should refresh.
type ranMsg struct{ err error }

func runMachine(m *vm.Machine) tea.Cmd {
	return func() tea.Msg {
		err := m.Run()
		return ranMsg{err: err}
	}
}

type storyModel struct {
	machine     *vm.Machine
	screen      *screenBuffer
	input       *interpreterInput
	inputBox    textinput.Model
	width       int
	height      int
	runtimeErr  string
	storyPath   string
}

func newStoryModel(storyBytes []byte, storyPath string, cfg vm.Config, storage host.Storage, logger host.Logger) (storyModel, error) {
	screen := newScreenBuffer()
	input := &interpreterInput{}
	m, err := vm.New(storyBytes, cfg, screen, input, storage, logger)
	if err != nil {
		return storyModel{}, err
	}

	ti := textinput.New()
	ti.Focus()
	ti.Prompt = "> "
	ti.CharLimit = 200

	return storyModel{machine: m, screen: screen, input: input, inputBox: ti, storyPath: storyPath}, nil
}

func (m storyModel) Init() tea.Cmd {
	return tea.Batch(runMachine(m.machine), tea.SetWindowTitle(m.storyPath))
}

func (m storyModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.screen.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.input.waitingChar {
			m.input.waitingChar = false
			var r rune
			if len(msg.Runes) > 0 {
				r = msg.Runes[0]
			} else if msg.Type == tea.KeyEnter {
				r = '\r'
			}
			m.machine.Resume("", r)
			return m, runMachine(m.machine)
		}
		if m.input.waitingLine && msg.Type == tea.KeyEnter {
			m.input.waitingLine = false
			line := m.inputBox.Value()
			m.screen.lowerText.WriteString(line + "\n")
			m.inputBox.SetValue("")
			m.machine.Resume(line, 0)
			return m, runMachine(m.machine)
		}

	case ranMsg:
		if msg.err != nil {
			m.runtimeErr = msg.err.Error()
		}
		if (m.input.waitingLine || m.input.waitingChar) && m.input.timeout > 0 {
			return m, waitForTimeout(m.input.timeout, m.input.generation)
		}
		return m, nil

	case timeoutMsg:
		if msg.generation != m.input.generation {
			return m, nil // a newer input request has already superseded this timer
		}
		cancelled := m.machine.Timeout()
		if !cancelled {
			return m, nil
		}
		m.input.waitingLine, m.input.waitingChar = false, false
		return m, runMachine(m.machine)
	}

	if m.input.waitingLine {
		var cmd tea.Cmd
		m.inputBox, cmd = m.inputBox.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m storyModel) View() string {
	if m.runtimeErr != "" {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true)
		return fmt.Sprintf("\n%s\n\n%s\n", errStyle.Render("Z-Machine runtime error:"), m.runtimeErr)
	}
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	if m.screen.statusLeft != "" || m.screen.statusRight != "" {
		statusStyle := lipgloss.NewStyle().Reverse(true).Width(m.width)
		pad := m.width - len(m.screen.statusLeft) - len(m.screen.statusRight)
		if pad < 1 {
			pad = 1
		}
		b.WriteString(statusStyle.Render(m.screen.statusLeft + strings.Repeat(" ", pad) + m.screen.statusRight))
		b.WriteString("\n")
	}
	for _, row := range m.screen.upperLines {
		b.WriteString(row)
		b.WriteString("\n")
	}

	lowerHeight := m.height - len(m.screen.upperLines) - 2
	wrapped := wordwrap.String(m.screen.lowerText.String(), m.width)
	lines := strings.Split(wrapped, "\n")
	if lowerHeight > 0 && len(lines) > lowerHeight {
		lines = lines[len(lines)-lowerHeight:]
	}
	b.WriteString(strings.Join(lines, "\n"))

	if m.input.waitingLine {
		b.WriteString("\n" + m.inputBox.View())
	}

	return b.String()
}
