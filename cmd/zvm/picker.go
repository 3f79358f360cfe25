package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gozork/zvm/internal/host"
	"github.com/gozork/zvm/internal/vm"
)

var docStyle = lipgloss.NewStyle().Margin(1, 2)

// storyFile is one candidate picked up from a local directory scan.
type storyFile struct {
	name, path string
}

func (s storyFile) Title() string       { return s.name }
func (s storyFile) Description() string { return s.path }
func (s storyFile) FilterValue() string { return s.name }

type pickerState int

const (
	scanning pickerState = iota
	choosing
	launching
)

// pickerModel replaces the teacher's ifarchive.org browser (which required
// scraping a live website with goquery) with a local filesystem scan: the
// same loading-spinner -> list -> launch state machine, pointed at a
// directory of story files already on disk.
type pickerModel struct {
	state     pickerState
	dir       string
	list      list.Model
	spinner   spinner.Model
	err       error
	cfg       vm.Config
	storage   host.Storage
	logger    host.Logger
}

type scannedMsg []list.Item
type scanErrMsg struct{ error }

func newPickerModel(dir string, cfg vm.Config, storage host.Storage, logger host.Logger) pickerModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return pickerModel{
		state:   scanning,
		dir:     dir,
		list:    list.New(nil, list.NewDefaultDelegate(), 0, 0),
		spinner: sp,
		cfg:     cfg,
		storage: storage,
		logger:  logger,
	}
}

func (m pickerModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, scanDir(m.dir))
}

func scanDir(dir string) tea.Cmd {
	return func() tea.Msg {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return scanErrMsg{err}
		}
		var items []list.Item
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if len(ext) == 3 && ext[1] == 'z' && ext[2] >= '1' && ext[2] <= '8' {
				items = append(items, storyFile{name: e.Name(), path: filepath.Join(dir, e.Name())})
			}
		}
		return scannedMsg(items)
	}
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			if m.state != choosing {
				break
			}
			sel, ok := m.list.SelectedItem().(storyFile)
			if !ok {
				break
			}
			m.state = launching
			return m, loadStory(sel.path)
		}

	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.list.SetSize(msg.Width-h, msg.Height-v)

	case scannedMsg:
		m.state = choosing
		m.list.SetShowStatusBar(false)
		m.list.SetShowTitle(false)
		return m, m.list.SetItems([]list.Item(msg))

	case scanErrMsg:
		m.err = msg
		return m, nil

	case loadedStoryMsg:
		model, err := newStoryModel(msg.bytes, msg.path, m.cfg, m.storage, m.logger)
		if err != nil {
			m.err = err
			m.state = choosing
			return m, nil
		}
		return model, model.Init()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

type loadedStoryMsg struct {
	bytes []byte
	path  string
}

func loadStory(path string) tea.Cmd {
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		if err != nil {
			return scanErrMsg{err}
		}
		return loadedStoryMsg{bytes: data, path: path}
	}
}

func (m pickerModel) View() string {
	if m.err != nil {
		return docStyle.Render(fmt.Sprintf("Error: %s", m.err))
	}
	switch m.state {
	case scanning:
		return fmt.Sprintf("\n\n   %s Scanning %s...\n\n", m.spinner.View(), m.dir)
	case launching:
		return fmt.Sprintf("\n\n   %s Loading story...\n\n", m.spinner.View())
	default:
		return docStyle.Render(m.list.View())
	}
}
