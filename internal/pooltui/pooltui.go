// Package pooltui implements the "javapool top" live dashboard: a single
// poll-and-render bubbletea model: a polling tick drives a key-mapped,
// cursor-navigable list of pool slots.
package pooltui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dsrg-uoft/hottub/internal/poolinspect"
)

const pollInterval = 2 * time.Second

var (
	colorPrimary = lipgloss.Color("6")
	colorDim     = lipgloss.Color("240")
	colorSuccess = lipgloss.Color("2")
	colorDanger  = lipgloss.Color("1")
)

// SlotsLoadedMsg carries a fresh slot listing.
type SlotsLoadedMsg struct {
	Slots []poolinspect.Slot
	Err   error
}

// PollTickMsg is the periodic poll tick.
type PollTickMsg struct{}

type keyMap struct {
	Up   key.Binding
	Down key.Binding
	Kill key.Binding
	Help key.Binding
	Quit key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Kill, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Up, k.Down}, {k.Kill}, {k.Help, k.Quit}}
}

// Model is the dashboard's bubbletea model.
type Model struct {
	dataRoot string
	keys     keyMap
	help     help.Model
	slots    []poolinspect.Slot
	cursor   int
	loading  bool
	status   string
	err      error
	width    int
}

// New builds a dashboard model scanning dataRoot for slots.
func New(dataRoot string) Model {
	return Model{
		dataRoot: dataRoot,
		keys: keyMap{
			Up:   key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
			Down: key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
			Kill: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "remove slot")),
			Help: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more")),
			Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		},
		help:    help.New(),
		loading: true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load(), tick())
}

func (m Model) load() tea.Cmd {
	dataRoot := m.dataRoot
	return func() tea.Msg {
		slots, err := poolinspect.List(dataRoot)
		return SlotsLoadedMsg{Slots: slots, Err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(_ time.Time) tea.Msg { return PollTickMsg{} })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case SlotsLoadedMsg:
		m.loading = false
		m.slots = msg.Slots
		m.err = msg.Err
		if m.cursor >= len(m.slots) {
			m.cursor = 0
			if len(m.slots) > 0 {
				m.cursor = len(m.slots) - 1
			}
		}
		return m, nil

	case PollTickMsg:
		return m, tea.Batch(m.load(), tick())

	case tea.KeyMsg:
		if m.loading {
			if key.Matches(msg, m.keys.Quit) {
				return m, tea.Quit
			}
			return m, nil
		}
		switch {
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.slots)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Kill):
			if len(m.slots) > 0 {
				s := m.slots[m.cursor]
				if err := poolinspect.Remove(s, false); err != nil {
					m.status = fmt.Sprintf("Error: %s", err)
				} else {
					m.status = fmt.Sprintf("Removed %s", s.ID)
				}
				return m, m.load()
			}
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString("  hottub pool slots\n\n")

	if m.loading {
		b.WriteString("  Scanning...\n")
		return b.String()
	}
	if m.err != nil {
		b.WriteString(fmt.Sprintf("  Error: %s\n\n", m.err))
		b.WriteString(m.help.View(m.keys))
		return b.String()
	}
	if len(m.slots) == 0 {
		b.WriteString(lipgloss.NewStyle().Foreground(colorDim).Render("  No pool slots found."))
		b.WriteString("\n")
	}
	for i, s := range m.slots {
		aliveStyle := colorDanger
		state := "dead"
		if s.ServerAlive {
			aliveStyle = colorSuccess
			state = "alive"
		}
		client := "idle"
		if s.ClientPID != 0 {
			client = fmt.Sprintf("client pid %d", s.ClientPID)
		}
		line := fmt.Sprintf("%s  server pid %d (%s)  %s", s.ID, s.ServerPID, state, client)
		rendered := lipgloss.NewStyle().Foreground(aliveStyle).Render(line)
		if i == m.cursor {
			b.WriteString(lipgloss.NewStyle().Bold(true).Render("  > " + rendered))
		} else {
			b.WriteString("    " + rendered)
		}
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString("\n  " + lipgloss.NewStyle().Foreground(colorPrimary).Render(m.status) + "\n")
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}
