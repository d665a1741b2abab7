package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/facesdk/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	kindStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type explorerState int

const (
	stateBrowse explorerState = iota
	stateJump
)

// explorerModel browses a context tree one container at a time.
type explorerModel struct {
	err      error
	root     *runtime.Context
	title    string
	path     []string
	entries  []entry
	current  entry
	jump     textinput.Model
	selected int
	state    explorerState
}

func newExplorerModel(root *runtime.Context, title string) *explorerModel {
	ti := textinput.New()
	ti.Prompt = "path: "
	ti.Placeholder = "objects.0.bbox"
	ti.Width = 40
	m := &explorerModel{root: root, title: title, jump: ti}
	m.load()
	return m
}

// load re-resolves the current path, so it never holds on to a Ref.
func (m *explorerModel) load() {
	n, err := resolve(m.root, m.path, false)
	if err != nil {
		m.err = err
		return
	}
	name := "."
	if len(m.path) > 0 {
		name = m.path[len(m.path)-1]
	}
	if m.current, err = describe(name, n); err != nil {
		m.err = err
		return
	}
	if m.entries, err = children(n); err != nil {
		m.err = err
		return
	}
	m.err = nil
	if m.selected >= len(m.entries) {
		m.selected = max(len(m.entries)-1, 0)
	}
}

func (m *explorerModel) Init() tea.Cmd {
	return nil
}

func (m *explorerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.state == stateJump {
		switch key.String() {
		case "enter":
			prev := m.path
			m.path = splitPath(m.jump.Value())
			m.selected = 0
			m.load()
			if m.err != nil {
				m.path = prev
			}
			m.state = stateBrowse
			m.jump.Blur()
			return m, nil
		case "esc":
			m.state = stateBrowse
			m.jump.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.jump, cmd = m.jump.Update(msg)
		return m, cmd
	}

	switch key.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}

	case "down", "j":
		if m.selected < len(m.entries)-1 {
			m.selected++
		}

	case "enter", "right", "l":
		if m.selected < len(m.entries) && m.entries[m.selected].container {
			m.path = append(append([]string(nil), m.path...), m.entries[m.selected].name)
			m.selected = 0
			m.load()
		}

	case "esc", "backspace", "left", "h":
		if len(m.path) > 0 {
			last := m.path[len(m.path)-1]
			m.path = m.path[:len(m.path)-1]
			m.load()
			for i, e := range m.entries {
				if e.name == last {
					m.selected = i
				}
			}
		}

	case "/":
		m.state = stateJump
		m.jump.SetValue(joinPath(m.path))
		m.jump.CursorEnd()
		return m, m.jump.Focus()
	}
	return m, nil
}

func (m *explorerModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("TDV Context"))
	b.WriteString(" ")
	b.WriteString(m.title)
	b.WriteString("  ")
	b.WriteString(keyStyle.Render(joinPath(m.path)))
	b.WriteString(" ")
	b.WriteString(kindStyle.Render(m.current.kind.String()))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
	}

	if len(m.entries) == 0 {
		b.WriteString(valueStyle.Render(m.current.preview))
		b.WriteString("\n")
	}
	for i, e := range m.entries {
		line := fmt.Sprintf("%-24s %-14s %s", e.name, e.kind, e.preview)
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + keyStyle.Render(fmt.Sprintf("%-24s", e.name)) + " " +
				kindStyle.Render(fmt.Sprintf("%-14s", e.kind)) + " " + valueStyle.Render(e.preview))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.state == stateJump {
		b.WriteString(m.jump.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter go • esc cancel"))
	} else {
		b.WriteString(helpStyle.Render("↑/↓ select • enter open • ← back • / jump • q quit"))
	}
	return b.String()
}

func runInteractive(root *runtime.Context, title string) error {
	p := tea.NewProgram(newExplorerModel(root, title), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
