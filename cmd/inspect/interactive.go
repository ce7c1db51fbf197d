package main

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/com-runtime/descriptor"
)

type modelState int

const (
	stateSelectInterface modelState = iota
	stateFilter
	stateShowInterface
)

type interactiveModel struct {
	reg      *descriptor.Registry
	filter   textinput.Model
	names    []string
	visible  []string
	detail   string
	selected int
	width    int
	state    modelState
}

func newInteractiveModel(reg *descriptor.Registry) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "interface name"
	ti.Prompt = "/"
	ti.Width = 40

	names := reg.Names()
	return &interactiveModel{
		reg:     reg,
		filter:  ti,
		names:   names,
		visible: names,
		state:   stateSelectInterface,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		if m.state == stateFilter {
			switch msg.String() {
			case "enter", "esc":
				m.filter.Blur()
				m.state = stateSelectInterface
				return m, nil
			case "ctrl+c":
				return m, tea.Quit
			}
			var cmd tea.Cmd
			m.filter, cmd = m.filter.Update(msg)
			m.applyFilter()
			return m, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectInterface && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectInterface && m.selected < len(m.visible)-1 {
				m.selected++
			}

		case "/":
			if m.state == stateSelectInterface {
				m.state = stateFilter
				return m, m.filter.Focus()
			}

		case "enter":
			switch m.state {
			case stateSelectInterface:
				if len(m.visible) == 0 {
					return m, nil
				}
				m.showSelected()
				m.state = stateShowInterface
			case stateShowInterface:
				m.state = stateSelectInterface
			}

		case "esc":
			if m.state == stateShowInterface {
				m.state = stateSelectInterface
			}
		}
	}
	return m, nil
}

func (m *interactiveModel) applyFilter() {
	q := strings.ToLower(m.filter.Value())
	m.visible = m.visible[:0:0]
	for _, n := range m.names {
		if strings.Contains(strings.ToLower(n), q) {
			m.visible = append(m.visible, n)
		}
	}
	if m.selected >= len(m.visible) {
		m.selected = max(len(m.visible)-1, 0)
	}
}

func (m *interactiveModel) showSelected() {
	i, err := m.reg.Lookup(m.visible[m.selected])
	if err != nil {
		m.detail = errorStyle.Render(err.Error())
		return
	}
	m.detail = newRenderer(true, m.width).interfaceView(m.reg, i)
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Descriptor Inspector"))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectInterface, stateFilter:
		if m.state == stateFilter || m.filter.Value() != "" {
			b.WriteString(m.filter.View())
			b.WriteString("\n\n")
		}
		for i, n := range m.visible {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + n))
			} else {
				b.WriteString("  " + n)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • / filter • enter show • q quit"))

	case stateShowInterface:
		b.WriteString(m.detail)
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter/esc back • q quit"))
	}

	return b.String()
}

func runInteractive(reg *descriptor.Registry) error {
	p := tea.NewProgram(newInteractiveModel(reg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
