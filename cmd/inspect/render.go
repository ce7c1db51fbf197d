package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/com-runtime/descriptor"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// renderer formats declarations, with styles only on a terminal.
type renderer struct {
	styled bool
	width  int
}

func newRenderer(styled bool, width int) renderer {
	return renderer{styled: styled, width: width}
}

func (r renderer) style(s lipgloss.Style, text string) string {
	if !r.styled {
		return text
	}
	return s.Render(text)
}

func (r renderer) line(text string) string {
	if r.width > 0 && lipgloss.Width(text) > r.width {
		runes := []rune(text)
		if len(runes) > r.width-1 && r.width > 1 {
			text = string(runes[:r.width-1]) + "…"
		}
	}
	return text + "\n"
}

func (r renderer) interfaceView(reg *descriptor.Registry, i *descriptor.Interface) string {
	var b strings.Builder

	header := i.Name
	if i.Parent != "" {
		header += " : " + i.Parent
	}
	b.WriteString(r.style(titleStyle, header))
	b.WriteString(" ")
	b.WriteString(r.style(typeStyle, "{"+i.IID.String()+"}"))
	b.WriteString("\n")

	table, err := reg.SlotTable(i)
	if err != nil {
		b.WriteString(r.style(errorStyle, fmt.Sprintf("slot table: %v", err)))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString("\nvtable:\n")
	for slot := 0; slot < table.Len(); slot++ {
		e := table.At(slot)
		switch {
		case slot < descriptor.ReservedSlots:
			b.WriteString(r.line(fmt.Sprintf("  %3d  %s", slot, r.style(helpStyle, "(reserved)"))))
		case e == nil:
			b.WriteString(r.line(fmt.Sprintf("  %3d  %s", slot, r.style(helpStyle, "-"))))
		default:
			b.WriteString(r.line(fmt.Sprintf("  %3d  %s.%s", slot, e.Interface.Name, r.style(funcStyle, e.Method.Name))))
		}
	}
	for _, e := range table.Shadowed {
		b.WriteString(r.line(fmt.Sprintf("  %3d  %s.%s %s", e.Index, e.Interface.Name, e.Method.Name,
			r.style(helpStyle, "(shadowed)"))))
	}

	b.WriteString("\nmethods:\n")
	for ord, m := range i.Methods {
		b.WriteString(r.methodLine(reg, i, ord, m))
	}
	return b.String()
}

func (r renderer) methodLine(reg *descriptor.Registry, i *descriptor.Interface, ord int, m *descriptor.Method) string {
	if m.Restricted {
		return r.line(fmt.Sprintf("  %s %s", r.style(funcStyle, m.Name), r.style(helpStyle, "(restricted)")))
	}
	d, err := reg.Resolve(i, ord)
	if err != nil {
		return r.line(fmt.Sprintf("  %s %s", r.style(funcStyle, m.Name), r.style(errorStyle, err.Error())))
	}
	return r.line(fmt.Sprintf("  %s %s %s",
		r.style(funcStyle, m.Name),
		r.style(typeStyle, fmt.Sprintf("[%s, %d bytes]", d.Kind, d.ArgSize())),
		d))
}
