package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/beekhof/astrocal/internal/calendar"
)

const weekdayHeader = " Su  Mo  Tu  We  Th  Fr  Sa"

// Styles used when drawing a month.
type Styles struct {
	Title   lipgloss.Style
	Weekday lipgloss.Style
	Day     lipgloss.Style
	Event   lipgloss.Style
	Today   lipgloss.Style
	Muted   lipgloss.Style
	Error   lipgloss.Style
	Help    lipgloss.Style
}

// DefaultStyles returns the standard palette.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		Weekday: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Day:     lipgloss.NewStyle(),
		Event:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		Today:   lipgloss.NewStyle().Reverse(true),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Help:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true),
	}
}

// RenderMonth draws the month grid followed by the list of events.
// Days carrying an event are suffixed with '*'.
func RenderMonth(month calendar.Month, styles Styles) string {
	var b strings.Builder

	title := month.Label
	pad := (len(weekdayHeader) - len(title)) / 2
	if pad < 0 {
		pad = 0
	}
	b.WriteString(strings.Repeat(" ", pad))
	b.WriteString(styles.Title.Render(title))
	b.WriteString("\n")
	b.WriteString(styles.Weekday.Render(weekdayHeader))
	b.WriteString("\n")

	for _, week := range month.Weeks() {
		cells := make([]string, 0, len(week))
		for _, cell := range week {
			cells = append(cells, renderCell(cell, styles))
		}
		b.WriteString(strings.Join(cells, ""))
		b.WriteString("\n")
	}

	evs := month.Events()
	if len(evs) > 0 {
		b.WriteString("\n")
		for _, ev := range evs {
			line := fmt.Sprintf("%3d  %s", ev.Date.Day, ev.Label)
			b.WriteString(styles.Event.Render(line))
			b.WriteString("\n")
		}
	} else {
		b.WriteString("\n")
		b.WriteString(styles.Muted.Render("  no events"))
		b.WriteString("\n")
	}

	return b.String()
}

func renderCell(cell calendar.DayCell, styles Styles) string {
	if cell.Empty {
		return "    "
	}

	marker := " "
	style := styles.Day
	if cell.HasEvent {
		marker = "*"
		style = styles.Event
	}
	if cell.Today {
		style = style.Inherit(styles.Today)
	}
	return " " + style.Render(fmt.Sprintf("%2d", cell.Day)) + marker
}
