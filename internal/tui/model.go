package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/beekhof/astrocal/internal/app"
	"github.com/beekhof/astrocal/internal/calendar"
)

type renderedMsg struct {
	out app.Outcome
}

type tickMsg time.Time

// Model is the bubbletea model for the month view.
type Model struct {
	ctx     context.Context
	ctrl    *app.Controller
	now     func() time.Time
	styles  Styles
	month   calendar.Month
	err     error
	loading bool
}

// New creates a model driving ctrl.
func New(ctx context.Context, ctrl *app.Controller) Model {
	return Model{
		ctx:     ctx,
		ctrl:    ctrl,
		now:     time.Now,
		styles:  DefaultStyles(),
		month:   ctrl.Current().Month,
		loading: true,
	}
}

// Run starts the interactive program and blocks until the user quits.
func Run(ctx context.Context, ctrl *app.Controller) error {
	p := tea.NewProgram(New(ctx, ctrl), tea.WithContext(ctx), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(app.TickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) refresh() tea.Cmd {
	return func() tea.Msg {
		return renderedMsg{m.ctrl.Refresh(m.ctx)}
	}
}

func (m Model) advance(direction int) tea.Cmd {
	return func() tea.Msg {
		return renderedMsg{m.ctrl.Advance(m.ctx, direction)}
	}
}

func (m Model) today() tea.Cmd {
	return func() tea.Msg {
		return renderedMsg{m.ctrl.GoToToday(m.ctx)}
	}
}

func (m Model) checkDate(now time.Time) tea.Cmd {
	return func() tea.Msg {
		changed, out := m.ctrl.Tick(m.ctx, now)
		if !changed {
			return nil
		}
		return renderedMsg{out}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "left", "h", "p":
			m.loading = true
			return m, m.advance(-1)
		case "right", "l", "n":
			m.loading = true
			return m, m.advance(1)
		case "r":
			m.loading = true
			return m, m.refresh()
		case "t":
			m.loading = true
			return m, m.today()
		}
		return m, nil

	case renderedMsg:
		if msg.out.Superseded {
			return m, nil
		}
		m.loading = false
		m.month = msg.out.Month
		m.err = msg.out.Err
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.checkDate(time.Time(msg)), tick())
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(RenderMonth(m.month, m.styles))
	b.WriteString("\n")

	switch {
	case m.loading:
		b.WriteString(m.styles.Muted.Render("  loading events..."))
	case m.err != nil:
		b.WriteString(m.styles.Error.Render(fmt.Sprintf("  events unavailable: %v", m.err)))
	default:
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf("  updated %s", m.now().Format("15:04"))))
	}
	b.WriteString("\n\n")
	b.WriteString(m.styles.Help.Render("  ←/h prev • →/l next • t today • r refresh • q quit"))
	b.WriteString("\n")
	return b.String()
}
