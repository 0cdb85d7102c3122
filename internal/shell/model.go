package shell

import (
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// refreshInterval is how often the panel re-reads component state, so a
// crashed tracker flips its button back.
const refreshInterval = time.Second

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	buttonStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 2)

	focusedButtonStyle = buttonStyle.
				Bold(true).
				Foreground(lipgloss.Color("15")).
				BorderForeground(lipgloss.Color("62"))

	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type keymap struct {
	tracking  key.Binding
	dashboard key.Binding
	next      key.Binding
	prev      key.Binding
	press     key.Binding
	quit      key.Binding
}

var defaultKeymap = keymap{
	tracking: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "tracking"),
	),
	dashboard: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "dashboard"),
	),
	next: key.NewBinding(
		key.WithKeys("tab", "down", "right", "j"),
		key.WithHelp("tab", "next"),
	),
	prev: key.NewBinding(
		key.WithKeys("shift+tab", "up", "left", "k"),
		key.WithHelp("shift+tab", "previous"),
	),
	press: key.NewBinding(
		key.WithKeys("enter", " "),
		key.WithHelp("enter", "press"),
	),
	quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

type button int

const (
	trackButton button = iota
	dashboardButton
	buttonCount
)

type (
	// toggledMsg reports the outcome of a start or stop.
	toggledMsg struct {
		button  button
		started bool
		err     error
	}
	// stoppedAllMsg is sent once everything has been stopped on quit.
	stoppedAllMsg struct{ err error }
	refreshMsg    struct{}
)

// Model is the Bubble Tea model of the control panel.
type Model struct {
	tracker   Toggle
	dashboard Toggle
	focused   button
	busy      bool
	quitting  bool
	status    string
	err       error
	help      help.Model
}

// NewModel creates the control panel for the given components.
func NewModel(tracker, dashboard Toggle) Model {
	return Model{
		tracker:   tracker,
		dashboard: dashboard,
		status:    "Ready",
		help:      help.New(),
	}
}

// Init starts the refresh loop.
func (m Model) Init() tea.Cmd {
	return refresh()
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return refreshMsg{} })
}

// Update handles key presses and component results.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case toggledMsg:
		m.busy = false
		m.err = msg.err
		if msg.err == nil {
			m.status = statusText(msg.button, msg.started)
		}
		return m, nil

	case stoppedAllMsg:
		m.err = msg.err
		return m, tea.Quit

	case refreshMsg:
		if m.quitting {
			return m, nil
		}
		return m, refresh()

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, defaultKeymap.quit) {
		if m.quitting {
			return m, nil
		}
		m.quitting = true
		m.status = "Stopping..."
		return m, m.stopAll()
	}
	if m.busy || m.quitting {
		return m, nil
	}

	switch {
	case key.Matches(msg, defaultKeymap.tracking):
		return m.press(trackButton)
	case key.Matches(msg, defaultKeymap.dashboard):
		return m.press(dashboardButton)
	case key.Matches(msg, defaultKeymap.next):
		m.focused = (m.focused + 1) % buttonCount
	case key.Matches(msg, defaultKeymap.prev):
		m.focused = (m.focused - 1 + buttonCount) % buttonCount
	case key.Matches(msg, defaultKeymap.press):
		return m.press(m.focused)
	}
	return m, nil
}

// press flips the component behind b. The work runs as a command so a slow
// stop does not freeze the panel.
func (m Model) press(b button) (tea.Model, tea.Cmd) {
	target := m.toggle(b)
	m.focused = b
	m.busy = true
	m.err = nil

	if target.Running() {
		m.status = "Stopping..."
		return m, func() tea.Msg {
			return toggledMsg{button: b, started: false, err: target.Stop()}
		}
	}
	m.status = "Starting..."
	return m, func() tea.Msg {
		return toggledMsg{button: b, started: true, err: target.Start()}
	}
}

func (m Model) stopAll() tea.Cmd {
	tracker, dashboard := m.tracker, m.dashboard
	return func() tea.Msg {
		return stoppedAllMsg{err: errors.Join(tracker.Stop(), dashboard.Stop())}
	}
}

func (m Model) toggle(b button) Toggle {
	if b == dashboardButton {
		return m.dashboard
	}
	return m.tracker
}

// Err returns the last component error.
func (m Model) Err() error {
	return m.err
}

func statusText(b button, started bool) string {
	switch {
	case b == trackButton && started:
		return "Tracking started"
	case b == trackButton:
		return "Tracking stopped"
	case started:
		return "Dashboard running"
	default:
		return "Dashboard stopped"
	}
}

// label returns the caption of b for the current component state.
func (m Model) label(b button) string {
	running := m.toggle(b).Running()
	switch b {
	case trackButton:
		if running {
			return "Stop Tracking"
		}
		return "Start Tracking"
	default:
		if running {
			return "Stop Showing Dashboard"
		}
		return "Show Dashboard"
	}
}

// View renders the panel.
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("TrackIt"))
	s.WriteString("\n\n")

	buttons := make([]string, 0, buttonCount)
	for b := button(0); b < buttonCount; b++ {
		style := buttonStyle
		if b == m.focused {
			style = focusedButtonStyle
		}
		buttons = append(buttons, style.Render(m.label(b)))
	}
	s.WriteString(lipgloss.JoinVertical(lipgloss.Left, buttons...))
	s.WriteString("\n\n")

	if m.err != nil {
		s.WriteString(errorStyle.Render("Error: " + m.err.Error()))
	} else {
		s.WriteString(statusStyle.Render(m.status))
	}

	s.WriteString("\n\n" + m.help.ShortHelpView([]key.Binding{
		defaultKeymap.tracking,
		defaultKeymap.dashboard,
		defaultKeymap.next,
		defaultKeymap.press,
		defaultKeymap.quit,
	}))
	s.WriteString("\n")

	return s.String()
}
