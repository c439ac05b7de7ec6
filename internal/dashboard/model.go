// Package dashboard is a terminal view of the status report written by a running fleet.
package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rxtech-lab/argo-fleet/internal/report"
)

// Application states.
const (
	StateAgents = iota
	StatePositions
)

// Loader returns the latest status report.
type Loader func() (report.Status, error)

// Model is the Bubble Tea model of the fleet dashboard.
type Model struct {
	state     int
	load      Loader
	refresh   time.Duration
	agents    table.Model
	positions table.Model
	spinner   spinner.Model
	status    report.Status
	loaded    bool
	selected  int
	err       error
	width     int
	height    int
}

// NewModel creates a dashboard that reloads the report every refresh. A zero refresh only
// reloads on demand.
func NewModel(load Loader, refresh time.Duration) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	return Model{
		state:     StateAgents,
		load:      load,
		refresh:   refresh,
		agents:    NewAgentTable(),
		positions: NewPositionTable(),
		spinner:   s,
		selected:  -1,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch())
}

func (m Model) fetch() tea.Cmd {
	load := m.load

	return func() tea.Msg {
		status, err := load()
		if err != nil {
			return LoadErrorMsg{Err: err}
		}

		return StatusMsg{Status: status}
	}
}

func (m Model) scheduleRefresh() tea.Cmd {
	if m.refresh <= 0 {
		return nil
	}

	return tea.Tick(m.refresh, func(time.Time) tea.Msg { return RefreshMsg{} })
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "esc":
			if m.state == StatePositions {
				m.state = StateAgents
				m.selected = -1
			}

			return m, nil
		case "r":
			return m, m.fetch()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.agents.SetWidth(msg.Width)
		m.agents.SetHeight(msg.Height - 6)
		m.positions.SetWidth(msg.Width)
		m.positions.SetHeight(msg.Height - 6)

		return m, nil

	case StatusMsg:
		m.status = msg.Status
		m.loaded = true
		m.err = nil
		m.agents.SetRows(AgentRows(m.status))
		m.syncPositions()

		return m, m.scheduleRefresh()

	case LoadErrorMsg:
		m.err = msg.Err

		return m, m.scheduleRefresh()

	case RefreshMsg:
		return m, m.fetch()

	case spinner.TickMsg:
		if m.loaded {
			return m, nil
		}

		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)

		return m, cmd
	}

	switch m.state {
	case StateAgents:
		return m.updateAgents(msg)
	case StatePositions:
		var cmd tea.Cmd
		m.positions, cmd = m.positions.Update(msg)

		return m, cmd
	}

	return m, nil
}

func (m Model) updateAgents(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		cursor := m.agents.Cursor()
		if cursor >= 0 && cursor < len(m.status.Agents) {
			m.selected = cursor
			m.state = StatePositions
			m.syncPositions()
		}

		return m, nil
	}

	var cmd tea.Cmd
	m.agents, cmd = m.agents.Update(msg)

	return m, cmd
}

// syncPositions refreshes the positions table of the selected agent. An agent that left
// the report returns the view to the overview.
func (m *Model) syncPositions() {
	if m.state != StatePositions {
		return
	}

	if m.selected < 0 || m.selected >= len(m.status.Agents) {
		m.state = StateAgents
		m.selected = -1

		return
	}

	m.positions.SetRows(PositionRows(m.status.Agents[m.selected].OpenPositions))
}

// View implements tea.Model.
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(TitleStyle.Render("Argo Fleet"))
	s.WriteString("\n")

	if m.loaded {
		s.WriteString(summary(m.status))
	}

	s.WriteString("\n\n")

	if m.err != nil {
		s.WriteString(ErrorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n\n")
	}

	if !m.loaded {
		s.WriteString(m.spinner.View())
		s.WriteString(" Loading status...\n")
		s.WriteString(HelpStyle.Render("q: quit"))

		return s.String()
	}

	switch m.state {
	case StateAgents:
		if len(m.status.Agents) == 0 {
			s.WriteString("No agents\n")
		} else {
			s.WriteString(m.agents.View())
		}

		s.WriteString("\n")
		s.WriteString(HelpStyle.Render("Enter: positions | r: refresh | q: quit"))

	case StatePositions:
		agent := m.status.Agents[m.selected]

		s.WriteString(TitleStyle.Render(fmt.Sprintf("Positions - %s (%s)", agent.Name, agent.Symbol)))
		s.WriteString("\n")

		for _, issue := range agent.Issues {
			s.WriteString(ErrorStyle.Render("! " + issue))
			s.WriteString("\n")
		}

		s.WriteString("\n")

		if len(agent.OpenPositions) == 0 {
			s.WriteString("No open positions\n")
		} else {
			s.WriteString(m.positions.View())
		}

		s.WriteString("\n")
		s.WriteString(HelpStyle.Render("Esc: back | r: refresh | q: quit"))
	}

	return s.String()
}
