package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/rxtech-lab/argo-fleet/internal/report"
	"github.com/rxtech-lab/argo-fleet/internal/types"
)

func newTable(columns []table.Column) table.Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)

	t.SetStyles(s)

	return t
}

// NewAgentTable creates the fleet overview table.
func NewAgentTable() table.Model {
	return newTable([]table.Column{
		{Title: "Name", Width: 16},
		{Title: "State", Width: 10},
		{Title: "Health", Width: 8},
		{Title: "Symbol", Width: 10},
		{Title: "Exposure", Width: 10},
		{Title: "Risk", Width: 6},
		{Title: "Open", Width: 5},
		{Title: "PnL", Width: 12},
		{Title: "Win", Width: 6},
	})
}

// NewPositionTable creates the per-agent positions table.
func NewPositionTable() table.Model {
	return newTable([]table.Column{
		{Title: "ID", Width: 12},
		{Title: "Side", Width: 6},
		{Title: "Status", Width: 11},
		{Title: "Entry", Width: 12},
		{Title: "Mark", Width: 12},
		{Title: "SL", Width: 12},
		{Title: "TP", Width: 12},
		{Title: "Unrealized", Width: 12},
	})
}

// AgentRows converts the report into table rows, in report order.
func AgentRows(status report.Status) []table.Row {
	rows := make([]table.Row, 0, len(status.Agents))

	for _, a := range status.Agents {
		health := "ok"
		if !a.Healthy {
			health = "issue"
		}

		if a.Halted {
			health = "halted"
		}

		rows = append(rows, table.Row{
			a.Name,
			string(a.State),
			health,
			a.Symbol,
			fmt.Sprintf("%.2f", a.Exposure),
			fmt.Sprintf("%.2f", a.RiskScore),
			fmt.Sprintf("%d", len(a.OpenPositions)),
			FormatPnL(a.Metrics.RealizedPnL),
			fmt.Sprintf("%.0f%%", a.Metrics.WinRate*100),
		})
	}

	return rows
}

// PositionRows converts open positions into table rows.
func PositionRows(positions []types.Position) []table.Row {
	rows := make([]table.Row, 0, len(positions))

	for _, p := range positions {
		rows = append(rows, table.Row{
			shortID(p.ID),
			string(p.Side),
			string(p.Status),
			fmt.Sprintf("%.4f", p.EntryPrice),
			fmt.Sprintf("%.4f", p.CurrentPrice),
			fmt.Sprintf("%.4f", p.StopLoss),
			fmt.Sprintf("%.4f", p.TakeProfit),
			FormatPnL(p.UnrealizedPnL),
		})
	}

	return rows
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}

	return id[:12]
}

func summary(status report.Status) string {
	var s strings.Builder

	fmt.Fprintf(&s, "%d/%d live agents | exposure %.2f", status.LiveAgents, status.MaxAgents, status.TotalExposure)

	if status.Halted {
		s.WriteString(" ")
		s.WriteString(HaltedStyle.Render("FLEET HALTED"))
	}

	if !status.GeneratedAt.IsZero() {
		fmt.Fprintf(&s, " | updated %s", status.GeneratedAt.Local().Format("15:04:05"))
	}

	return s.String()
}
