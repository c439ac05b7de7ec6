package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/rxtech-lab/argo-fleet/internal/report"
	"github.com/rxtech-lab/argo-fleet/internal/storage"
	"github.com/rxtech-lab/argo-fleet/internal/types"
)

// Style definitions.
var (
	// TitleStyle for headers.
	TitleStyle = lipgloss.NewStyle().Bold(true)

	// HelpStyle for help text.
	HelpStyle = lipgloss.NewStyle().Faint(true)

	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}

			return cellStyle
		}).
		Headers(headers...)
}

func renderAgents(records []storage.AgentRecord) string {
	if len(records) == 0 {
		return HelpStyle.Render("no agents")
	}

	t := newTable("NAME", "ID", "STATE", "VENUE", "SYMBOL", "STRATEGY", "TRADES", "WIN RATE", "PNL", "UPDATED")

	for _, r := range records {
		if r.Err != nil {
			t.Row("?", r.Config.ID, "unreadable", "", "", "", "", "", "", r.Err.Error())

			continue
		}

		t.Row(
			r.Config.Name,
			r.Config.ID,
			string(r.State),
			r.Config.Venue,
			r.Config.Symbol,
			string(r.Config.Strategy),
			fmt.Sprintf("%d", r.Metrics.TotalTrades),
			fmt.Sprintf("%.1f%%", r.Metrics.WinRate*100),
			fmt.Sprintf("%.2f", r.Metrics.RealizedPnL),
			formatTime(r.UpdatedAt),
		)
	}

	return t.String()
}

func renderPositions(positions []types.Position) string {
	if len(positions) == 0 {
		return HelpStyle.Render("no positions")
	}

	t := newTable("ID", "AGENT", "SYMBOL", "SIDE", "STATUS", "ENTRY", "SIZE", "SL", "TP", "EXIT", "PNL", "REASON")

	for _, p := range positions {
		pnl := p.UnrealizedPnL
		if p.Status == types.PositionStatusClosed {
			pnl = p.RealizedPnL
		}

		t.Row(
			p.ID,
			p.AgentID,
			p.Symbol,
			string(p.Side),
			string(p.Status),
			formatPrice(p.EntryPrice),
			fmt.Sprintf("%.8g", p.Size),
			formatPrice(p.StopLoss),
			formatPrice(p.TakeProfit),
			formatPrice(p.ExitPrice),
			fmt.Sprintf("%.2f", pnl),
			string(p.CloseReason),
		)
	}

	return t.String()
}

func renderStatus(status report.Status) string {
	title := TitleStyle.Render(fmt.Sprintf("%d/%d live agents, exposure %.2f", status.LiveAgents, status.MaxAgents, status.TotalExposure))
	if status.Halted {
		title += " " + TitleStyle.Render("[FLEET HALTED]")
	}

	t := newTable("NAME", "STATE", "HEALTHY", "EXPOSURE", "RISK", "POSITIONS", "PNL", "ISSUES")

	for _, a := range status.Agents {
		healthy := "yes"
		if !a.Healthy {
			healthy = "no"
		}

		if a.Halted {
			healthy += " (halted)"
		}

		issues := ""
		for i, issue := range a.Issues {
			if i > 0 {
				issues += "; "
			}

			issues += issue
		}

		t.Row(
			a.Name,
			string(a.State),
			healthy,
			fmt.Sprintf("%.2f", a.Exposure),
			fmt.Sprintf("%.2f", a.RiskScore),
			fmt.Sprintf("%d", len(a.OpenPositions)),
			fmt.Sprintf("%.2f", a.Metrics.RealizedPnL),
			issues,
		)
	}

	return title + "\n" + HelpStyle.Render("generated "+formatTime(status.GeneratedAt)) + "\n" + t.String()
}

func formatPrice(v float64) string {
	if v == 0 {
		return "-"
	}

	return fmt.Sprintf("%.4f", v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return t.Local().Format("2006-01-02 15:04:05")
}
