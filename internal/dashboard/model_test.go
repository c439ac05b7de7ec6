package dashboard

import (
	"bytes"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/rxtech-lab/argo-fleet/internal/report"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func sampleStatus() report.Status {
	return report.Status{
		GeneratedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		LiveAgents:    1,
		MaxAgents:     3,
		TotalExposure: 40,
		Agents: []report.AgentStatus{
			{
				ID:       "a1",
				Name:     "alpha",
				Symbol:   "BTCUSDT",
				State:    types.AgentStateRunning,
				Healthy:  true,
				Exposure: 40,
				Metrics:  types.AgentMetrics{RealizedPnL: 12.5, WinRate: 0.5},
				OpenPositions: []types.Position{
					{ID: "pos-77", Side: types.PositionTypeLong, Status: types.PositionStatusMonitoring, EntryPrice: 100, CurrentPrice: 104, UnrealizedPnL: 1.6},
				},
			},
			{
				ID:     "b1",
				Name:   "beta",
				Symbol: "ETHUSDT",
				State:  types.AgentStateStopped,
			},
		},
	}
}

func staticLoader(status report.Status) Loader {
	return func() (report.Status, error) { return status, nil }
}

func TestFormatPnL(t *testing.T) {
	assert.Equal(t, "1.50 ▲", FormatPnL(1.5))
	assert.Equal(t, "-2.00 ▼", FormatPnL(-2))
	assert.Equal(t, "0.00", FormatPnL(0))
}

func TestAgentRows(t *testing.T) {
	status := sampleStatus()
	status.Agents[1].Halted = true

	rows := AgentRows(status)
	assert.Len(t, rows, 2)
	assert.Equal(t, "alpha", rows[0][0])
	assert.Equal(t, "ok", rows[0][2])
	assert.Equal(t, "1", rows[0][6])
	assert.Equal(t, "halted", rows[1][2])
}

func TestPositionRowsShortenID(t *testing.T) {
	rows := PositionRows([]types.Position{{ID: "0123456789abcdef", Side: types.PositionTypeShort}})
	assert.Equal(t, "0123456789ab", rows[0][0])
}

func TestStatusAndErrorMessages(t *testing.T) {
	m := NewModel(staticLoader(report.Status{}), 0)

	next, cmd := m.Update(StatusMsg{Status: sampleStatus()})
	assert.Nil(t, cmd, "no refresh is scheduled without an interval")

	model := next.(Model)
	assert.True(t, model.loaded)
	assert.Len(t, model.agents.Rows(), 2)

	next, _ = model.Update(LoadErrorMsg{Err: errors.New(errors.ErrCodePersistence, "gone")})
	model = next.(Model)
	assert.Error(t, model.err)
	assert.True(t, model.loaded, "the last good report stays on screen")
	assert.Contains(t, model.View(), "gone")
}

func TestSelectedAgentLeavingReport(t *testing.T) {
	m := NewModel(staticLoader(report.Status{}), 0)

	next, _ := m.Update(StatusMsg{Status: sampleStatus()})
	next, _ = next.(Model).Update(tea.KeyMsg{Type: tea.KeyDown})
	next, _ = next.(Model).Update(tea.KeyMsg{Type: tea.KeyEnter})

	model := next.(Model)
	assert.Equal(t, StatePositions, model.state)
	assert.Equal(t, 1, model.selected)

	shrunk := sampleStatus()
	shrunk.Agents = shrunk.Agents[:1]

	next, _ = model.Update(StatusMsg{Status: shrunk})
	model = next.(Model)
	assert.Equal(t, StateAgents, model.state)
	assert.Equal(t, -1, model.selected)
}

func TestBrowsePositions(t *testing.T) {
	m := NewModel(staticLoader(sampleStatus()), 0)
	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(120, 30))

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("alpha")) && bytes.Contains(bts, []byte("1/3 live agents"))
	}, teatest.WithDuration(2*time.Second))

	tm.Send(tea.KeyMsg{Type: tea.KeyEnter})

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("Positions - alpha")) && bytes.Contains(bts, []byte("pos-77"))
	}, teatest.WithDuration(2*time.Second))

	tm.Send(tea.KeyMsg{Type: tea.KeyEsc})

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("Enter: positions"))
	}, teatest.WithDuration(2*time.Second))

	assert.NoError(t, tm.Quit())
}

func TestLoadFailureIsShown(t *testing.T) {
	m := NewModel(func() (report.Status, error) {
		return report.Status{}, errors.New(errors.ErrCodePersistence, "failed to read status report")
	}, 0)
	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(80, 24))

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("failed to read status report"))
	}, teatest.WithDuration(2*time.Second))

	assert.NoError(t, tm.Quit())
}
