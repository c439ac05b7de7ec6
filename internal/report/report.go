// Package report writes a YAML snapshot of the fleet after every health sweep.
package report

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-fleet/internal/logger"
	"github.com/rxtech-lab/argo-fleet/internal/orchestrator"
	"github.com/rxtech-lab/argo-fleet/internal/risk"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config configures the status report.
type Config struct {
	// Path is the YAML file rewritten after every health sweep. Empty disables the report.
	Path string `mapstructure:"path" yaml:"path" json:"path" jsonschema:"description=Status report file; empty disables it"`
}

// AgentStatus is one agent in the report.
type AgentStatus struct {
	ID            string             `yaml:"id" json:"id"`
	Name          string             `yaml:"name" json:"name"`
	Venue         string             `yaml:"venue" json:"venue"`
	Symbol        string             `yaml:"symbol" json:"symbol"`
	Strategy      types.StrategyKind `yaml:"strategy" json:"strategy"`
	State         types.AgentState   `yaml:"state" json:"state"`
	Healthy       bool               `yaml:"healthy" json:"healthy"`
	Issues        []string           `yaml:"issues,omitempty" json:"issues,omitempty"`
	Metrics       types.AgentMetrics `yaml:"metrics" json:"metrics"`
	Exposure      float64            `yaml:"exposure" json:"exposure"`
	RiskScore     float64            `yaml:"risk_score" json:"risk_score"`
	Halted        bool               `yaml:"halted" json:"halted"`
	OpenPositions []types.Position   `yaml:"open_positions" json:"open_positions"`
}

// Status is the whole report.
type Status struct {
	GeneratedAt   time.Time     `yaml:"generated_at" json:"generated_at"`
	LiveAgents    int           `yaml:"live_agents" json:"live_agents"`
	MaxAgents     int           `yaml:"max_agents" json:"max_agents"`
	TotalExposure float64       `yaml:"total_exposure" json:"total_exposure"`
	Halted        bool          `yaml:"halted" json:"halted"`
	Agents        []AgentStatus `yaml:"agents" json:"agents"`
}

// Build joins agent snapshots, their health and the risk snapshot into one report.
func Build(now time.Time, maxAgents int, agents []orchestrator.Snapshot, health []types.HealthRecord, riskSnap risk.Snapshot) Status {
	byAgent := make(map[string]types.HealthRecord, len(health))
	for _, h := range health {
		byAgent[h.AgentID] = h
	}

	ledgers := make(map[string]risk.AgentSnapshot, len(riskSnap.Agents))
	for _, l := range riskSnap.Agents {
		ledgers[l.AgentID] = l
	}

	status := Status{
		GeneratedAt:   now,
		MaxAgents:     maxAgents,
		TotalExposure: riskSnap.TotalExposure,
		Halted:        riskSnap.Halted,
		Agents:        make([]AgentStatus, 0, len(agents)),
	}

	for _, snap := range agents {
		if !snap.State.IsTerminal() {
			status.LiveAgents++
		}

		entry := AgentStatus{
			ID:            snap.Config.ID,
			Name:          snap.Config.Name,
			Venue:         snap.Config.Venue,
			Symbol:        snap.Config.Symbol,
			Strategy:      snap.Config.Strategy,
			State:         snap.State,
			Healthy:       true,
			Metrics:       snap.Metrics,
			OpenPositions: snap.Positions,
		}

		if h, ok := byAgent[snap.Config.ID]; ok {
			entry.Healthy = h.Healthy
			entry.Issues = h.Issues
		}

		if l, ok := ledgers[snap.Config.ID]; ok {
			entry.Exposure = l.Exposure
			entry.RiskScore = l.Score
			entry.Halted = l.Halted
		}

		if entry.OpenPositions == nil {
			entry.OpenPositions = []types.Position{}
		}

		status.Agents = append(status.Agents, entry)
	}

	sort.Slice(status.Agents, func(i, j int) bool { return status.Agents[i].Name < status.Agents[j].Name })

	return status
}

// Writer rewrites the report file. The file is replaced atomically, so readers never
// observe a partial report.
type Writer struct {
	mu   sync.Mutex
	path string
	log  *logger.Logger
}

func NewWriter(config Config, log *logger.Logger) *Writer {
	if log == nil {
		log = logger.NewNop()
	}

	return &Writer{path: config.Path, log: log.Component("report")}
}

// Enabled reports whether a path is configured.
func (w *Writer) Enabled() bool {
	return w.path != ""
}

// Write marshals status to YAML and replaces the report file.
func (w *Writer) Write(status Status) error {
	if !w.Enabled() {
		return nil
	}

	data, err := yaml.Marshal(status)
	if err != nil {
		return errors.Wrap(errors.ErrCodePersistence, "failed to marshal status report", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(errors.ErrCodePersistence, err, "failed to create directory %s", dir)
		}
	}

	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodePersistence, "failed to write status report", err)
	}

	if err := os.Rename(tmp, w.path); err != nil {
		return errors.Wrap(errors.ErrCodePersistence, "failed to replace status report", err)
	}

	w.log.Debug("Status report written", zap.String("path", w.path), zap.Int("agents", len(status.Agents)))

	return nil
}

// Read loads a report written by Write.
func Read(path string) (Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Status{}, errors.Wrap(errors.ErrCodePersistence, "failed to read status report", err)
	}

	var status Status
	if err := yaml.Unmarshal(data, &status); err != nil {
		return Status{}, errors.Wrap(errors.ErrCodeRecordCorrupt, "failed to decode status report", err)
	}

	return status, nil
}
