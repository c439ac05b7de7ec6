package dashboard

import "github.com/rxtech-lab/argo-fleet/internal/report"

// StatusMsg carries a freshly loaded status report.
type StatusMsg struct {
	Status report.Status
}

// LoadErrorMsg indicates the status report could not be loaded.
type LoadErrorMsg struct {
	Err error
}

// RefreshMsg asks the model to reload the status report.
type RefreshMsg struct{}
