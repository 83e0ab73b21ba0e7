package reconcile

import (
	"github.com/sells-group/onboard-cli/internal/model"
	"github.com/sells-group/onboard-cli/internal/phase"
)

// GateOpen reports whether wf may show its own status: it has no upstream,
// or its upstream has reached success. effective must hold statuses that
// already went through the gate, so a waiting upstream keeps its own
// dependents waiting.
func GateOpen(reg *phase.Registry, effective map[model.WorkflowType]string, wf model.WorkflowType) bool {
	t, ok := reg.Get(wf)
	if !ok || t.Upstream == "" {
		return true
	}
	up, ok := reg.Get(t.Upstream)
	if !ok {
		return true
	}
	return up.IsSuccess(effective[t.Upstream])
}

// waitingState is the synthetic state of a gated track. Counts stay visible
// but any leftover status or error from a previous run is hidden.
func waitingState(t *phase.Table, upstream *phase.Table, declared string, counts []model.CountValue) model.TrackState {
	label := "Waiting"
	if upstream != nil {
		label = "Waiting for " + upstream.Title
	}
	return model.TrackState{
		Workflow:        t.Workflow,
		Title:           t.Title,
		DeclaredStatus:  declared,
		EffectiveStatus: model.StatusWaiting,
		PhaseIndex:      0,
		Label:           label,
		Badge:           model.BadgePending,
		Counts:          counts,
		ProgressPercent: 0,
	}
}
