package reconcile

import (
	"github.com/sells-group/onboard-cli/internal/model"
	"github.com/sells-group/onboard-cli/internal/phase"
)

// AllComplete reports whether every configured track is in a terminal-success
// state. It is the only input to enabling forward navigation.
func AllComplete(reg *phase.Registry, tracks []model.TrackState) bool {
	if len(tracks) == 0 {
		return false
	}
	seen := make(map[model.WorkflowType]bool, len(tracks))
	for _, ts := range tracks {
		t, ok := reg.Get(ts.Workflow)
		if !ok || !t.IsSuccess(ts.EffectiveStatus) {
			return false
		}
		seen[ts.Workflow] = true
	}
	for _, t := range reg.Tables() {
		if !seen[t.Workflow] {
			return false
		}
	}
	return true
}
