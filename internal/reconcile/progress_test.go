package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/onboard-cli/internal/model"
)

func TestProgress(t *testing.T) {
	reg := testRegistry(t)

	tests := []struct {
		name    string
		tableWF model.WorkflowType
		status  string
		details model.Details
		counts  Ratio
		want    float64
	}{
		{"waiting forced to zero", model.WorkflowScrape, model.StatusWaiting, nil, Ratio{Done: 5, Total: 5}, 0},
		{"success forced to 100", model.WorkflowDiscovery, "complete", nil, Ratio{}, 100},
		{"failure is zero", model.WorkflowScrape, "failed", nil, Ratio{}, 0},
		{"ratio with no total", model.WorkflowEmailImport, "importing", nil, Ratio{}, 0},
		{"ratio partial", model.WorkflowEmailImport, "classifying", nil, Ratio{Done: 250, Total: 1000}, 25},
		{"ratio ignores phase index", model.WorkflowEmailImport, "classification_complete", nil, Ratio{Done: 1, Total: 1000}, 100},
		{"bulk head only", model.WorkflowScrape, "scraping", model.Details{"current": 0, "total": 15}, Ratio{}, 20},
		{"bulk midway", model.WorkflowScrape, "scraping", model.Details{"current": "4", "total": "15"}, Ratio{}, 36},
		{"bulk overrun clamped", model.WorkflowScrape, "scraping", model.Details{"current": 30, "total": 15}, Ratio{}, 80},
		{"bulk without sub-counts falls back", model.WorkflowScrape, "scraping", nil, Ratio{}, 33.3},
		{"declared percent", model.WorkflowScrape, "analyzing", model.Details{"progress": 91.25}, Ratio{}, 91.3},
		{"declared percent clamped", model.WorkflowDiscovery, "discovering", model.Details{"percent": 140}, Ratio{}, 100},
		{"index based", model.WorkflowScrape, "analyzing", nil, Ratio{}, 66.7},
		{"index first phase", model.WorkflowDiscovery, "pending", nil, Ratio{}, 0},
		{"unknown status index zero", model.WorkflowDiscovery, "mystery", nil, Ratio{}, 0},
	}


	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, _ := reg.Get(tt.tableWF)
			assert.InDelta(t, tt.want, Progress(tbl, tt.status, tt.details, tt.counts), 0.05)
		})
	}
}

func TestAllComplete_RequiresEveryTrack(t *testing.T) {
	reg := testRegistry(t)

	assert.False(t, AllComplete(reg, nil))
	assert.False(t, AllComplete(reg, []model.TrackState{
		{Workflow: model.WorkflowDiscovery, EffectiveStatus: "complete"},
		{Workflow: model.WorkflowScrape, EffectiveStatus: "complete"},
	}))
	assert.True(t, AllComplete(reg, []model.TrackState{
		{Workflow: model.WorkflowDiscovery, EffectiveStatus: "complete"},
		{Workflow: model.WorkflowScrape, EffectiveStatus: "complete"},
		{Workflow: model.WorkflowEmailImport, EffectiveStatus: "classification_complete"},
	}))
	assert.False(t, AllComplete(reg, []model.TrackState{
		{Workflow: model.WorkflowDiscovery, EffectiveStatus: "complete"},
		{Workflow: model.WorkflowScrape, EffectiveStatus: model.StatusWaiting},
		{Workflow: model.WorkflowEmailImport, EffectiveStatus: "complete"},
	}))
}
