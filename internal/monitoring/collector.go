package monitoring

import (
	"time"

	"github.com/sells-group/onboard-cli/internal/model"
)

// FleetSnapshot is a point-in-time summary of every mounted session.
type FleetSnapshot struct {
	Sessions    int                 `json:"sessions"`
	Tracks      int                 `json:"tracks"`
	Failed      int                 `json:"failed"`
	FailRate    float64             `json:"fail_rate"`
	AllComplete int                 `json:"all_complete"`
	ByBadge     map[model.Badge]int `json:"by_badge"`
	CollectedAt time.Time           `json:"collected_at"`
}

// ViewSource lists the latest view of every mounted session.
type ViewSource interface {
	Views() []*model.View
}

// Collector summarizes the views of all mounted sessions.
type Collector struct {
	src ViewSource
}

// NewCollector creates a new fleet collector.
func NewCollector(src ViewSource) *Collector {
	return &Collector{src: src}
}

// Collect builds a FleetSnapshot and refreshes the per-badge track gauge.
func (c *Collector) Collect() *FleetSnapshot {
	snap := &FleetSnapshot{
		ByBadge:     make(map[model.Badge]int),
		CollectedAt: time.Now().UTC(),
	}
	perTrack := make(map[model.WorkflowType]map[model.Badge]int)

	for _, v := range c.src.Views() {
		if v == nil {
			continue
		}
		snap.Sessions++
		if v.AllComplete {
			snap.AllComplete++
		}
		for _, tv := range v.Tracks {
			snap.Tracks++
			snap.ByBadge[tv.Badge]++
			if tv.Failed() {
				snap.Failed++
			}
			if perTrack[tv.Workflow] == nil {
				perTrack[tv.Workflow] = make(map[model.Badge]int)
			}
			perTrack[tv.Workflow][tv.Badge]++
		}
	}
	if snap.Tracks > 0 {
		snap.FailRate = float64(snap.Failed) / float64(snap.Tracks)
	}

	tracksByBadge.Reset()
	for wf, badges := range perTrack {
		for b, n := range badges {
			tracksByBadge.WithLabelValues(string(wf), string(b)).Set(float64(n))
		}
	}
	return snap
}
