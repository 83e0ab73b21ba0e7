package reconcile

import (
	"math"

	"github.com/sells-group/onboard-cli/internal/model"
	"github.com/sells-group/onboard-cli/internal/phase"
)

// Bulk-phase blending: the phases before the bulk phase are worth a fixed
// head allowance, the bulk phase spans bulkSpanPercent proportionally to its
// current/total sub-counts, and the rest is left for the trailing phases.
const (
	bulkHeadPercent = 20.0
	bulkSpanPercent = 60.0
)

// Progress maps a track's effective status to a 0-100 bar value. Tiers, most
// precise first: the completion ratio when the track exposes one, the
// bulk-phase sub-counts, a percentage declared in details, and finally the
// phase index.
func Progress(t *phase.Table, status string, details model.Details, counts Ratio) float64 {
	switch {
	case status == model.StatusWaiting:
		return 0
	case t.IsSuccess(status):
		return 100
	case t.IsFailure(status):
		return 0
	}

	if t.RatioProgress {
		if counts.Total <= 0 {
			return 0
		}
		return round1(clamp(counts.Fraction() * 100))
	}

	if t.BulkPhase != "" && status == t.BulkPhase {
		if current, total, ok := subCounts(details); ok {
			return round1(clamp(bulkHeadPercent + bulkSpanPercent*current/total))
		}
	}

	if pct, ok := declaredPercent(details); ok {
		return round1(clamp(pct))
	}

	return round1(indexPercent(t, status))
}

func indexPercent(t *phase.Table, status string) float64 {
	steps := t.TotalPhases() - 1
	if steps <= 0 {
		return 0
	}
	return clamp(float64(t.Index(status)) / float64(steps) * 100)
}

// subCounts reads "competitor 4 of 15" style counters from details.
func subCounts(d model.Details) (current, total float64, ok bool) {
	total, ok = d.Float("total")
	if !ok || total <= 0 {
		return 0, 0, false
	}
	current, ok = d.Float("current")
	if !ok {
		return 0, 0, false
	}
	if current > total {
		current = total
	}
	if current < 0 {
		current = 0
	}
	return current, total, true
}

func declaredPercent(d model.Details) (float64, bool) {
	for _, k := range []string{"progress", "percent"} {
		if v, ok := d.Float(k); ok {
			return v, true
		}
	}
	return 0, false
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
