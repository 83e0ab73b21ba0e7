// Package reconcile turns one snapshot of raw workflow status rows and
// entity counts into the per-track state the onboarding view renders. Every
// function here is pure; I/O lives in the source and session packages.
package reconcile

import (
	"time"

	"github.com/sells-group/onboard-cli/internal/model"
	"github.com/sells-group/onboard-cli/internal/phase"
)

// Outcome is the reduction of a single snapshot.
type Outcome struct {
	Tracks      []model.TrackState
	AllComplete bool
	Gates       map[model.WorkflowType]bool
	Ratios      map[model.WorkflowType]Ratio
	Rules       map[model.WorkflowType]Rule
}

// Track returns the state for wf.
func (o *Outcome) Track(wf model.WorkflowType) (model.TrackState, bool) {
	for _, t := range o.Tracks {
		if t.Workflow == wf {
			return t, true
		}
	}
	return model.TrackState{}, false
}

// Succeeded reports whether wf ended this tick in a success phase.
func (o *Outcome) Succeeded(reg *phase.Registry, wf model.WorkflowType) bool {
	ts, ok := o.Track(wf)
	if !ok {
		return false
	}
	t, ok := reg.Get(wf)
	return ok && t.IsSuccess(ts.EffectiveStatus)
}

// Engine runs normalize, gate, progress and aggregate over a snapshot.
type Engine struct {
	reg  *phase.Registry
	opts Options
}

// NewEngine creates an Engine for the given tracks.
func NewEngine(reg *phase.Registry, opts Options) *Engine {
	return &Engine{reg: reg, opts: opts.withDefaults()}
}

// Registry returns the engine's phase tables.
func (e *Engine) Registry() *phase.Registry {
	return e.reg
}

// Options returns the engine's thresholds.
func (e *Engine) Options() Options {
	return e.opts
}

// Reconcile reduces snap to one TrackState per configured track. sticky
// holds, per track, the counts at which this session first saw it succeed.
// Staleness is measured against snap.FetchedAt so replaying a snapshot gives
// the same answer.
func (e *Engine) Reconcile(snap *model.Snapshot, sticky map[model.WorkflowType]Ratio) *Outcome {
	now := snap.FetchedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	out := &Outcome{
		Tracks: make([]model.TrackState, 0, len(e.reg.Tables())),
		Gates:  make(map[model.WorkflowType]bool, len(e.reg.Tables())),
		Ratios: make(map[model.WorkflowType]Ratio, len(e.reg.Tables())),
		Rules:  make(map[model.WorkflowType]Rule, len(e.reg.Tables())),
	}
	effective := make(map[model.WorkflowType]string, len(e.reg.Tables()))

	for _, t := range e.reg.Tables() {
		rec := snap.Record(t.Workflow)
		ratio := Ratio{
			Done:  snap.Count(t.Counts.Done),
			Total: snap.Count(t.Counts.Total),
		}
		prev, seen := sticky[t.Workflow]

		res := Normalize(Input{
			Table:  t,
			Record: rec,
			Counts: ratio,
			Now:    now,
			Sticky: seen && ratio.AtLeast(prev),
		}, e.opts)

		counts := countValues(t, ratio)
		open := GateOpen(e.reg, effective, t.Workflow)

		var st model.TrackState
		if open {
			var details model.Details
			if rec != nil {
				details = rec.Details
			}
			st = model.TrackState{
				Workflow:        t.Workflow,
				Title:           t.Title,
				DeclaredStatus:  res.Declared,
				EffectiveStatus: res.Status,
				PhaseIndex:      t.Index(res.Status),
				Label:           t.Label(res.Status),
				Badge:           t.Badge(res.Status),
				Counts:          counts,
				CurrentItem:     details.String("current_item"),
				Error:           res.Error,
				ProgressPercent: Progress(t, res.Status, details, ratio),
			}
		} else {
			up, _ := e.reg.Get(t.Upstream)
			st = waitingState(t, up, res.Declared, counts)
		}

		effective[t.Workflow] = st.EffectiveStatus
		out.Gates[t.Workflow] = open
		out.Ratios[t.Workflow] = ratio
		out.Rules[t.Workflow] = res.Rule
		out.Tracks = append(out.Tracks, st)
	}

	out.AllComplete = AllComplete(e.reg, out.Tracks)
	return out
}

func countValues(t *phase.Table, r Ratio) []model.CountValue {
	var cv []model.CountValue
	if t.Counts.Done != "" {
		cv = append(cv, model.CountValue{Label: labelOr(t.Counts.DoneLabel, string(t.Counts.Done)), Value: r.Done})
	}
	if t.Counts.Total != "" {
		cv = append(cv, model.CountValue{Label: labelOr(t.Counts.TotalLabel, string(t.Counts.Total)), Value: r.Total})
	}
	return cv
}

func labelOr(label, key string) string {
	if label != "" {
		return label
	}
	return phase.Humanize(key)
}
