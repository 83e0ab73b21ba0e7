package reconcile

import (
	"time"

	"github.com/sells-group/onboard-cli/internal/model"
	"github.com/sells-group/onboard-cli/internal/phase"
)

// DefaultCompletionThreshold is the done/total ratio at which a track counts
// as finished. It sits below 1 because a handful of items never settle.
const DefaultCompletionThreshold = 0.99

// Rule identifies which normalization rule produced an effective status.
type Rule string

const (
	RuleSticky   Rule = "sticky"
	RuleStale    Rule = "stale"
	RuleTerminal Rule = "terminal"
	RuleRatio    Rule = "ratio"
	RuleActivity Rule = "activity"
	RuleDeclared Rule = "declared"
)

// Options tunes the inference thresholds.
type Options struct {
	StaleAfter          time.Duration
	CompletionThreshold float64
}

// DefaultOptions returns the production thresholds.
func DefaultOptions() Options {
	return Options{
		StaleAfter:          DefaultStaleAfter,
		CompletionThreshold: DefaultCompletionThreshold,
	}
}

func (o Options) withDefaults() Options {
	if o.StaleAfter <= 0 {
		o.StaleAfter = DefaultStaleAfter
	}
	if o.CompletionThreshold <= 0 || o.CompletionThreshold > 1 {
		o.CompletionThreshold = DefaultCompletionThreshold
	}
	return o
}

// Ratio is a track's corroborating progress: Done items out of Total.
type Ratio struct {
	Done  int64 `json:"done"`
	Total int64 `json:"total"`
}

// Fraction returns Done/Total, or 0 when Total is unknown.
func (r Ratio) Fraction() float64 {
	if r.Total <= 0 {
		return 0
	}
	return float64(r.Done) / float64(r.Total)
}

// Observed reports whether any work is visible in the counts. When Total
// is fed by an upstream track only Done counts as this track's work.
func (r Ratio) Observed(upstreamTotal bool) bool {
	if upstreamTotal {
		return r.Done > 0
	}
	return r.Total > 0 || r.Done > 0
}

// AtLeast reports whether r has not moved backwards relative to prev.
func (r Ratio) AtLeast(prev Ratio) bool {
	return r.Done >= prev.Done && r.Total >= prev.Total
}

// Input is everything Normalize needs for one track.
type Input struct {
	Table  *phase.Table
	Record *model.StatusRecord // nil means the workflow has not started
	Counts Ratio
	Now    time.Time

	// Sticky is set when this session already saw the track succeed at
	// counts no greater than the current ones.
	Sticky bool
}

// Result is the effective status of one track.
type Result struct {
	Declared string
	Status   string
	Error    *model.TrackError
	Rule     Rule
}

// Declared returns the status the job itself reports, defaulting to the
// track's first phase when no record exists.
func Declared(t *phase.Table, rec *model.StatusRecord) string {
	if rec == nil || rec.Status == "" {
		return t.First()
	}
	return rec.Status
}

// Normalize merges the declared status with the corroborating counts. Rules
// are evaluated in order and the first match wins:
//
//  1. a quiet non-terminal job is failed
//  2. a declared terminal status is kept
//  3. success already observed at these counts stays success
//  4. done/total at or above the threshold promotes to success
//  5. visible work while still in the first phase promotes to in-progress
//  6. otherwise the declared status is used verbatim
//
// Rules 3 to 5 only move a track forward.
func Normalize(in Input, opts Options) Result {
	opts = opts.withDefaults()
	t := in.Table
	declared := Declared(t, in.Record)
	res := Result{Declared: declared, Status: declared, Rule: RuleDeclared}

	if IsStale(t, in.Record, in.Now, opts.StaleAfter) {
		res.Status = t.Failure
		res.Error = TimeoutError(opts.StaleAfter)
		res.Rule = RuleStale
		return res
	}

	if t.IsTerminal(declared) {
		res.Rule = RuleTerminal
		if t.IsFailure(declared) {
			res.Error = declaredError(in.Record)
		}
		return res
	}

	if in.Sticky {
		res.Status = t.SuccessPhase()
		res.Rule = RuleSticky
		return res
	}

	if in.Counts.Total > 0 && in.Counts.Fraction() >= opts.CompletionThreshold {
		res.Status = t.SuccessPhase()
		res.Rule = RuleRatio
		return res
	}

	if declared == t.First() && t.InProgress != "" && in.Counts.Observed(t.Counts.UpstreamTotal) {
		res.Status = t.InProgress
		res.Rule = RuleActivity
		return res
	}

	return res
}

func declaredError(rec *model.StatusRecord) *model.TrackError {
	msg := ""
	if rec != nil {
		msg = rec.Details.ErrorMessage()
	}
	if msg == "" {
		msg = "The job reported a failure without details."
	}
	return &model.TrackError{Kind: model.ErrorDeclared, Message: msg}
}
