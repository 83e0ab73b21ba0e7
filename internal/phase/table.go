// Package phase holds the per-track phase tables: the ordered phase
// vocabulary of each workflow plus the metadata the reconciler needs to
// interpret it.
package phase

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/onboard-cli/internal/model"
)

// Phase is one named step in a track.
type Phase struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label"`
}

// CountSpec names the corroborating counts for a track. Done over Total is
// the completion ratio; Total may be empty when the job has no known size.
// UpstreamTotal marks a Total written by the upstream track, which says
// nothing about whether this track's own work has begun.
type CountSpec struct {
	Done          model.CountKey `yaml:"done"`
	DoneLabel     string         `yaml:"done_label"`
	Total         model.CountKey `yaml:"total"`
	TotalLabel    string         `yaml:"total_label"`
	UpstreamTotal bool           `yaml:"upstream_total"`
}

// TriggerSpec describes the external stage-start call for a track. Auto
// triggers fire when the track's gate opens; others fire only on retry.
type TriggerSpec struct {
	Workflow string `yaml:"workflow"`
	Auto     bool   `yaml:"auto"`
}

// Table is the phase table of one track.
type Table struct {
	Workflow      model.WorkflowType `yaml:"workflow"`
	Title         string             `yaml:"title"`
	Phases        []Phase            `yaml:"phases"`
	InProgress    string             `yaml:"in_progress"`
	Success       []string           `yaml:"success"`
	Failure       string             `yaml:"failure"`
	BulkPhase     string             `yaml:"bulk_phase"`
	RatioProgress bool               `yaml:"ratio_progress"`
	Counts        CountSpec          `yaml:"counts"`
	Upstream      model.WorkflowType `yaml:"upstream"`
	Trigger       *TriggerSpec       `yaml:"trigger"`

	index map[string]int
}

func (t *Table) buildIndex() {
	t.index = make(map[string]int, len(t.Phases))
	for i, p := range t.Phases {
		t.index[p.Key] = i
	}
}

// Index returns the position of status in the table. Unknown statuses map to
// 0 so that phase names added by an external job never break the view.
func (t *Table) Index(status string) int {
	if i, ok := t.index[status]; ok {
		return i
	}
	return 0
}

// Has reports whether status is a known phase key.
func (t *Table) Has(status string) bool {
	_, ok := t.index[status]
	return ok
}

// First is the "not started" phase.
func (t *Table) First() string {
	if len(t.Phases) == 0 {
		return ""
	}
	return t.Phases[0].Key
}

// SuccessPhase is the phase inference promotes to once counts show the work is done.
func (t *Table) SuccessPhase() string {
	if len(t.Success) == 0 {
		return ""
	}
	return t.Success[0]
}

// IsSuccess reports whether status is in the terminal-success set.
func (t *Table) IsSuccess(status string) bool {
	for _, s := range t.Success {
		if s == status {
			return true
		}
	}
	return false
}

// IsFailure reports whether status is the failure phase.
func (t *Table) IsFailure(status string) bool {
	return status != "" && status == t.Failure
}

// IsTerminal reports whether status is success or failure.
func (t *Table) IsTerminal(status string) bool {
	return t.IsSuccess(status) || t.IsFailure(status)
}

// TotalPhases is the phase count used for percentage denominators. The
// failure phase is not a step toward completion.
func (t *Table) TotalPhases() int {
	if t.Failure != "" && t.Has(t.Failure) {
		return len(t.Phases) - 1
	}
	return len(t.Phases)
}

// Label returns the display label for status. Unknown statuses are title-cased.
func (t *Table) Label(status string) string {
	if status == model.StatusWaiting {
		return "Waiting"
	}
	if i, ok := t.index[status]; ok && t.Phases[i].Label != "" {
		return t.Phases[i].Label
	}
	return Humanize(status)
}

// Badge maps status to the card badge.
func (t *Table) Badge(status string) model.Badge {
	switch {
	case status == model.StatusWaiting, status == t.First(), status == "":
		return model.BadgePending
	case t.IsSuccess(status):
		return model.BadgeDone
	case t.IsFailure(status):
		return model.BadgeError
	default:
		return model.BadgeInProgress
	}
}

// Humanize turns a phase key like "classification_complete" into "Classification Complete".
func Humanize(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	r := strings.NewReplacer("_", " ", "-", " ")
	// Casers keep state, so each call gets its own.
	return cases.Title(language.English).String(r.Replace(key))
}
