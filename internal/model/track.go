package model

import "time"

// StatusWaiting is the synthetic phase shown while a track's upstream
// dependency has not succeeded. It never appears in a status record.
const StatusWaiting = "waiting"

// Badge is the short state shown on a track card.
type Badge string

const (
	BadgePending    Badge = "Pending"
	BadgeInProgress Badge = "In Progress"
	BadgeDone       Badge = "Done"
	BadgeError      Badge = "Error"
)

// ErrorKind classifies a track-level failure.
type ErrorKind string

const (
	ErrorDeclared ErrorKind = "declared" // the job wrote status=failed
	ErrorTimeout  ErrorKind = "timeout"  // inferred from staleness
	ErrorDispatch ErrorKind = "dispatch" // the stage-start call failed
	ErrorFetch    ErrorKind = "fetch"    // status reads have been failing
)

// TrackError is a human-readable failure attached to a track.
type TrackError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// CountValue is one labelled count shown on a track card.
type CountValue struct {
	Label string `json:"label"`
	Value int64  `json:"value"`
}

// TrackState is the derived state of one workflow for one poll tick. It is
// rebuilt from scratch every tick and never persisted.
type TrackState struct {
	Workflow        WorkflowType `json:"workflow"`
	Title           string       `json:"title"`
	DeclaredStatus  string       `json:"declared_status"`
	EffectiveStatus string       `json:"effective_status"`
	PhaseIndex      int          `json:"phase_index"`
	Label           string       `json:"label"`
	Badge           Badge        `json:"badge"`
	Counts          []CountValue `json:"counts,omitempty"`
	CurrentItem     string       `json:"current_item,omitempty"`
	Error           *TrackError  `json:"error,omitempty"`
	ProgressPercent float64      `json:"progress_percent"`
}

// Failed reports whether the track is in its failure phase.
func (t TrackState) Failed() bool {
	return t.Badge == BadgeError
}

// TrackView is a TrackState plus the session-local state the view renders
// next to it: dispatch errors, fetch warnings, and which actions are offered.
type TrackView struct {
	TrackState
	DispatchError    *TrackError `json:"dispatch_error,omitempty"`
	Warning          *TrackError `json:"warning,omitempty"`
	Dispatching      bool        `json:"dispatching"`
	CanRetry         bool        `json:"can_retry"`
	CanRetryDispatch bool        `json:"can_retry_dispatch"`
}

// View is the full onboarding progress narrative for one workspace.
type View struct {
	WorkspaceID string      `json:"workspace_id"`
	SessionID   string      `json:"session_id"`
	Tick        int64       `json:"tick"`
	Tracks      []TrackView `json:"tracks"`
	AllComplete bool        `json:"all_complete"`
	CanContinue bool        `json:"can_continue"`
	CanSkip     bool        `json:"can_skip"`
	PolledAt    time.Time   `json:"polled_at"`
}

// Track returns the view for wf.
func (v *View) Track(wf WorkflowType) (TrackView, bool) {
	if v == nil {
		return TrackView{}, false
	}
	for _, t := range v.Tracks {
		if t.Workflow == wf {
			return t, true
		}
	}
	return TrackView{}, false
}
