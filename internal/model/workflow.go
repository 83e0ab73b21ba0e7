package model

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// WorkflowType identifies one background workflow tracked during onboarding.
type WorkflowType string

const (
	WorkflowDiscovery   WorkflowType = "discovery"
	WorkflowScrape      WorkflowType = "scrape"
	WorkflowEmailImport WorkflowType = "emailImport"
)

// CountKey names a corroborating count read from an owning entity table.
type CountKey string

const (
	CountCompetitorsDiscovered CountKey = "competitors_discovered"
	CountCompetitorsScraped    CountKey = "competitors_scraped"
	CountEmailsReceived        CountKey = "emails_received"
	CountEmailsClassified      CountKey = "emails_classified"
)

// StatusRecord is the latest workflow_status row for one workspace and workflow type.
// The backend owns the row; external jobs update it as they progress.
type StatusRecord struct {
	ID           string       `json:"id"`
	WorkspaceID  string       `json:"workspace_id"`
	WorkflowType WorkflowType `json:"workflow_type"`
	Status       string       `json:"status"`
	Details      Details      `json:"details,omitempty"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Details is the open key-value bag attached to a status record. Keys are
// workflow-specific and optional.
type Details map[string]any

// String returns the value at key as a trimmed string, or "".
func (d Details) String(key string) string {
	v, ok := d[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	default:
		b, err := json.Marshal(s)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Float returns the numeric value at key. Numeric strings are accepted since
// some automations serialize every value as text.
func (d Details) Float(key string) (float64, bool) {
	v, ok := d[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Int is Float truncated to int64.
func (d Details) Int(key string) (int64, bool) {
	f, ok := d.Float(key)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// ErrorMessage returns the failure text reported by the job, checking the
// keys the known automations use.
func (d Details) ErrorMessage() string {
	for _, k := range []string{"error", "error_message", "errorMessage", "message"} {
		if s := d.String(k); s != "" {
			return s
		}
	}
	return ""
}

// FetchError records one failed sub-query of a snapshot fan-out.
type FetchError struct {
	Query    string       `json:"query"`
	Workflow WorkflowType `json:"workflow,omitempty"`
	Count    CountKey     `json:"count,omitempty"`
	Err      error        `json:"-"`
}

func (e FetchError) Error() string {
	if e.Err == nil {
		return e.Query
	}
	return e.Query + ": " + e.Err.Error()
}

// Snapshot is everything read for one workspace in a single poll tick. Every
// track in a tick is evaluated against the same snapshot.
type Snapshot struct {
	WorkspaceID string                         `json:"workspace_id"`
	Records     map[WorkflowType]*StatusRecord `json:"records"`
	Counts      map[CountKey]int64             `json:"counts"`
	Errors      []FetchError                   `json:"errors,omitempty"`
	FetchedAt   time.Time                      `json:"fetched_at"`
}

// Record returns the status record for wf, or nil when the workflow has not started.
func (s *Snapshot) Record(wf WorkflowType) *StatusRecord {
	if s == nil || s.Records == nil {
		return nil
	}
	return s.Records[wf]
}

// Count returns the count for key; missing or failed counts are zero.
func (s *Snapshot) Count(key CountKey) int64 {
	if s == nil || s.Counts == nil || key == "" {
		return 0
	}
	return s.Counts[key]
}

// StatusFailed reports whether the status query for wf failed in this snapshot.
func (s *Snapshot) StatusFailed(wf WorkflowType) bool {
	if s == nil {
		return false
	}
	for _, e := range s.Errors {
		if e.Workflow == wf && e.Count == "" {
			return true
		}
	}
	return false
}
