package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/onboard-cli/internal/config"
	"github.com/sells-group/onboard-cli/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertTrackFailed      AlertType = "track_failed"
	AlertTrackTimeout     AlertType = "track_timeout"
	AlertDispatchFailed   AlertType = "dispatch_failed"
	AlertFleetFailureRate AlertType = "fleet_failure_rate"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type        AlertType          `json:"type"`
	Severity    string             `json:"severity"`
	WorkspaceID string             `json:"workspace_id,omitempty"`
	Workflow    model.WorkflowType `json:"workflow,omitempty"`
	Message     string             `json:"message"`
	Details     map[string]any     `json:"details,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

// Alerter turns failure transitions into alerts and delivers them via webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate compares two consecutive views of one workspace and returns an
// alert for every track that newly failed or whose stage-start newly failed.
// prev may be nil on the first tick.
func (a *Alerter) Evaluate(prev, cur *model.View) []Alert {
	if cur == nil {
		return nil
	}
	var alerts []Alert
	now := time.Now().UTC()

	for _, tv := range cur.Tracks {
		var before model.TrackView
		if prev != nil {
			before, _ = prev.Track(tv.Workflow)
		}

		if tv.Error != nil && (before.Error == nil || before.Error.Kind != tv.Error.Kind) {
			typ := AlertTrackFailed
			if tv.Error.Kind == model.ErrorTimeout {
				typ = AlertTrackTimeout
			}
			alerts = append(alerts, Alert{
				Type:        typ,
				Severity:    "high",
				WorkspaceID: cur.WorkspaceID,
				Workflow:    tv.Workflow,
				Message:     fmt.Sprintf("%s failed for workspace %s: %s", tv.Title, cur.WorkspaceID, tv.Error.Message),
				Details: map[string]any{
					"kind":            string(tv.Error.Kind),
					"declared_status": tv.DeclaredStatus,
				},
				Timestamp: now,
			})
		}

		if tv.DispatchError != nil && before.DispatchError == nil {
			alerts = append(alerts, Alert{
				Type:        AlertDispatchFailed,
				Severity:    "medium",
				WorkspaceID: cur.WorkspaceID,
				Workflow:    tv.Workflow,
				Message:     fmt.Sprintf("Could not start %s for workspace %s: %s", tv.Title, cur.WorkspaceID, tv.DispatchError.Message),
				Timestamp:   now,
			})
		}
	}
	return alerts
}

// EvaluateFleet checks the share of failed tracks across all mounted sessions.
func (a *Alerter) EvaluateFleet(snap *FleetSnapshot) []Alert {
	if snap == nil || snap.Tracks < a.cfg.MinTracks || a.cfg.FailureRateThreshold <= 0 {
		return nil
	}
	if snap.FailRate <= a.cfg.FailureRateThreshold {
		return nil
	}
	return []Alert{{
		Type:     AlertFleetFailureRate,
		Severity: "high",
		Message: fmt.Sprintf(
			"%.1f%% of onboarding tracks are failed (%d of %d across %d sessions), threshold %.1f%%",
			snap.FailRate*100, snap.Failed, snap.Tracks, snap.Sessions, a.cfg.FailureRateThreshold*100,
		),
		Details: map[string]any{
			"failed":    snap.Failed,
			"tracks":    snap.Tracks,
			"sessions":  snap.Sessions,
			"threshold": a.cfg.FailureRateThreshold,
		},
		Timestamp: snap.CollectedAt,
	}}
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.AlertWebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.String("workspace_id", alert.WorkspaceID),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("workspace_id", alert.WorkspaceID),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.AlertWebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
