// Package trigger starts downstream workflows when their dependency gate
// opens, at most once per gate opening per session.
package trigger

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/onboard-cli/internal/config"
	"github.com/sells-group/onboard-cli/internal/model"
)

// Request is one stage-start call.
type Request struct {
	WorkspaceID     string             `json:"tenantId"`
	Workflow        string             `json:"workflow"`
	Track           model.WorkflowType `json:"track"`
	CallbackAddress string             `json:"callbackAddress"`
	HandoffID       string             `json:"handoffId"`
}

// Transport delivers a stage-start call to whatever runs the workflow.
type Transport interface {
	Start(ctx context.Context, req Request) error
	Name() string
}

// NoopTransport only records the handoff row; something else is expected
// to pick it up.
type NoopTransport struct{}

func (NoopTransport) Start(context.Context, Request) error { return nil }

func (NoopTransport) Name() string { return "none" }

// CallbackAddress is where the external job reports progress for a track.
func CallbackAddress(base, workspaceID string, wf model.WorkflowType) string {
	if base == "" {
		return ""
	}
	return fmt.Sprintf("%s/api/v1/callbacks/%s/%s", strings.TrimRight(base, "/"), workspaceID, wf)
}

// NewTransport builds the configured transport. starter is only used by the
// temporal transport and may be nil otherwise.
func NewTransport(cfg config.TriggerConfig, tcfg config.TemporalConfig, starter WorkflowStarter) (Transport, error) {
	switch cfg.Transport {
	case "webhook":
		if cfg.WebhookURL == "" {
			return nil, eris.New("trigger: webhook transport needs trigger.webhook_url")
		}
		return NewWebhookTransport(cfg), nil
	case "temporal":
		if starter == nil {
			return nil, eris.New("trigger: temporal transport needs a client")
		}
		return NewTemporalTransport(starter, tcfg.TaskQueue, cfg), nil
	case "none", "":
		return NoopTransport{}, nil
	default:
		return nil, eris.Errorf("trigger: unknown transport %q", cfg.Transport)
	}
}
