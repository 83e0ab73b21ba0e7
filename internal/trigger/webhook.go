package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/onboard-cli/internal/config"
	"github.com/sells-group/onboard-cli/internal/resilience"
)

// WebhookTransport posts the stage-start request to a workflow-automation hook.
type WebhookTransport struct {
	url     string
	client  *http.Client
	policy  resilience.Policy
	breaker *resilience.Breaker
}

// NewWebhookTransport creates a webhook transport from config.
func NewWebhookTransport(cfg config.TriggerConfig) *WebhookTransport {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	policy := resilience.DefaultPolicy()
	if cfg.RetryAttempts > 0 {
		policy.Attempts = cfg.RetryAttempts
	}
	return &WebhookTransport{
		url:     cfg.WebhookURL,
		client:  &http.Client{Timeout: timeout},
		policy:  policy,
		breaker: resilience.NewBreaker("trigger.webhook", cfg.BreakerThreshold, time.Duration(cfg.BreakerCooldownSecs)*time.Second),
	}
}

func (w *WebhookTransport) Name() string { return "webhook" }

// webhookReply is the optional JSON body automations answer with.
type webhookReply struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Start posts req, retrying transient failures. A 2xx whose JSON body says
// success=false is a failure.
func (w *WebhookTransport) Start(ctx context.Context, req Request) error {
	if err := w.breaker.Allow(); err != nil {
		return err
	}
	err := resilience.Do(ctx, "trigger.webhook", w.policy, func(ctx context.Context) error {
		return w.post(ctx, req)
	})
	w.breaker.Record(err)
	return err
}

func (w *WebhookTransport) post(ctx context.Context, req Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return eris.Wrap(err, "trigger: marshal webhook payload")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "trigger: create webhook request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return eris.Wrap(err, "trigger: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return eris.Wrap(resilience.HTTPError(resp.StatusCode, string(body)), "trigger: webhook")
	}

	var reply webhookReply
	if len(bytes.TrimSpace(body)) == 0 || json.Unmarshal(body, &reply) != nil {
		return nil
	}
	if reply.Success != nil && !*reply.Success {
		msg := reply.Error
		if msg == "" {
			msg = reply.Message
		}
		if msg == "" {
			msg = "automation reported failure"
		}
		return eris.Errorf("trigger: webhook rejected start: %s", msg)
	}
	return nil
}
