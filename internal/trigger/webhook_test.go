package trigger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/onboard-cli/internal/config"
	"github.com/sells-group/onboard-cli/internal/model"
	"github.com/sells-group/onboard-cli/internal/resilience"
)

func testRequest() Request {
	return Request{
		WorkspaceID:     "ws-1",
		Workflow:        "competitor-scrape",
		Track:           model.WorkflowScrape,
		CallbackAddress: "https://onboard.example.com/api/v1/callbacks/ws-1/scrape",
		HandoffID:       "h-1",
	}
}

func TestWebhookTransport_PostsRequest(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"success":true}`)) //nolint:errcheck
	}))
	defer srv.Close()

	tr := NewWebhookTransport(config.TriggerConfig{WebhookURL: srv.URL, TimeoutSecs: 5})
	require.NoError(t, tr.Start(context.Background(), testRequest()))

	assert.Equal(t, "ws-1", got["tenantId"])
	assert.Equal(t, "competitor-scrape", got["workflow"])
	assert.Equal(t, "scrape", got["track"])
	assert.Equal(t, "h-1", got["handoffId"])
	assert.Equal(t, "https://onboard.example.com/api/v1/callbacks/ws-1/scrape", got["callbackAddress"])
}

func TestWebhookTransport_ReportedFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"success":false,"error":"tenant not provisioned"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	tr := NewWebhookTransport(config.TriggerConfig{WebhookURL: srv.URL})
	err := tr.Start(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant not provisioned")
}

func TestWebhookTransport_NonJSONBodyIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("Accepted")) //nolint:errcheck
	}))
	defer srv.Close()

	tr := NewWebhookTransport(config.TriggerConfig{WebhookURL: srv.URL})
	assert.NoError(t, tr.Start(context.Background(), testRequest()))
}

func TestWebhookTransport_RetriesTransientStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewWebhookTransport(config.TriggerConfig{WebhookURL: srv.URL, RetryAttempts: 3})
	require.NoError(t, tr.Start(context.Background(), testRequest()))
	assert.Equal(t, int32(2), hits.Load())
}

func TestWebhookTransport_ClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("missing tenantId")) //nolint:errcheck
	}))
	defer srv.Close()

	tr := NewWebhookTransport(config.TriggerConfig{WebhookURL: srv.URL, RetryAttempts: 3})
	err := tr.Start(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http status 400")
	assert.Equal(t, int32(1), hits.Load())
}

func TestWebhookTransport_BreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	tr := NewWebhookTransport(config.TriggerConfig{WebhookURL: srv.URL, BreakerThreshold: 2, BreakerCooldownSecs: 60})
	for range 2 {
		require.Error(t, tr.Start(context.Background(), testRequest()))
	}
	err := tr.Start(context.Background(), testRequest())
	assert.ErrorIs(t, err, resilience.ErrBreakerOpen)
	assert.Equal(t, int32(2), hits.Load())
}

func TestNewTransport(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.TriggerConfig
		starter WorkflowStarter
		want    string
		wantErr string
	}{
		{"webhook", config.TriggerConfig{Transport: "webhook", WebhookURL: "http://hook"}, nil, "webhook", ""},
		{"webhook without url", config.TriggerConfig{Transport: "webhook"}, nil, "", "webhook_url"},
		{"temporal", config.TriggerConfig{Transport: "temporal"}, &mockStarter{}, "temporal", ""},
		{"temporal without client", config.TriggerConfig{Transport: "temporal"}, nil, "", "needs a client"},
		{"none", config.TriggerConfig{Transport: "none"}, nil, "none", ""},
		{"unknown", config.TriggerConfig{Transport: "fax"}, nil, "", "unknown transport"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := NewTransport(tt.cfg, config.TemporalConfig{TaskQueue: "onboarding"}, tt.starter)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, tr.Name())
		})
	}
}

func TestCallbackAddress(t *testing.T) {
	assert.Equal(t, "", CallbackAddress("", "ws-1", model.WorkflowScrape))
	assert.Equal(t, "http://x/api/v1/callbacks/ws-1/emailImport", CallbackAddress("http://x/", "ws-1", model.WorkflowEmailImport))
}
