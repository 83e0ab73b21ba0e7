package trigger

import (
	"context"
	"sync"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/sells-group/onboard-cli/internal/model"
)

// mockTransport records every call and returns the queued errors in order.
type mockTransport struct {
	mu    sync.Mutex
	calls []Request
	errs  []error
}

func (m *mockTransport) Start(_ context.Context, req Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if len(m.errs) == 0 {
		return nil
	}
	err := m.errs[0]
	m.errs = m.errs[1:]
	return err
}

func (m *mockTransport) Name() string { return "mock" }

func (m *mockTransport) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// mockWriter captures handoff records.
type mockWriter struct {
	mu      sync.Mutex
	records []*model.StatusRecord
	err     error
}

func (m *mockWriter) InsertStatus(_ context.Context, rec *model.StatusRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *mockWriter) Records() []*model.StatusRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.StatusRecord, len(m.records))
	copy(out, m.records)
	return out
}

// mockStarter stands in for the Temporal client.
type mockStarter struct {
	opts     temporalclient.StartWorkflowOptions
	workflow interface{}
	run      temporalclient.WorkflowRun
	err      error
	calls    int
}

func (m *mockStarter) ExecuteWorkflow(_ context.Context, options temporalclient.StartWorkflowOptions, workflow interface{}, _ ...interface{}) (temporalclient.WorkflowRun, error) {
	m.calls++
	m.opts = options
	m.workflow = workflow
	if m.err != nil {
		return nil, m.err
	}
	return m.run, nil
}
