package session

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/onboard-cli/internal/model"
	"github.com/sells-group/onboard-cli/internal/trigger"
)

// mockFetcher returns the queued snapshots in order, repeating the last.
type mockFetcher struct {
	mu    sync.Mutex
	snaps []*model.Snapshot
	calls int
	err   error
}

func (m *mockFetcher) Fetch(ctx context.Context, workspaceID string) (*model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i := m.calls - 1
	if i >= len(m.snaps) {
		i = len(m.snaps) - 1
	}
	src := m.snaps[i]

	// Sessions patch Records, so hand out a copy.
	cp := *src
	cp.WorkspaceID = workspaceID
	cp.Records = make(map[model.WorkflowType]*model.StatusRecord, len(src.Records))
	for k, v := range src.Records {
		cp.Records[k] = v
	}
	return &cp, nil
}

func (m *mockFetcher) Push(snaps ...*model.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = append(m.snaps, snaps...)
}

func (m *mockFetcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockTransport struct {
	mu    sync.Mutex
	calls []trigger.Request
	errs  []error
}

func (m *mockTransport) Start(_ context.Context, req trigger.Request) error {
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

func (m *mockTransport) Calls() []trigger.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]trigger.Request(nil), m.calls...)
}

type mockWriter struct {
	mu      sync.Mutex
	records []*model.StatusRecord
}

func (m *mockWriter) InsertStatus(_ context.Context, rec *model.StatusRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *mockWriter) Records() []*model.StatusRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.StatusRecord(nil), m.records...)
}

var testNow = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

func rec(wf model.WorkflowType, status string, age time.Duration) *model.StatusRecord {
	return &model.StatusRecord{
		ID:           string(wf) + "-" + status,
		WorkspaceID:  "ws-1",
		WorkflowType: wf,
		Status:       status,
		UpdatedAt:    testNow.Add(-age),
	}
}

func snap(at time.Time, counts map[model.CountKey]int64, recs ...*model.StatusRecord) *model.Snapshot {
	s := &model.Snapshot{
		WorkspaceID: "ws-1",
		Records:     make(map[model.WorkflowType]*model.StatusRecord),
		Counts:      counts,
		FetchedAt:   at,
	}
	for _, r := range recs {
		s.Records[r.WorkflowType] = r
	}
	return s
}
