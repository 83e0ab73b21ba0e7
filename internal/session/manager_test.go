package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/onboard-cli/internal/model"
	"github.com/sells-group/onboard-cli/internal/notify"
)

func testManager(t *testing.T, f *mockFetcher) (*Manager, *notify.Hub) {
	t.Helper()
	hub := notify.NewHub()
	deps := testDeps(t, f, &mockTransport{}, &mockWriter{})
	m := NewManager(func(ws string) *Session {
		return New(ws, deps, Options{Interval: time.Hour, WakeRate: 100})
	}, hub)
	t.Cleanup(m.Close)
	return m, hub
}

func TestManager_MountIsIdempotent(t *testing.T) {
	f := &mockFetcher{snaps: []*model.Snapshot{snap(testNow, nil)}}
	m, _ := testManager(t, f)

	s1, created, err := m.Mount("ws-1")
	require.NoError(t, err)
	assert.True(t, created)

	s2, created, err := m.Mount("ws-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, m.Len())

	got, ok := m.Get("ws-1")
	assert.True(t, ok)
	assert.Same(t, s1, got)

	_, _, err = m.Mount("")
	assert.Error(t, err)
}

func TestManager_HubWakesSession(t *testing.T) {
	f := &mockFetcher{snaps: []*model.Snapshot{snap(testNow, nil)}}
	m, hub := testManager(t, f)

	_, _, err := m.Mount("ws-1")
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return f.Calls() == 1 }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, hub.Notify("ws-1"))
	assert.Eventually(t, func() bool { return f.Calls() == 2 }, 2*time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return len(m.Views()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "ws-1", m.Views()[0].WorkspaceID)
}

func TestManager_UnmountStopsPolling(t *testing.T) {
	f := &mockFetcher{snaps: []*model.Snapshot{snap(testNow, nil)}}
	m, hub := testManager(t, f)

	first, _, err := m.Mount("ws-1")
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return f.Calls() >= 1 }, 2*time.Second, 5*time.Millisecond)

	assert.True(t, m.Unmount("ws-1"))
	assert.False(t, m.Unmount("ws-1"))
	assert.Equal(t, 0, hub.Notify("ws-1"))
	assert.Equal(t, 0, m.Len())

	calls := f.Calls()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, f.Calls())

	// A remount starts a fresh session with fresh latches.
	second, created, err := m.Mount("ws-1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID(), second.ID())
}

func TestManager_Close(t *testing.T) {
	f := &mockFetcher{snaps: []*model.Snapshot{snap(testNow, nil)}}
	m, _ := testManager(t, f)

	for _, ws := range []string{"ws-1", "ws-2"} {
		_, _, err := m.Mount(ws)
		require.NoError(t, err)
	}
	m.Close()
	assert.Equal(t, 0, m.Len())

	_, _, err := m.Mount("ws-3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manager closed")
}
