package session

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/onboard-cli/internal/model"
	"github.com/sells-group/onboard-cli/internal/monitoring"
	"github.com/sells-group/onboard-cli/internal/notify"
)

// Factory builds a fresh Session for a workspace.
type Factory func(workspaceID string) *Session

type mounted struct {
	s          *Session
	cancel     context.CancelFunc
	done       chan struct{}
	unregister func()
}

// Manager owns the mounted sessions, one per workspace.
type Manager struct {
	factory Factory
	hub     *notify.Hub

	mu       sync.Mutex
	sessions map[string]*mounted
	closed   bool
}

// NewManager creates a Manager. hub may be nil when no push source runs.
func NewManager(factory Factory, hub *notify.Hub) *Manager {
	if hub == nil {
		hub = notify.NewHub()
	}
	return &Manager{
		factory:  factory,
		hub:      hub,
		sessions: make(map[string]*mounted),
	}
}

// Mount starts a session for workspaceID. An already-mounted workspace
// returns its existing session and created=false.
func (m *Manager) Mount(workspaceID string) (s *Session, created bool, err error) {
	if workspaceID == "" {
		return nil, false, eris.New("session: empty workspace id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, false, eris.New("session: manager closed")
	}
	if e, ok := m.sessions[workspaceID]; ok {
		return e.s, false, nil
	}

	s = m.factory(workspaceID)
	ctx, cancel := context.WithCancel(context.Background())
	e := &mounted{
		s:          s,
		cancel:     cancel,
		done:       make(chan struct{}),
		unregister: m.hub.Register(workspaceID, s.Wake),
	}
	m.sessions[workspaceID] = e

	go func() {
		defer close(e.done)
		_ = s.Run(ctx)
	}()

	monitoring.SetSessionsActive(len(m.sessions))
	zap.L().Info("session: mounted",
		zap.String("workspace_id", workspaceID),
		zap.String("session_id", s.ID()),
	)
	return s, true, nil
}

// Unmount stops the workspace's session and returns once its poll loop
// and in-flight calls have exited. It reports whether a session was mounted.
func (m *Manager) Unmount(workspaceID string) bool {
	m.mu.Lock()
	e, ok := m.sessions[workspaceID]
	if ok {
		delete(m.sessions, workspaceID)
		monitoring.SetSessionsActive(len(m.sessions))
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	stop(e)
	zap.L().Info("session: unmounted",
		zap.String("workspace_id", workspaceID),
		zap.String("session_id", e.s.ID()),
	)
	return true
}

func stop(e *mounted) {
	e.unregister()
	e.cancel()
	<-e.done
	e.s.Close()
}

// Get returns the mounted session for workspaceID.
func (m *Manager) Get(workspaceID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[workspaceID]
	if !ok {
		return nil, false
	}
	return e.s, true
}

// Len returns the number of mounted sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Views returns the latest View of every mounted session that has ticked,
// ordered by workspace id.
func (m *Manager) Views() []*model.View {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, e := range m.sessions {
		sessions = append(sessions, e.s)
	}
	m.mu.Unlock()

	views := make([]*model.View, 0, len(sessions))
	for _, s := range sessions {
		if v := s.View(); v != nil {
			views = append(views, v)
		}
	}
	sort.Slice(views, func(i, j int) bool { return views[i].WorkspaceID < views[j].WorkspaceID })
	return views
}

// Hub returns the wake-up hub sessions register with.
func (m *Manager) Hub() *notify.Hub {
	return m.hub
}

// Close unmounts every session and refuses new mounts.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	all := m.sessions
	m.sessions = make(map[string]*mounted)
	monitoring.SetSessionsActive(0)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range all {
		wg.Add(1)
		go func(e *mounted) {
			defer wg.Done()
			stop(e)
		}(e)
	}
	wg.Wait()
}
