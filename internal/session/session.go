// Package session runs the onboarding view for one workspace: a poll loop
// that fetches a snapshot, reconciles it, fires stage-start calls whose
// gates opened, and publishes the resulting View.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/onboard-cli/internal/model"
	"github.com/sells-group/onboard-cli/internal/monitoring"
	"github.com/sells-group/onboard-cli/internal/reconcile"
	"github.com/sells-group/onboard-cli/internal/trigger"
)

var (
	// ErrUnknownTrack is returned for a workflow the phase tables do not define.
	ErrUnknownTrack = eris.New("session: unknown track")
	// ErrNotFailed is returned by RetryTrack for a track that is not failed.
	ErrNotFailed = eris.New("session: track is not failed")
)

// DefaultInterval is the poll period when none is configured.
const DefaultInterval = 3 * time.Second

// Fetcher reads one snapshot for a workspace.
type Fetcher interface {
	Fetch(ctx context.Context, workspaceID string) (*model.Snapshot, error)
}

// Deps are the collaborators a Session needs.
type Deps struct {
	Fetcher   Fetcher
	Engine    *reconcile.Engine
	Transport trigger.Transport
	Writer    trigger.StatusWriter
	Alerter   *monitoring.Alerter
}

// Options tunes a Session.
type Options struct {
	Interval           time.Duration
	FetchFailureWindow time.Duration
	WakeRate           float64
	WakeBurst          int
	CallbackBase       string
	DispatchTimeout    time.Duration

	// ReadOnly sessions reconcile and build views but never dispatch.
	ReadOnly bool

	// OnTick, when set, receives every View right after it is built.
	OnTick func(*model.View)
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.FetchFailureWindow <= 0 {
		o.FetchFailureWindow = 30 * time.Second
	}
	if o.WakeRate <= 0 {
		o.WakeRate = 1
	}
	if o.WakeBurst <= 0 {
		o.WakeBurst = 1
	}
	return o
}

// Session is the view controller of one mounted workspace. Its sticky
// success memory and dispatch latches live exactly as long as it does.
type Session struct {
	id          string
	workspaceID string
	deps        Deps
	opts        Options
	dispatcher  *trigger.Dispatcher
	limiter     *rate.Limiter
	wake        chan struct{}
	log         *zap.Logger

	tickMu sync.Mutex

	mu           sync.Mutex
	view         *model.View
	ticks        int64
	sticky       map[model.WorkflowType]reconcile.Ratio
	lastGood     map[model.WorkflowType]*model.StatusRecord
	failingSince map[model.WorkflowType]time.Time

	alerts sync.WaitGroup
}

// New creates a Session. It does not poll until Run or Tick is called.
func New(workspaceID string, deps Deps, opts Options) *Session {
	opts = opts.withDefaults()
	if deps.Transport == nil {
		deps.Transport = trigger.NoopTransport{}
	}
	s := &Session{
		id:           uuid.NewString(),
		workspaceID:  workspaceID,
		deps:         deps,
		opts:         opts,
		limiter:      rate.NewLimiter(rate.Limit(opts.WakeRate), opts.WakeBurst),
		wake:         make(chan struct{}, 1),
		sticky:       make(map[model.WorkflowType]reconcile.Ratio),
		lastGood:     make(map[model.WorkflowType]*model.StatusRecord),
		failingSince: make(map[model.WorkflowType]time.Time),
	}
	s.log = zap.L().With(
		zap.String("component", "session"),
		zap.String("workspace_id", workspaceID),
		zap.String("session_id", s.id),
	)
	s.dispatcher = trigger.NewDispatcher(workspaceID, deps.Engine.Registry(), deps.Transport, deps.Writer,
		trigger.WithCallbackBase(opts.CallbackBase),
		trigger.WithTimeout(opts.DispatchTimeout),
		trigger.WithOnSettled(s.Wake),
	)
	return s
}

// ID is the session's unique id.
func (s *Session) ID() string { return s.id }

// WorkspaceID is the workspace this session watches.
func (s *Session) WorkspaceID() string { return s.workspaceID }

// Wake asks for an early tick. Wake-ups arriving faster than the limiter
// allows collapse into one.
func (s *Session) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run polls until ctx is done: once immediately, then every interval and
// on each wake-up. Ticks never overlap.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-s.wake:
			if err := s.limiter.Wait(ctx); err != nil {
				return nil
			}
		}
		s.runTick(ctx)
	}
}

func (s *Session) runTick(ctx context.Context) {
	if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
		s.log.Error("session: tick failed", zap.Error(err))
	}
}

// Tick runs one fetch-reconcile-dispatch cycle and returns the new View.
func (s *Session) Tick(ctx context.Context) (*model.View, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	start := time.Now()
	snap, err := s.deps.Fetcher.Fetch(ctx, s.workspaceID)
	if err != nil {
		return nil, eris.Wrapf(err, "session: fetch %s", s.workspaceID)
	}
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.carryLastGood(snap)
	out := s.deps.Engine.Reconcile(snap, s.sticky)
	s.remember(out)
	if !s.opts.ReadOnly {
		s.dispatcher.Evaluate(out)
	}
	s.ticks++
	view := s.buildView(snap, out)
	prev := s.view
	s.view = view
	s.mu.Unlock()

	s.raiseAlerts(prev, view)
	monitoring.RecordPoll(time.Since(start))

	if s.opts.OnTick != nil {
		s.opts.OnTick(view)
	}
	return view, nil
}

// carryLastGood replaces records whose status query failed with the last
// record this session read successfully. Must hold s.mu.
func (s *Session) carryLastGood(snap *model.Snapshot) {
	if snap.Records == nil {
		snap.Records = make(map[model.WorkflowType]*model.StatusRecord)
	}
	for _, t := range s.deps.Engine.Registry().Tables() {
		wf := t.Workflow
		if snap.StatusFailed(wf) {
			if _, ok := s.failingSince[wf]; !ok {
				s.failingSince[wf] = snap.FetchedAt
			}
			if rec, ok := s.lastGood[wf]; ok {
				snap.Records[wf] = rec
			}
			continue
		}
		delete(s.failingSince, wf)
		if rec := snap.Record(wf); rec != nil {
			s.lastGood[wf] = rec
		} else {
			delete(s.lastGood, wf)
		}
	}
}

// remember records the counts at which a track was first seen succeeding.
// Must hold s.mu.
func (s *Session) remember(out *reconcile.Outcome) {
	reg := s.deps.Engine.Registry()
	for _, ts := range out.Tracks {
		if _, seen := s.sticky[ts.Workflow]; seen {
			continue
		}
		if out.Succeeded(reg, ts.Workflow) {
			s.sticky[ts.Workflow] = out.Ratios[ts.Workflow]
		}
	}
}

// buildView must hold s.mu.
func (s *Session) buildView(snap *model.Snapshot, out *reconcile.Outcome) *model.View {
	v := &model.View{
		WorkspaceID: s.workspaceID,
		SessionID:   s.id,
		Tick:        s.ticks,
		Tracks:      make([]model.TrackView, 0, len(out.Tracks)),
		AllComplete: out.AllComplete,
		CanContinue: out.AllComplete,
		CanSkip:     true,
		PolledAt:    snap.FetchedAt,
	}

	for _, ts := range out.Tracks {
		tv := model.TrackView{TrackState: ts, CanRetry: ts.Failed()}

		ds := s.dispatcher.State(ts.Workflow)
		tv.Dispatching = ds.Inflight
		if ds.Err != nil {
			tv.DispatchError = ds.Err
			tv.CanRetryDispatch = true
		}

		if since, ok := s.failingSince[ts.Workflow]; ok {
			if snap.FetchedAt.Sub(since) >= s.opts.FetchFailureWindow {
				tv.Warning = &model.TrackError{
					Kind: model.ErrorFetch,
					Message: fmt.Sprintf("Status updates have been unavailable since %s; showing the last known state.",
						since.Format(time.Kitchen)),
				}
			}
		}
		v.Tracks = append(v.Tracks, tv)
	}
	return v
}

func (s *Session) raiseAlerts(prev, cur *model.View) {
	if s.deps.Alerter == nil {
		return
	}
	alerts := s.deps.Alerter.Evaluate(prev, cur)
	if len(alerts) == 0 {
		return
	}
	for _, a := range alerts {
		if a.Type == monitoring.AlertTrackFailed || a.Type == monitoring.AlertTrackTimeout {
			kind := ""
			if tv, ok := cur.Track(a.Workflow); ok && tv.Error != nil {
				kind = string(tv.Error.Kind)
			}
			monitoring.RecordTrackFailure(string(a.Workflow), kind)
		}
		s.log.Warn("session: track alert",
			zap.String("type", string(a.Type)),
			zap.String("workflow", string(a.Workflow)),
			zap.String("message", a.Message),
		)
	}

	s.alerts.Add(1)
	go func() {
		defer s.alerts.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.deps.Alerter.SendAlerts(ctx, alerts)
	}()
}

// View returns the latest View, or nil before the first tick.
func (s *Session) View() *model.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// RetryTrack restarts a failed track: its error and sticky memory are
// cleared and its latch is reset. A track with a trigger gets a fresh
// stage-start call on the next tick; one without gets a new pending
// status record right away.
func (s *Session) RetryTrack(ctx context.Context, wf model.WorkflowType) error {
	t, ok := s.deps.Engine.Registry().Get(wf)
	if !ok {
		return eris.Wrapf(ErrUnknownTrack, "session: retry %s", wf)
	}

	s.mu.Lock()
	tv, ok := s.view.Track(wf)
	if !ok || !tv.Failed() {
		s.mu.Unlock()
		return eris.Wrapf(ErrNotFailed, "session: retry %s", wf)
	}
	delete(s.sticky, wf)
	s.mu.Unlock()

	if !s.dispatcher.ResetTrack(wf) {
		rec := &model.StatusRecord{
			WorkspaceID:  s.workspaceID,
			WorkflowType: wf,
			Status:       t.First(),
			Details:      model.Details{"retried_by": s.id},
		}
		if err := s.deps.Writer.InsertStatus(ctx, rec); err != nil {
			return eris.Wrapf(err, "session: write retry record for %s", wf)
		}
	}

	s.log.Info("session: track retried", zap.String("workflow", string(wf)))
	s.Wake()
	return nil
}

// RetryDispatch re-attempts only the stage-start call of a track whose
// last dispatch failed.
func (s *Session) RetryDispatch(wf model.WorkflowType) error {
	if _, ok := s.deps.Engine.Registry().Get(wf); !ok {
		return eris.Wrapf(ErrUnknownTrack, "session: retry dispatch %s", wf)
	}
	if err := s.dispatcher.RetryDispatch(wf); err != nil {
		return err
	}
	s.log.Info("session: dispatch retry armed", zap.String("workflow", string(wf)))
	s.Wake()
	return nil
}

// Dispatcher exposes the session's dispatcher.
func (s *Session) Dispatcher() *trigger.Dispatcher {
	return s.dispatcher
}

// Close cancels in-flight stage-start calls and waits for background work.
func (s *Session) Close() {
	s.dispatcher.Close()
	s.alerts.Wait()
}
