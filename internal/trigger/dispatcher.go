package trigger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/onboard-cli/internal/model"
	"github.com/sells-group/onboard-cli/internal/monitoring"
	"github.com/sells-group/onboard-cli/internal/phase"
	"github.com/sells-group/onboard-cli/internal/reconcile"
)

var (
	// ErrNoTrigger is returned for a track without a stage-start trigger.
	ErrNoTrigger = eris.New("trigger: track has no stage-start trigger")
	// ErrNothingToRetry is returned by RetryDispatch when the last dispatch did not fail.
	ErrNothingToRetry = eris.New("trigger: no failed dispatch to retry")
)

// Dispatch results as recorded in metrics.
const (
	ResultStarted = "started"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// StatusWriter persists the handoff status record a dispatch creates.
type StatusWriter interface {
	InsertStatus(ctx context.Context, rec *model.StatusRecord) error
}

// State is the dispatch state of one track, as the view renders it.
type State struct {
	Fired     bool              `json:"fired"`
	Inflight  bool              `json:"inflight"`
	HandoffID string            `json:"handoff_id,omitempty"`
	Err       *model.TrackError `json:"error,omitempty"`
}

type latch struct {
	fired     bool
	wasOpen   bool
	retry     bool
	inflight  bool
	handoffID string
	err       *model.TrackError
}

// Dispatcher owns the one-shot latches of a single session. A gate-opening
// edge fires an auto trigger once; a failed call resets the latch so the
// next edge or an explicit retry can fire again.
type Dispatcher struct {
	workspaceID  string
	reg          *phase.Registry
	transport    Transport
	writer       StatusWriter
	callbackBase string
	timeout      time.Duration
	onSettled    func()
	log          *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	latches map[model.WorkflowType]*latch
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithCallbackBase sets the base URL external jobs report back to.
func WithCallbackBase(base string) Option {
	return func(d *Dispatcher) { d.callbackBase = base }
}

// WithTimeout bounds one dispatch, handoff write included.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithOnSettled registers a func called after every asynchronous dispatch finishes.
func WithOnSettled(fn func()) Option {
	return func(d *Dispatcher) { d.onSettled = fn }
}

// NewDispatcher creates the dispatcher for one session.
func NewDispatcher(workspaceID string, reg *phase.Registry, transport Transport, writer StatusWriter, opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		workspaceID: workspaceID,
		reg:         reg,
		transport:   transport,
		writer:      writer,
		timeout:     30 * time.Second,
		ctx:         ctx,
		cancel:      cancel,
		latches:     make(map[model.WorkflowType]*latch),
		log: zap.L().With(
			zap.String("component", "trigger.dispatcher"),
			zap.String("workspace_id", workspaceID),
		),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Dispatcher) latchFor(wf model.WorkflowType) *latch {
	l, ok := d.latches[wf]
	if !ok {
		l = &latch{}
		d.latches[wf] = l
	}
	return l
}

// Evaluate looks at one tick's outcome and starts the stage-start calls it
// calls for. Calls run in the background; Evaluate never blocks on them.
// It returns the tracks it fired for.
func (d *Dispatcher) Evaluate(out *reconcile.Outcome) []model.WorkflowType {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctx.Err() != nil {
		return nil
	}

	var fired []model.WorkflowType
	for _, t := range d.reg.Tables() {
		if t.Trigger == nil {
			continue
		}
		wf := t.Workflow
		l := d.latchFor(wf)
		open := out.Gates[wf]
		edge := open && !l.wasOpen
		l.wasOpen = open

		if l.inflight {
			continue
		}
		if l.retry {
			if open {
				d.fire(t, l)
				fired = append(fired, wf)
			}
			continue
		}
		if !t.Trigger.Auto || !edge || l.fired {
			continue
		}
		if reason := satisfied(t, out); reason != "" {
			l.fired = true
			monitoring.RecordDispatch(string(wf), ResultSkipped)
			d.log.Info("trigger: stage already satisfied, not starting",
				zap.String("workflow", string(wf)),
				zap.String("reason", reason),
			)
			continue
		}
		d.fire(t, l)
		fired = append(fired, wf)
	}
	return fired
}

// satisfied returns why the track needs no start call, or "" when it does.
func satisfied(t *phase.Table, out *reconcile.Outcome) string {
	r := out.Ratios[t.Workflow]
	if r.Total > 0 && r.Done >= r.Total {
		return "counts complete"
	}
	ts, ok := out.Track(t.Workflow)
	if !ok {
		return ""
	}
	switch {
	case t.IsSuccess(ts.EffectiveStatus):
		return "already succeeded"
	case ts.Error != nil, t.IsFailure(ts.EffectiveStatus):
		return ""
	case ts.DeclaredStatus != "" && ts.DeclaredStatus != t.First() && !t.IsTerminal(ts.DeclaredStatus):
		// Inference may promote a pending track on counts alone; only the
		// job's own status says it picked the work up.
		return "already running"
	}
	return ""
}

// fire must be called with d.mu held.
func (d *Dispatcher) fire(t *phase.Table, l *latch) {
	l.fired = true
	l.retry = false
	l.inflight = true
	l.err = nil
	l.handoffID = uuid.NewString()

	req := d.request(t, l.handoffID)
	d.wg.Add(1)
	go d.run(t, req)
}

func (d *Dispatcher) request(t *phase.Table, handoffID string) Request {
	return Request{
		WorkspaceID:     d.workspaceID,
		Workflow:        t.Trigger.Workflow,
		Track:           t.Workflow,
		CallbackAddress: CallbackAddress(d.callbackBase, d.workspaceID, t.Workflow),
		HandoffID:       handoffID,
	}
}

func (d *Dispatcher) run(t *phase.Table, req Request) {
	defer d.wg.Done()

	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	err := d.start(ctx, t, req)
	cancel()

	d.mu.Lock()
	l := d.latchFor(t.Workflow)
	l.inflight = false
	if err != nil && l.handoffID == req.HandoffID {
		l.fired = false
		l.err = dispatchError(t, err)
	}
	d.mu.Unlock()

	if d.onSettled != nil {
		d.onSettled()
	}
}

// start writes the handoff record and makes the call.
func (d *Dispatcher) start(ctx context.Context, t *phase.Table, req Request) error {
	log := d.log.With(
		zap.String("workflow", string(t.Workflow)),
		zap.String("handoff_id", req.HandoffID),
		zap.String("transport", d.transport.Name()),
	)

	rec := &model.StatusRecord{
		WorkspaceID:  d.workspaceID,
		WorkflowType: t.Workflow,
		Status:       t.First(),
		Details: model.Details{
			"handoff_id": req.HandoffID,
			"trigger":    req.Workflow,
		},
	}
	if req.CallbackAddress != "" {
		rec.Details["callback_address"] = req.CallbackAddress
	}

	err := d.writer.InsertStatus(ctx, rec)
	if err != nil {
		err = eris.Wrap(err, "trigger: write handoff record")
	} else {
		err = d.transport.Start(ctx, req)
	}

	if err != nil {
		monitoring.RecordDispatch(string(t.Workflow), ResultFailed)
		log.Error("trigger: stage start failed", zap.Error(err))
		return err
	}
	monitoring.RecordDispatch(string(t.Workflow), ResultStarted)
	log.Info("trigger: stage started")
	return nil
}

func dispatchError(t *phase.Table, err error) *model.TrackError {
	return &model.TrackError{
		Kind:    model.ErrorDispatch,
		Message: "Could not start " + t.Title + ": " + err.Error(),
	}
}

// DispatchNow makes a stage-start call synchronously, outside the latch
// rules. It backs the manual trigger command.
func (d *Dispatcher) DispatchNow(ctx context.Context, wf model.WorkflowType) (Request, error) {
	t, ok := d.reg.Get(wf)
	if !ok {
		return Request{}, eris.Errorf("trigger: unknown track %q", wf)
	}
	if t.Trigger == nil {
		return Request{}, eris.Wrapf(ErrNoTrigger, "trigger: %s", wf)
	}

	req := d.request(t, uuid.NewString())
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	err := d.start(ctx, t, req)

	d.mu.Lock()
	l := d.latchFor(wf)
	l.handoffID = req.HandoffID
	if err != nil {
		l.fired = false
		l.err = dispatchError(t, err)
	} else {
		l.fired = true
		l.err = nil
	}
	d.mu.Unlock()
	return req, err
}

// RetryDispatch arms exactly one more call for a track whose last dispatch
// failed. The call goes out on the next Evaluate with an open gate.
func (d *Dispatcher) RetryDispatch(wf model.WorkflowType) error {
	t, ok := d.reg.Get(wf)
	if !ok || t.Trigger == nil {
		return eris.Wrapf(ErrNoTrigger, "trigger: %s", wf)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	l := d.latchFor(wf)
	if l.err == nil || l.inflight || l.retry {
		return ErrNothingToRetry
	}
	l.err = nil
	l.retry = true
	return nil
}

// ResetTrack clears a track's latch after the track itself was retried.
// Tracks with a trigger get one call on the next Evaluate with an open
// gate. It reports whether such a call was armed.
func (d *Dispatcher) ResetTrack(wf model.WorkflowType) bool {
	t, ok := d.reg.Get(wf)
	if !ok {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	l := d.latchFor(wf)
	l.fired = false
	l.err = nil
	if t.Trigger == nil || l.inflight {
		return false
	}
	l.retry = true
	return true
}

// State returns the dispatch state of wf. A call armed by a retry counts as in flight.
func (d *Dispatcher) State(wf model.WorkflowType) State {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.latches[wf]
	if !ok {
		return State{}
	}
	var e *model.TrackError
	if l.err != nil {
		cp := *l.err
		e = &cp
	}
	return State{
		Fired:     l.fired,
		Inflight:  l.inflight || l.retry,
		HandoffID: l.handoffID,
		Err:       e,
	}
}

// Wait blocks until every background call has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close cancels in-flight calls and waits for them.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}
