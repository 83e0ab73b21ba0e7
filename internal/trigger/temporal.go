package trigger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalclient "go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/sells-group/onboard-cli/internal/config"
	"github.com/sells-group/onboard-cli/internal/resilience"
)

// WorkflowStarter is the part of the Temporal client the transport needs.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options temporalclient.StartWorkflowOptions, workflow interface{}, args ...interface{}) (temporalclient.WorkflowRun, error)
}

// TemporalTransport starts the stage as a Temporal workflow. The workflow
// id is fixed per workspace and track, so a second start while the first
// is still running is a no-op on the server.
type TemporalTransport struct {
	starter   WorkflowStarter
	taskQueue string
	timeout   time.Duration
	breaker   *resilience.Breaker
}

// NewTemporalTransport creates a Temporal transport.
func NewTemporalTransport(starter WorkflowStarter, taskQueue string, cfg config.TriggerConfig) *TemporalTransport {
	return &TemporalTransport{
		starter:   starter,
		taskQueue: taskQueue,
		timeout:   cfg.Timeout(),
		breaker:   resilience.NewBreaker("trigger.temporal", cfg.BreakerThreshold, time.Duration(cfg.BreakerCooldownSecs)*time.Second),
	}
}

func (t *TemporalTransport) Name() string { return "temporal" }

// WorkflowID is the Temporal workflow id used for a workspace's track.
func WorkflowID(req Request) string {
	return fmt.Sprintf("onboard:%s:%s", req.WorkspaceID, req.Track)
}

func (t *TemporalTransport) Start(ctx context.Context, req Request) error {
	if err := t.breaker.Allow(); err != nil {
		return err
	}
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	opts := temporalclient.StartWorkflowOptions{
		ID:                                       WorkflowID(req),
		TaskQueue:                                t.taskQueue,
		WorkflowIDReusePolicy:                    enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}

	run, err := t.starter.ExecuteWorkflow(ctx, opts, req.Workflow, req)
	var already *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &already) {
		zap.L().Info("trigger: workflow already running",
			zap.String("workspace_id", req.WorkspaceID),
			zap.String("workflow_id", opts.ID),
		)
		t.breaker.Record(nil)
		return nil
	}
	t.breaker.Record(err)
	if err != nil {
		return eris.Wrapf(err, "trigger: start temporal workflow %s", opts.ID)
	}

	zap.L().Info("trigger: temporal workflow started",
		zap.String("workspace_id", req.WorkspaceID),
		zap.String("workflow_id", run.GetID()),
		zap.String("run_id", run.GetRunID()),
	)
	return nil
}

// DialTemporal connects to Temporal, retrying while the frontend comes up.
func DialTemporal(ctx context.Context, cfg config.TemporalConfig) (temporalclient.Client, error) {
	opts := temporalclient.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	}
	policy := resilience.Policy{
		Attempts:   5,
		Backoff:    500 * time.Millisecond,
		MaxBackoff: 5 * time.Second,
		Retryable:  func(error) bool { return true },
	}
	c, err := resilience.Value(ctx, "trigger.temporal_dial", policy, func(ctx context.Context) (temporalclient.Client, error) {
		dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return temporalclient.DialContext(dctx, opts)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "trigger: dial temporal %s", cfg.HostPort)
	}
	return c, nil
}
