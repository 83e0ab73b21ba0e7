package trigger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/mocks"

	"github.com/sells-group/onboard-cli/internal/config"
)

func TestTemporalTransport_Start(t *testing.T) {
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("onboard:ws-1:scrape")
	run.On("GetRunID").Return("run-1")
	starter := &mockStarter{run: run}

	tr := NewTemporalTransport(starter, "onboarding", config.TriggerConfig{TimeoutSecs: 5})
	require.NoError(t, tr.Start(context.Background(), testRequest()))

	assert.Equal(t, 1, starter.calls)
	assert.Equal(t, "onboard:ws-1:scrape", starter.opts.ID)
	assert.Equal(t, "onboarding", starter.opts.TaskQueue)
	assert.Equal(t, enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY, starter.opts.WorkflowIDReusePolicy)
	assert.True(t, starter.opts.WorkflowExecutionErrorWhenAlreadyStarted)
	assert.Equal(t, "competitor-scrape", starter.workflow)
	run.AssertExpectations(t)
}

func TestTemporalTransport_AlreadyStartedIsSuccess(t *testing.T) {
	starter := &mockStarter{
		err: serviceerror.NewWorkflowExecutionAlreadyStarted("already started", "req-1", "run-0"),
	}
	tr := NewTemporalTransport(starter, "onboarding", config.TriggerConfig{})
	assert.NoError(t, tr.Start(context.Background(), testRequest()))
}

func TestTemporalTransport_Error(t *testing.T) {
	starter := &mockStarter{err: errors.New("namespace not found")}
	tr := NewTemporalTransport(starter, "onboarding", config.TriggerConfig{})

	err := tr.Start(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "onboard:ws-1:scrape")
	assert.Contains(t, err.Error(), "namespace not found")
}

func TestWorkflowID(t *testing.T) {
	assert.Equal(t, "onboard:ws-9:emailImport", WorkflowID(Request{WorkspaceID: "ws-9", Track: "emailImport"}))
}
