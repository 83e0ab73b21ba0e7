// Package source fetches one consistent snapshot of workflow status rows and
// corroborating counts for a workspace.
package source

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/onboard-cli/internal/model"
	"github.com/sells-group/onboard-cli/internal/monitoring"
	"github.com/sells-group/onboard-cli/internal/phase"
)

// DefaultQueryTimeout bounds each sub-query of a fetch.
const DefaultQueryTimeout = 5 * time.Second

// Reader is the read side of the store.
type Reader interface {
	LatestStatus(ctx context.Context, workspaceID string, wf model.WorkflowType) (*model.StatusRecord, error)
	Count(ctx context.Context, workspaceID string, key model.CountKey) (int64, error)
}

// Adapter fans one fetch out into a status query per track and a count
// query per count key, all in parallel.
type Adapter struct {
	reader  Reader
	reg     *phase.Registry
	timeout time.Duration
	now     func() time.Time
}

// New creates an Adapter. A non-positive queryTimeout uses DefaultQueryTimeout.
func New(reader Reader, reg *phase.Registry, queryTimeout time.Duration) *Adapter {
	if queryTimeout <= 0 {
		queryTimeout = DefaultQueryTimeout
	}
	return &Adapter{
		reader:  reader,
		reg:     reg,
		timeout: queryTimeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Fetch reads the latest status record of every track and every count the
// tracks reference. A failing sub-query never fails the fetch: a failed
// count reads as zero, a failed status query leaves the record absent, and
// both are listed in Snapshot.Errors. Only a done ctx returns an error.
func (a *Adapter) Fetch(ctx context.Context, workspaceID string) (*model.Snapshot, error) {
	log := zap.L().With(
		zap.String("component", "source"),
		zap.String("workspace_id", workspaceID),
	)

	snap := &model.Snapshot{
		WorkspaceID: workspaceID,
		Records:     make(map[model.WorkflowType]*model.StatusRecord),
		Counts:      make(map[model.CountKey]int64),
	}
	var mu sync.Mutex

	fail := func(fe model.FetchError) {
		monitoring.RecordFetchError(fe.Query)
		log.Warn("source: sub-query failed", zap.String("query", fe.Query), zap.Error(fe.Err))
		mu.Lock()
		snap.Errors = append(snap.Errors, fe)
		mu.Unlock()
	}

	var g errgroup.Group

	for _, t := range a.reg.Tables() {
		wf := t.Workflow
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			rec, err := a.reader.LatestStatus(qctx, workspaceID, wf)
			if err != nil {
				fail(model.FetchError{Query: "status:" + string(wf), Workflow: wf, Err: err})
				return nil
			}
			if rec != nil {
				mu.Lock()
				snap.Records[wf] = rec
				mu.Unlock()
			}
			return nil
		})
	}

	for _, key := range a.reg.CountKeys() {
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			n, err := a.reader.Count(qctx, workspaceID, key)
			if err != nil {
				fail(model.FetchError{Query: "count:" + string(key), Count: key, Err: err})
				n = 0
			}
			mu.Lock()
			snap.Counts[key] = n
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(snap.Errors, func(i, j int) bool { return snap.Errors[i].Query < snap.Errors[j].Query })
	snap.FetchedAt = a.now()
	return snap, nil
}
