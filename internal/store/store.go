// Package store reads and writes the workflow status rows and owning-entity
// counts the onboarding view reconciles.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/onboard-cli/internal/model"
)

// ErrUnknownCount is returned by Count for a key with no mapped query.
var ErrUnknownCount = eris.New("store: unknown count key")

// Store is the read side the Status Source Adapter polls plus the single
// write the onboarding flow performs: a handoff status record.
type Store interface {
	// LatestStatus returns the newest status record for the workflow, or
	// nil when the workflow has never started for the workspace.
	LatestStatus(ctx context.Context, workspaceID string, wf model.WorkflowType) (*model.StatusRecord, error)
	Count(ctx context.Context, workspaceID string, key model.CountKey) (int64, error)
	InsertStatus(ctx context.Context, rec *model.StatusRecord) error

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// countSource describes how a count key maps onto an owning entity table.
type countSource struct {
	table  string
	column string // non-null column marking the item done; empty counts every row
}

var countSources = map[model.CountKey]countSource{
	model.CountCompetitorsDiscovered: {table: "competitors"},
	model.CountCompetitorsScraped:    {table: "competitors", column: "scraped_at"},
	model.CountEmailsReceived:        {table: "emails"},
	model.CountEmailsClassified:      {table: "emails", column: "classified_at"},
}

// countQuery renders the SQL for key with the driver's placeholder.
func countQuery(key model.CountKey, placeholder string) (string, error) {
	src, ok := countSources[key]
	if !ok {
		return "", eris.Wrapf(ErrUnknownCount, "store: count %q", key)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT count(*) FROM %s WHERE workspace_id = %s", src.table, placeholder)
	if src.column != "" {
		fmt.Fprintf(&b, " AND %s IS NOT NULL", src.column)
	}
	return b.String(), nil
}

// CountKeys lists every count the store can answer.
func CountKeys() []model.CountKey {
	keys := make([]model.CountKey, 0, len(countSources))
	for k := range countSources {
		keys = append(keys, k)
	}
	return keys
}
