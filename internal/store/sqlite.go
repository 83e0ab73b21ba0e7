package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/onboard-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// runs of the CLI where no shared Postgres exists.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS workflow_status (
	id            TEXT PRIMARY KEY,
	workspace_id  TEXT NOT NULL,
	workflow_type TEXT NOT NULL,
	status        TEXT NOT NULL,
	details       TEXT NOT NULL DEFAULT '{}',
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_workflow_status_latest
	ON workflow_status (workspace_id, workflow_type, updated_at);

CREATE TABLE IF NOT EXISTS competitors (
	id           TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	domain       TEXT NOT NULL,
	scraped_at   DATETIME,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_competitors_workspace ON competitors (workspace_id);

CREATE TABLE IF NOT EXISTS emails (
	id            TEXT PRIMARY KEY,
	workspace_id  TEXT NOT NULL,
	subject       TEXT NOT NULL DEFAULT '',
	classified_at DATETIME,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_emails_workspace ON emails (workspace_id);
`

func (s *SQLiteStore) LatestStatus(ctx context.Context, workspaceID string, wf model.WorkflowType) (*model.StatusRecord, error) {
	var rec model.StatusRecord
	var wfType, details string
	var updated int64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, workspace_id, workflow_type, status, details, updated_at
		 FROM workflow_status
		 WHERE workspace_id = ? AND workflow_type = ?
		 ORDER BY updated_at DESC, rowid DESC
		 LIMIT 1`,
		workspaceID, string(wf),
	).Scan(&rec.ID, &rec.WorkspaceID, &wfType, &rec.Status, &details, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest status %s/%s", workspaceID, wf)
	}
	rec.WorkflowType = model.WorkflowType(wfType)
	rec.UpdatedAt = time.UnixMilli(updated).UTC()

	if details != "" {
		if err := json.Unmarshal([]byte(details), &rec.Details); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal details for %s", rec.ID)
		}
	}
	return &rec, nil
}

func (s *SQLiteStore) Count(ctx context.Context, workspaceID string, key model.CountKey) (int64, error) {
	q, err := countQuery(key, "?")
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, q, workspaceID).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "sqlite: count %s for %s", key, workspaceID)
	}
	return n, nil
}

// InsertStatus stores timestamps as unix milliseconds so ordering and
// round-trips stay exact regardless of the driver's time formatting.
func (s *SQLiteStore) InsertStatus(ctx context.Context, rec *model.StatusRecord) error {
	prepareRecord(rec)
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal details")
	}

	ms := rec.UpdatedAt.UnixMilli()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_status (id, workspace_id, workflow_type, status, details, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.WorkspaceID, string(rec.WorkflowType), rec.Status, string(details), ms, ms,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert status %s/%s", rec.WorkspaceID, rec.WorkflowType)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
