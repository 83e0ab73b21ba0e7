package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/onboard-cli/internal/db"
	"github.com/sells-group/onboard-cli/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationLockID serializes concurrent Migrate calls across deploys.
const migrationLockID = 4242001

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
	raw  *pgxpool.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, raw: pool}, nil
}

// RawPool returns the concrete pool for subsystems that need a dedicated
// connection, such as LISTEN. It is nil for mock-backed stores.
func (s *PostgresStore) RawPool() *pgxpool.Pool {
	return s.raw
}

func (s *PostgresStore) LatestStatus(ctx context.Context, workspaceID string, wf model.WorkflowType) (*model.StatusRecord, error) {
	var rec model.StatusRecord
	var wfType string
	var details []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, workspace_id, workflow_type, status, details, updated_at
		 FROM workflow_status
		 WHERE workspace_id = $1 AND workflow_type = $2
		 ORDER BY updated_at DESC, created_at DESC
		 LIMIT 1`,
		workspaceID, string(wf),
	).Scan(&rec.ID, &rec.WorkspaceID, &wfType, &rec.Status, &details, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest status %s/%s", workspaceID, wf)
	}
	rec.WorkflowType = model.WorkflowType(wfType)

	if len(details) > 0 {
		if err := json.Unmarshal(details, &rec.Details); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal details for %s", rec.ID)
		}
	}
	return &rec, nil
}

func (s *PostgresStore) Count(ctx context.Context, workspaceID string, key model.CountKey) (int64, error) {
	q, err := countQuery(key, "$1")
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.pool.QueryRow(ctx, q, workspaceID).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "postgres: count %s for %s", key, workspaceID)
	}
	return n, nil
}

func (s *PostgresStore) InsertStatus(ctx context.Context, rec *model.StatusRecord) error {
	prepareRecord(rec)
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal details")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO workflow_status (id, workspace_id, workflow_type, status, details, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		rec.ID, rec.WorkspaceID, string(rec.WorkflowType), rec.Status, details, rec.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert status %s/%s", rec.WorkspaceID, rec.WorkflowType)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

// Migrate applies the embedded SQL files not yet recorded in
// onboard_schema_migrations, in filename order.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.migrate"))

	if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "postgres: acquire migration lock")
	}
	defer func() {
		if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.Warn("failed to release migration lock", zap.Error(err))
		}
	}()

	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS onboard_schema_migrations (
		filename   TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return eris.Wrap(err, "postgres: ensure migration table")
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return eris.Wrap(err, "postgres: read migration dir")
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		if applied[name] {
			continue
		}
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return eris.Wrapf(err, "postgres: read migration %s", name)
		}
		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "postgres: apply migration %s", name)
		}
		if _, err := s.pool.Exec(ctx,
			"INSERT INTO onboard_schema_migrations (filename) VALUES ($1)", name,
		); err != nil {
			return eris.Wrapf(err, "postgres: record migration %s", name)
		}
		log.Info("migration applied", zap.String("file", name))
	}
	return nil
}

func (s *PostgresStore) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, "SELECT filename FROM onboard_schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan migration row")
		}
		applied[name] = true
	}
	return applied, eris.Wrap(rows.Err(), "postgres: iterate migrations")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// prepareRecord fills the id and timestamp of a record about to be written.
func prepareRecord(rec *model.StatusRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	if rec.Details == nil {
		rec.Details = model.Details{}
	}
}
