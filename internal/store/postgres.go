package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/docwatch/internal/pipeline"
)

const defaultRunsTable = "docwatch_runs"

var validRunsTable = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const runColumns = `id, job, launch, started_at, finished_at, status, error,
	shards, fingerprint, scanned, parse_errors, matched,
	accepted, rejected, already_published, pending, failed`

type pgPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// PostgresRuns keeps run history in a Postgres table so it survives restarts
// and is shared between API replicas.
type PostgresRuns struct {
	pool  pgPool
	table string
}

var _ RunRepository = (*PostgresRuns)(nil)

// NewPostgresRuns connects a pool to dsn.
func NewPostgresRuns(ctx context.Context, dsn, table string) (*PostgresRuns, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	r, err := NewPostgresRunsWithPool(p, table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return r, nil
}

// NewPostgresRunsWithPool builds the repository on an existing pool.
func NewPostgresRunsWithPool(p pgPool, table string) (*PostgresRuns, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = defaultRunsTable
	}
	if !validRunsTable.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresRuns{pool: p, table: table}, nil
}

// Close releases the pool.
func (r *PostgresRuns) Close() {
	r.pool.Close()
}

// EnsureSchema creates the runs table when it does not exist.
func (r *PostgresRuns) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id                TEXT        PRIMARY KEY,
	job               TEXT        NOT NULL,
	launch            TEXT        NOT NULL,
	started_at        TIMESTAMPTZ NOT NULL,
	finished_at       TIMESTAMPTZ,
	status            TEXT        NOT NULL,
	error             TEXT,
	shards            INTEGER     NOT NULL DEFAULT 0,
	fingerprint       TEXT        NOT NULL DEFAULT '',
	scanned           INTEGER     NOT NULL DEFAULT 0,
	parse_errors      INTEGER     NOT NULL DEFAULT 0,
	matched           INTEGER     NOT NULL DEFAULT 0,
	accepted          INTEGER     NOT NULL DEFAULT 0,
	rejected          INTEGER     NOT NULL DEFAULT 0,
	already_published INTEGER     NOT NULL DEFAULT 0,
	pending           INTEGER     NOT NULL DEFAULT 0,
	failed            INTEGER     NOT NULL DEFAULT 0
)`, r.table)
	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", r.table, err)
	}
	return nil
}

// Start implements RunRepository.
func (r *PostgresRuns) Start(ctx context.Context, run Run) error {
	query := fmt.Sprintf(`INSERT INTO %s (id, job, launch, started_at, status) VALUES ($1, $2, $3, $4, $5)`, r.table)
	if _, err := r.pool.Exec(ctx, query, run.ID, run.Job, run.Launch, run.StartedAt, string(RunRunning)); err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// Progress implements RunRepository.
func (r *PostgresRuns) Progress(ctx context.Context, id string, d pipeline.Result) error {
	query := fmt.Sprintf(`
UPDATE %s SET
	accepted = accepted + $2,
	rejected = rejected + $3,
	already_published = already_published + $4,
	pending = pending + $5,
	failed = failed + $6
WHERE id = $1 AND status = $7`, r.table)
	tag, err := r.pool.Exec(ctx, query, id, d.Accepted, d.Rejected, d.AlreadyPublished, d.Pending, d.Failed, string(RunRunning))
	if err != nil {
		return fmt.Errorf("update run progress %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var status string
	err = r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT status FROM %s WHERE id = $1`, r.table), id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("select run %s: %w", id, err)
	}
	return nil
}

// Finish implements RunRepository.
func (r *PostgresRuns) Finish(ctx context.Context, id string, finishedAt time.Time, res pipeline.Result, runErr error) error {
	var errText *string
	if runErr != nil {
		msg := runErr.Error()
		errText = &msg
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	finished_at = $2, status = $3, error = $4,
	shards = $5, fingerprint = $6, scanned = $7, parse_errors = $8, matched = $9,
	accepted = $10, rejected = $11, already_published = $12, pending = $13, failed = $14
WHERE id = $1`, r.table)
	tag, err := r.pool.Exec(ctx, query,
		id, finishedAt, string(FinalStatus(res, runErr)), errText,
		res.Shards, res.Fingerprint, res.Scanned, res.ParseErrors, res.Matched,
		res.Accepted, res.Rejected, res.AlreadyPublished, res.Pending, res.Failed,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get implements RunRepository.
func (r *PostgresRuns) Get(ctx context.Context, id string) (Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, runColumns, r.table)
	run, err := scanRun(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("select run %s: %w", id, err)
	}
	return run, nil
}

// List implements RunRepository.
func (r *PostgresRuns) List(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error) {
	var (
		sb   strings.Builder
		args []any
	)
	fmt.Fprintf(&sb, `SELECT %s FROM %s`, runColumns, r.table)
	if status != nil {
		args = append(args, string(*status))
		fmt.Fprintf(&sb, ` WHERE status = $%d`, len(args))
	}
	sb.WriteString(` ORDER BY started_at DESC, id DESC`)
	if limit > 0 {
		args = append(args, limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}
	args = append(args, offset)
	fmt.Fprintf(&sb, ` OFFSET $%d`, len(args))

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	out := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

func scanRun(row pgx.Row) (Run, error) {
	var (
		run    Run
		status string
		res    = &run.Result
	)
	err := row.Scan(
		&run.ID, &run.Job, &run.Launch, &run.StartedAt, &run.FinishedAt, &status, &run.Error,
		&res.Shards, &res.Fingerprint, &res.Scanned, &res.ParseErrors, &res.Matched,
		&res.Accepted, &res.Rejected, &res.AlreadyPublished, &res.Pending, &res.Failed,
	)
	if err != nil {
		return Run{}, err
	}
	run.Status = RunStatus(status)
	res.RunID, res.Job, res.Launch = run.ID, run.Job, run.Launch
	return run, nil
}
