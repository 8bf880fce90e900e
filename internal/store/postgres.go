package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/analytics-studio/internal/db"
	"github.com/sells-group/analytics-studio/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, opts db.PoolOptions) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, opts)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: time.Now}, nil
}

// NewPostgresWithPool wraps an existing pool. The caller keeps ownership of
// the pool; Close is a no-op.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	play       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	params     JSONB,
	analysis   JSONB,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS actions (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position     INTEGER NOT NULL,
	type         TEXT NOT NULL,
	title        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	priority     TEXT NOT NULL,
	impact_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	reasoning    TEXT NOT NULL DEFAULT '',
	metadata     JSONB,
	status       TEXT NOT NULL DEFAULT 'proposed',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS approvals (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	approver   TEXT NOT NULL,
	notes      TEXT NOT NULL DEFAULT '',
	action_ids JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS executions (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	action_id   TEXT NOT NULL REFERENCES actions(id) ON DELETE CASCADE,
	approval_id TEXT NOT NULL DEFAULT '',
	action_type TEXT NOT NULL,
	mode        TEXT NOT NULL,
	status      TEXT NOT NULL,
	target      TEXT NOT NULL DEFAULT '',
	external_id TEXT NOT NULL DEFAULT '',
	details     JSONB,
	error       TEXT NOT NULL DEFAULT '',
	error_class TEXT NOT NULL DEFAULT '',
	executed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_play ON runs(play);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_actions_run_id ON actions(run_id, position);
CREATE INDEX IF NOT EXISTS idx_actions_status ON actions(status);
CREATE INDEX IF NOT EXISTS idx_approvals_created_at ON approvals(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_executions_action_id ON executions(action_id);
CREATE INDEX IF NOT EXISTS idx_executions_approval_id ON executions(approval_id);
`

// actionColumns is the COPY column order for the actions table.
var actionColumns = []string{
	"id", "run_id", "position", "type", "title", "description", "priority",
	"impact_score", "reasoning", "metadata", "status", "created_at", "updated_at",
}

const (
	runSelect       = `SELECT id, play, status, params, analysis, error, created_at, updated_at FROM runs`
	actionSelect    = `SELECT id, run_id, type, title, description, priority, impact_score, reasoning, metadata, status FROM actions`
	approvalSelect  = `SELECT id, run_id, approver, notes, action_ids, created_at FROM approvals`
	executionSelect = `SELECT id, action_id, approval_id, action_type, mode, status, target, external_id, details, error, error_class, executed_at FROM executions`
)

// Ping verifies the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, play string, params map[string]any) (*model.Run, error) {
	id := uuid.New().String()
	now := s.now().UTC()

	paramsJSON, err := marshalNullable(params)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal params")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, play, status, params, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, play, string(model.RunStatusRunning), paramsJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Play:      play,
		Status:    model.RunStatusRunning,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, analysis any, actions []model.Action) ([]model.Action, error) {
	analysisJSON, err := json.Marshal(analysis)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal analysis")
	}
	now := s.now().UTC()
	saved := assignActionIDs(runID, actions)

	rows := make([][]any, len(saved))
	for i, a := range saved {
		meta, err := marshalNullable(a.Metadata)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: marshal metadata for action %d", i)
		}
		rows[i] = []any{
			a.ID, runID, i, string(a.Type), a.Title, a.Description, string(a.Priority),
			a.ImpactScore, a.Reasoning, meta, string(a.Status), now, now,
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin complete run")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE runs SET status = $1, analysis = $2, updated_at = $3 WHERE id = $4`,
		string(model.RunStatusComplete), analysisJSON, now, runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if _, err := db.CopyFrom(ctx, tx, "actions", actionColumns, rows); err != nil {
		return nil, eris.Wrapf(err, "postgres: insert actions for run %s", runID)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit complete run")
	}
	return saved, nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), msg, s.now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPostgresRun(s.pool.QueryRow(ctx, runSelect+` WHERE id = $1`, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	actions, err := s.ListActions(ctx, ActionFilter{RunID: runID})
	if err != nil {
		return nil, err
	}
	r.Actions = actions
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := runSelect + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Play != "" {
		query += fmt.Sprintf(` AND play = $%d`, argIdx)
		args = append(args, filter.Play)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) ListActions(ctx context.Context, filter ActionFilter) ([]model.Action, error) {
	query := actionSelect + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.RunID != "" {
		query += fmt.Sprintf(` AND run_id = $%d`, argIdx)
		args = append(args, filter.RunID)
		argIdx++
	}
	if len(filter.IDs) > 0 {
		query += fmt.Sprintf(` AND id = ANY($%d)`, argIdx)
		args = append(args, filter.IDs)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC, run_id, position`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list actions")
	}
	defer rows.Close()

	var actions []model.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan action")
		}
		actions = append(actions, a)
	}
	return actions, eris.Wrap(rows.Err(), "postgres: list actions iterate")
}

func (s *PostgresStore) CreateApproval(ctx context.Context, runID, approver, notes string, actionIDs []string) (*model.Approval, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin approval")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var exists int
	if err := tx.QueryRow(ctx, `SELECT 1 FROM runs WHERE id = $1`, runID).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
		}
		return nil, eris.Wrapf(err, "postgres: load run %s", runID)
	}

	rows, err := tx.Query(ctx, `SELECT id, status FROM actions WHERE run_id = $1 ORDER BY position`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load actions for run %s", runID)
	}
	owned := map[string]model.ActionStatus{}
	var order []string
	for rows.Next() {
		var id string
		var status model.ActionStatus
		if err := rows.Scan(&id, &status); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan action id")
		}
		owned[id] = status
		order = append(order, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: load actions iterate")
	}

	ids, err := approvableIDs(runID, owned, order, actionIDs)
	if err != nil {
		return nil, err
	}

	ap := &model.Approval{
		ID:        uuid.New().String(),
		RunID:     runID,
		Approver:  approver,
		Notes:     notes,
		ActionIDs: ids,
		CreatedAt: s.now().UTC(),
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal action ids")
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO approvals (id, run_id, approver, notes, action_ids, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		ap.ID, runID, approver, notes, idsJSON, ap.CreatedAt,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: insert approval")
	}
	if _, err := tx.Exec(ctx,
		`UPDATE actions SET status = $1, updated_at = $2 WHERE run_id = $3 AND id = ANY($4) AND status <> $5`,
		string(model.ActionStatusApproved), ap.CreatedAt, runID, ids, string(model.ActionStatusExecuted),
	); err != nil {
		return nil, eris.Wrap(err, "postgres: mark actions approved")
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit approval")
	}
	return ap, nil
}

func (s *PostgresStore) GetApproval(ctx context.Context, approvalID string) (*model.Approval, error) {
	ap, err := scanApproval(s.pool.QueryRow(ctx, approvalSelect+` WHERE id = $1`, approvalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get approval %s", approvalID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get approval %s", approvalID)
	}
	return ap, nil
}

func (s *PostgresStore) ListApprovals(ctx context.Context, limit int) ([]model.Approval, error) {
	if limit <= 0 {
		limit = DefaultApprovalLimit
	}
	rows, err := s.pool.Query(ctx, approvalSelect+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list approvals")
	}
	defer rows.Close()

	var out []model.Approval
	for rows.Next() {
		ap, err := scanApproval(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan approval")
		}
		out = append(out, *ap)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list approvals iterate")
}

func (s *PostgresStore) RecordExecution(ctx context.Context, ex model.Execution) error {
	if ex.ID == "" {
		ex.ID = uuid.New().String()
	}
	if ex.ExecutedAt.IsZero() {
		ex.ExecutedAt = s.now().UTC()
	}
	details, err := marshalNullable(ex.Details)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal execution details")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin execution")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO executions (id, action_id, approval_id, action_type, mode, status, target, external_id, details, error, error_class, executed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		ex.ID, ex.ActionID, ex.ApprovalID, string(ex.ActionType), string(ex.Kind), string(ex.Status),
		ex.Target, ex.ExternalID, details, ex.Error, ex.ErrorClass, ex.ExecutedAt,
	); err != nil {
		return eris.Wrapf(err, "postgres: insert execution for action %s", ex.ActionID)
	}
	tag, err := tx.Exec(ctx,
		`UPDATE actions SET status = $1, updated_at = $2 WHERE id = $3`,
		string(model.ActionStatusAfter(ex)), ex.ExecutedAt, ex.ActionID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update action %s", ex.ActionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "action %s", ex.ActionID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit execution")
}

func (s *PostgresStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]model.Execution, error) {
	query := executionSelect + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ApprovalID != "" {
		query += fmt.Sprintf(` AND approval_id = $%d`, argIdx)
		args = append(args, filter.ApprovalID)
		argIdx++
	}
	if filter.ActionID != "" {
		query += fmt.Sprintf(` AND action_id = $%d`, argIdx)
		args = append(args, filter.ActionID)
		argIdx++
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` ORDER BY executed_at DESC LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list executions")
	}
	defer rows.Close()

	var out []model.Execution
	for rows.Next() {
		ex, err := scanExecution(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan execution")
		}
		out = append(out, ex)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list executions iterate")
}

func (s *PostgresStore) ImpactStats(ctx context.Context, since time.Time) (*model.ImpactStats, error) {
	stats := &model.ImpactStats{ByStatus: map[model.ActionStatus]model.StatusTotal{}}

	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM runs`).Scan(&stats.TotalRuns); err != nil {
		return nil, eris.Wrap(err, "postgres: count runs")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT status, count(*), COALESCE(sum(impact_score), 0) FROM actions GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: action totals")
	}
	for rows.Next() {
		var status model.ActionStatus
		var t model.StatusTotal
		if err := rows.Scan(&status, &t.Count, &t.Impact); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan action totals")
		}
		stats.ByStatus[status] = t
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: action totals iterate")
	}

	rows, err = s.pool.Query(ctx,
		`SELECT r.play, count(a.id), COALESCE(sum(a.impact_score), 0) AS impact
		 FROM actions a JOIN runs r ON r.id = a.run_id
		 GROUP BY r.play ORDER BY impact DESC, r.play`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: play totals")
	}
	for rows.Next() {
		var p model.PlayImpact
		if err := rows.Scan(&p.Play, &p.ActionCount, &p.TotalImpact); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan play totals")
		}
		stats.TopPlays = append(stats.TopPlays, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: play totals iterate")
	}

	rows, err = s.pool.Query(ctx, `SELECT created_at FROM runs WHERE created_at >= $1`, since.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent runs")
	}
	defer rows.Close()
	var starts []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, eris.Wrap(err, "postgres: scan recent run")
		}
		starts = append(starts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: recent runs iterate")
	}
	stats.RecentActivity = dailyRuns(starts, since, s.now())
	return stats, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPostgresRun(row scannable) (*model.Run, error) {
	var r model.Run
	var paramsJSON, analysisJSON []byte
	if err := row.Scan(&r.ID, &r.Play, &r.Status, &paramsJSON, &analysisJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &r.Params); err != nil {
			return nil, eris.Wrap(err, "unmarshal params")
		}
	}
	if len(analysisJSON) > 0 {
		r.Analysis = json.RawMessage(analysisJSON)
	}
	return &r, nil
}
