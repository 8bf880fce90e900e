package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/analytics-studio/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	play       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	params     TEXT,
	analysis   TEXT,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS actions (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position     INTEGER NOT NULL,
	type         TEXT NOT NULL,
	title        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	priority     TEXT NOT NULL,
	impact_score REAL NOT NULL DEFAULT 0,
	reasoning    TEXT NOT NULL DEFAULT '',
	metadata     TEXT,
	status       TEXT NOT NULL DEFAULT 'proposed',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS approvals (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	approver   TEXT NOT NULL,
	notes      TEXT NOT NULL DEFAULT '',
	action_ids TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS executions (
	id          TEXT PRIMARY KEY,
	action_id   TEXT NOT NULL REFERENCES actions(id) ON DELETE CASCADE,
	approval_id TEXT NOT NULL DEFAULT '',
	action_type TEXT NOT NULL,
	mode        TEXT NOT NULL,
	status      TEXT NOT NULL,
	target      TEXT NOT NULL DEFAULT '',
	external_id TEXT NOT NULL DEFAULT '',
	details     TEXT,
	error       TEXT NOT NULL DEFAULT '',
	error_class TEXT NOT NULL DEFAULT '',
	executed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_play ON runs(play);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_actions_run_id ON actions(run_id, position);
CREATE INDEX IF NOT EXISTS idx_actions_status ON actions(status);
CREATE INDEX IF NOT EXISTS idx_approvals_created_at ON approvals(created_at);
CREATE INDEX IF NOT EXISTS idx_executions_action_id ON executions(action_id);
CREATE INDEX IF NOT EXISTS idx_executions_approval_id ON executions(approval_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, play string, params map[string]any) (*model.Run, error) {
	id := uuid.New().String()
	now := s.now().UTC()

	paramsJSON, err := marshalNullable(params)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal params")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, play, status, params, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, play, string(model.RunStatusRunning), nullText(paramsJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, analysis any, actions []model.Action) ([]model.Action, error) {
	analysisJSON, err := json.Marshal(analysis)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal analysis")
	}
	now := s.now().UTC()
	saved := assignActionIDs(runID, actions)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin complete run")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, analysis = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusComplete), string(analysisJSON), now, runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	if err := checkRowsAffected(res, "run", runID); err != nil {
		return nil, err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO actions (`+strings.Join(actionColumns, ", ")+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare insert action")
	}
	defer stmt.Close() //nolint:errcheck

	for i, a := range saved {
		meta, err := marshalNullable(a.Metadata)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: marshal metadata for action %d", i)
		}
		if _, err := stmt.ExecContext(ctx,
			a.ID, runID, i, string(a.Type), a.Title, a.Description, string(a.Priority),
			a.ImpactScore, a.Reasoning, nullText(meta), string(a.Status), now, now,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert action %d for run %s", i, runID)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit complete run")
	}
	return saved, nil
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), msg, s.now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanSQLiteRun(s.db.QueryRowContext(ctx, runSelect+` WHERE id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}

	actions, err := s.ListActions(ctx, ActionFilter{RunID: runID})
	if err != nil {
		return nil, err
	}
	r.Actions = actions
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := runSelect + ` WHERE 1=1`
	var args []any

	if filter.Play != "" {
		query += ` AND play = ?`
		args = append(args, filter.Play)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) ListActions(ctx context.Context, filter ActionFilter) ([]model.Action, error) {
	query := actionSelect + ` WHERE 1=1`
	var args []any

	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if len(filter.IDs) > 0 {
		query += ` AND id IN (` + placeholders(len(filter.IDs)) + `)`
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, run_id, position`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list actions")
	}
	defer rows.Close() //nolint:errcheck

	var actions []model.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan action")
		}
		actions = append(actions, a)
	}
	return actions, eris.Wrap(rows.Err(), "sqlite: list actions iterate")
}

func (s *SQLiteStore) CreateApproval(ctx context.Context, runID, approver, notes string, actionIDs []string) (*model.Approval, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin approval")
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
		}
		return nil, eris.Wrapf(err, "sqlite: load run %s", runID)
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, status FROM actions WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load actions for run %s", runID)
	}
	owned := map[string]model.ActionStatus{}
	var order []string
	for rows.Next() {
		var id string
		var status model.ActionStatus
		if err := rows.Scan(&id, &status); err != nil {
			rows.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "sqlite: scan action id")
		}
		owned[id] = status
		order = append(order, id)
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: load actions iterate")
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
		return nil, eris.Wrap(err, "sqlite: marshal action ids")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO approvals (id, run_id, approver, notes, action_ids, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ap.ID, runID, approver, notes, string(idsJSON), ap.CreatedAt,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert approval")
	}

	args := []any{string(model.ActionStatusApproved), ap.CreatedAt, runID, string(model.ActionStatusExecuted)}
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE actions SET status = ?, updated_at = ? WHERE run_id = ? AND status <> ? AND id IN (`+placeholders(len(ids))+`)`,
		args...,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: mark actions approved")
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit approval")
	}
	return ap, nil
}

func (s *SQLiteStore) GetApproval(ctx context.Context, approvalID string) (*model.Approval, error) {
	ap, err := scanApproval(s.db.QueryRowContext(ctx, approvalSelect+` WHERE id = ?`, approvalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get approval %s", approvalID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get approval %s", approvalID)
	}
	return ap, nil
}

func (s *SQLiteStore) ListApprovals(ctx context.Context, limit int) ([]model.Approval, error) {
	if limit <= 0 {
		limit = DefaultApprovalLimit
	}
	rows, err := s.db.QueryContext(ctx, approvalSelect+` ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list approvals")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Approval
	for rows.Next() {
		ap, err := scanApproval(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan approval")
		}
		out = append(out, *ap)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list approvals iterate")
}

func (s *SQLiteStore) RecordExecution(ctx context.Context, ex model.Execution) error {
	if ex.ID == "" {
		ex.ID = uuid.New().String()
	}
	if ex.ExecutedAt.IsZero() {
		ex.ExecutedAt = s.now().UTC()
	}
	details, err := marshalNullable(ex.Details)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal execution details")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin execution")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE actions SET status = ?, updated_at = ? WHERE id = ?`,
		string(model.ActionStatusAfter(ex)), ex.ExecutedAt, ex.ActionID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update action %s", ex.ActionID)
	}
	if err := checkRowsAffected(res, "action", ex.ActionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO executions (id, action_id, approval_id, action_type, mode, status, target, external_id, details, error, error_class, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.ActionID, ex.ApprovalID, string(ex.ActionType), string(ex.Kind), string(ex.Status),
		ex.Target, ex.ExternalID, nullText(details), ex.Error, ex.ErrorClass, ex.ExecutedAt,
	); err != nil {
		return eris.Wrapf(err, "sqlite: insert execution for action %s", ex.ActionID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit execution")
}

func (s *SQLiteStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]model.Execution, error) {
	query := executionSelect + ` WHERE 1=1`
	var args []any
	if filter.ApprovalID != "" {
		query += ` AND approval_id = ?`
		args = append(args, filter.ApprovalID)
	}
	if filter.ActionID != "" {
		query += ` AND action_id = ?`
		args = append(args, filter.ActionID)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` ORDER BY executed_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list executions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Execution
	for rows.Next() {
		ex, err := scanExecution(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan execution")
		}
		out = append(out, ex)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list executions iterate")
}

func (s *SQLiteStore) ImpactStats(ctx context.Context, since time.Time) (*model.ImpactStats, error) {
	stats := &model.ImpactStats{ByStatus: map[model.ActionStatus]model.StatusTotal{}}

	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM runs`).Scan(&stats.TotalRuns); err != nil {
		return nil, eris.Wrap(err, "sqlite: count runs")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, count(*), COALESCE(sum(impact_score), 0) FROM actions GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: action totals")
	}
	for rows.Next() {
		var status model.ActionStatus
		var t model.StatusTotal
		if err := rows.Scan(&status, &t.Count, &t.Impact); err != nil {
			rows.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "sqlite: scan action totals")
		}
		stats.ByStatus[status] = t
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: action totals iterate")
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT r.play, count(a.id), COALESCE(sum(a.impact_score), 0) AS impact
		 FROM actions a JOIN runs r ON r.id = a.run_id
		 GROUP BY r.play ORDER BY impact DESC, r.play`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: play totals")
	}
	for rows.Next() {
		var p model.PlayImpact
		if err := rows.Scan(&p.Play, &p.ActionCount, &p.TotalImpact); err != nil {
			rows.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "sqlite: scan play totals")
		}
		stats.TopPlays = append(stats.TopPlays, p)
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: play totals iterate")
	}

	// Stored timestamps are driver-formatted text, so the window is applied here.
	rows, err = s.db.QueryContext(ctx, `SELECT created_at FROM runs`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent runs")
	}
	defer rows.Close() //nolint:errcheck
	var starts []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan recent run")
		}
		if !t.Before(since) {
			starts = append(starts, t)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: recent runs iterate")
	}
	stats.RecentActivity = dailyRuns(starts, since, s.now())
	return stats, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func scanSQLiteRun(row scannable) (*model.Run, error) {
	var r model.Run
	var paramsJSON, analysisJSON sql.NullString
	if err := row.Scan(&r.ID, &r.Play, &r.Status, &paramsJSON, &analysisJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if paramsJSON.Valid && paramsJSON.String != "" {
		if err := json.Unmarshal([]byte(paramsJSON.String), &r.Params); err != nil {
			return nil, eris.Wrap(err, "unmarshal params")
		}
	}
	if analysisJSON.Valid && analysisJSON.String != "" {
		r.Analysis = json.RawMessage(analysisJSON.String)
	}
	return &r, nil
}

// nullText binds JSON as TEXT, or NULL when absent.
func nullText(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
