package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/uulichen-sketch/PhotoMind/internal/models"
)

// Postgres is the TaskStore backed by pgxpool. Field merge and event append
// happen in one transaction so readers never observe a partial update.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a pooled connection to Postgres.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Ping verifies the connection for health checks.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Create(ctx context.Context, task models.Task) (models.Task, error) {
	if task.Status == "" {
		task.Status = models.StatusPending
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	filesJSON, err := json.Marshal(task.Files)
	if err != nil {
		return models.Task{}, fmt.Errorf("marshal files: %w", err)
	}

	tag, err := p.pool.Exec(ctx, `
		INSERT INTO tasks (id, kind, status, total, processed, failed, files, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, 0, $5, $6, $6)
		ON CONFLICT (id) DO NOTHING
	`, task.ID, task.Kind, task.Status, task.Total, filesJSON, now)
	if err != nil {
		return models.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.Task{}, ErrTaskExists
	}
	return task, nil
}

func (p *Postgres) Get(ctx context.Context, id string) (models.Task, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT t.id, t.kind, t.status, t.total, t.processed, t.failed, t.current_file,
		       t.files, t.error, t.created_at, t.updated_at, t.completed_at,
		       (SELECT COUNT(*) FROM task_events e WHERE e.task_id = t.id)
		FROM tasks t WHERE t.id = $1
	`, id)
	return scanTask(row)
}

func (p *Postgres) Events(ctx context.Context, id string, from int) ([]models.Event, error) {
	if _, err := p.Get(ctx, id); err != nil {
		return nil, err
	}
	if from < 0 {
		from = 0
	}

	rows, err := p.pool.Query(ctx, `
		SELECT seq, type, data, ts FROM task_events
		WHERE task_id = $1 AND seq >= $2
		ORDER BY seq
	`, id, from)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var ev models.Event
		var typ string
		if err := rows.Scan(&ev.Seq, &typ, &ev.Data, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = models.EventType(typ)
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (p *Postgres) Update(ctx context.Context, id string, upd TaskUpdate, draft *EventDraft) (*models.Event, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	set := "updated_at = NOW()"
	args := []any{id}
	add := func(col string, val any) {
		args = append(args, val)
		set += fmt.Sprintf(", %s = $%d", col, len(args))
	}
	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.Processed != nil {
		add("processed", *upd.Processed)
	}
	if upd.Failed != nil {
		add("failed", *upd.Failed)
	}
	if upd.CurrentFile != nil {
		add("current_file", *upd.CurrentFile)
	} else if upd.ClearCurrent {
		set += ", current_file = NULL"
	}
	if upd.Error != nil {
		add("error", *upd.Error)
	}

	tag, err := tx.Exec(ctx, fmt.Sprintf("UPDATE tasks SET %s WHERE id = $1", set), args...)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrTaskNotFound
	}

	var appended *models.Event
	if draft != nil {
		ev, err := models.NewEvent(draft.Type, draft.Data)
		if err != nil {
			return nil, err
		}
		if err := tx.QueryRow(ctx, `
			INSERT INTO task_events (task_id, seq, type, data, ts)
			SELECT $1, COALESCE(MAX(seq) + 1, 0), $2, $3, $4 FROM task_events WHERE task_id = $1
			RETURNING seq
		`, id, string(ev.Type), ev.Data, ev.Timestamp).Scan(&ev.Seq); err != nil {
			return nil, fmt.Errorf("append event: %w", err)
		}
		appended = &ev
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return appended, nil
}

func (p *Postgres) Complete(ctx context.Context, id string, success bool, errMsg string) error {
	status := models.StatusCompleted
	if !success {
		status = models.StatusFailed
	}
	tag, err := p.pool.Exec(ctx, `
		UPDATE tasks
		SET status = $2, error = NULLIF($3, ''), current_file = NULL,
		    updated_at = NOW(), completed_at = NOW()
		WHERE id = $1
	`, id, status, errMsg)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (p *Postgres) ListRecent(ctx context.Context, limit int) ([]models.Task, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT t.id, t.kind, t.status, t.total, t.processed, t.failed, t.current_file,
		       t.files, t.error, t.created_at, t.updated_at, t.completed_at,
		       (SELECT COUNT(*) FROM task_events e WHERE e.task_id = t.id)
		FROM tasks t ORDER BY t.updated_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (p *Postgres) RecoverOrphans(ctx context.Context) (int, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE tasks
		SET status = $1, error = $2, current_file = NULL,
		    updated_at = NOW(), completed_at = NOW()
		WHERE status NOT IN ($3, $4)
	`, models.StatusFailed, orphanError, models.StatusCompleted, models.StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("recover orphans: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (p *Postgres) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM tasks
		WHERE status IN ($1, $2) AND updated_at < $3
	`, models.StatusCompleted, models.StatusFailed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanTask(row pgx.Row) (models.Task, error) {
	var task models.Task
	var currentFile, taskErr pgtype.Text
	var filesJSON []byte
	var completedAt pgtype.Timestamptz

	if err := row.Scan(&task.ID, &task.Kind, &task.Status, &task.Total, &task.Processed,
		&task.Failed, &currentFile, &filesJSON, &taskErr, &task.CreatedAt, &task.UpdatedAt,
		&completedAt, &task.EventCount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Task{}, ErrTaskNotFound
		}
		return models.Task{}, fmt.Errorf("scan task: %w", err)
	}

	if len(filesJSON) > 0 {
		if err := json.Unmarshal(filesJSON, &task.Files); err != nil {
			return models.Task{}, fmt.Errorf("unmarshal files: %w", err)
		}
	}
	task.CurrentFile = textPtr(currentFile)
	task.Error = textPtr(taskErr)
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}
	return task, nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}
