package database

import (
	"context"
	"fmt"
	"time"

	"smarterdog/internal/models"

	sq "github.com/Masterminds/squirrel"
)

const (
	SyncStatusPending   = "pending"
	SyncStatusRetry     = "retry"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

var syncTaskColumns = []string{
	"id", "task_type", "appointment_id", "payload", "status", "retry_count",
	"last_error", "created_at", "processed_at", "next_retry_at",
}

func (db *DB) CreateSyncTask(ctx context.Context, task *models.SyncTask) error {
	if task.Status == "" {
		task.Status = SyncStatusPending
	}
	now := time.Now().UTC()

	query, args, err := db.sb.Insert("sync_queue").
		Columns("task_type", "appointment_id", "payload", "status", "retry_count", "last_error", "created_at", "next_retry_at").
		Values(task.TaskType, task.AppointmentID, task.Payload, task.Status, task.RetryCount, task.LastError, now, utcPtr(task.NextRetryAt)).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build sync task insert: %w", err)
	}

	// RETURNING works on both SQLite 3.35+ and PostgreSQL; lib/pq has no LastInsertId
	if err := db.QueryRowContext(ctx, query, args...).Scan(&task.ID); err != nil {
		return fmt.Errorf("failed to create sync task: %w", err)
	}
	task.CreatedAt = now
	return nil
}

func (db *DB) GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error) {
	q := db.sb.Select(syncTaskColumns...).
		From("sync_queue").
		Where(sq.Eq{"status": []string{SyncStatusPending, SyncStatusRetry}}).
		Where(sq.Or{sq.Eq{"next_retry_at": nil}, sq.LtOrEq{"next_retry_at": time.Now().UTC()}}).
		OrderBy("created_at ASC", "id ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return db.querySyncTasks(ctx, q)
}

func (db *DB) GetFailedSyncTasks(ctx context.Context) ([]models.SyncTask, error) {
	return db.querySyncTasks(ctx, db.sb.Select(syncTaskColumns...).
		From("sync_queue").
		Where(sq.Eq{"status": SyncStatusFailed}).
		OrderBy("created_at DESC", "id DESC"))
}

func (db *DB) querySyncTasks(ctx context.Context, q sq.SelectBuilder) ([]models.SyncTask, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sync task query: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.SyncTask
	for rows.Next() {
		var t models.SyncTask
		err := rows.Scan(
			&t.ID, &t.TaskType, &t.AppointmentID, &t.Payload, &t.Status, &t.RetryCount, &t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (db *DB) UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var lastError *string
	if errMsg != "" {
		lastError = &errMsg
	}

	q := db.sb.Update("sync_queue").
		Set("status", status).
		Set("last_error", lastError).
		Set("next_retry_at", utcPtr(nextRetryAt)).
		Where(sq.Eq{"id": id})

	switch status {
	case SyncStatusRetry:
		q = q.Set("retry_count", sq.Expr("retry_count + 1"))
	case SyncStatusCompleted, SyncStatusFailed:
		q = q.Set("processed_at", time.Now().UTC())
	}

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build sync task update: %w", err)
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update sync task status: %w", err)
	}
	return nil
}

// SQLite compares timestamps as text, so everything is stored in UTC.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
