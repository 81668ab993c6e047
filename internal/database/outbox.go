package database

import (
	"context"
	"time"

	"storagebooking/internal/errs"
	"storagebooking/internal/models"
)

const outboxColumns = `id, task_type, aggregate_id, payload, status, retry_count, last_error,
	created_at, processed_at, next_retry_at`

func (q queries) CreateOutboxTask(ctx context.Context, task *models.OutboxTask) error {
	query := `INSERT INTO outbox (task_type, aggregate_id, payload, status, retry_count, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if task.Status == "" {
		task.Status = models.OutboxPending
	}
	now := q.now()
	result, err := q.q.ExecContext(ctx, query,
		task.TaskType,
		task.AggregateID,
		task.Payload,
		task.Status,
		task.RetryCount,
		task.LastError,
		now,
		utcPtr(task.NextRetryAt),
	)
	if err != nil {
		return classify(err, "failed to create outbox task")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return classify(err, "failed to get last insert id")
	}
	task.ID = id
	task.CreatedAt = now
	return nil
}

func (q queries) listOutbox(ctx context.Context, msg, where string, args ...any) ([]models.OutboxTask, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+outboxColumns+` FROM outbox WHERE `+where, args...)
	if err != nil {
		return nil, classify(err, msg)
	}
	defer rows.Close()

	var tasks []models.OutboxTask
	for rows.Next() {
		var t models.OutboxTask
		err := rows.Scan(
			&t.ID, &t.TaskType, &t.AggregateID, &t.Payload, &t.Status, &t.RetryCount, &t.LastError,
			&t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt,
		)
		if err != nil {
			return nil, classify(err, "failed to scan outbox task")
		}
		tasks = append(tasks, t)
	}
	return tasks, classify(rows.Err(), msg)
}

// GetPendingOutboxTasks returns due pending/retry tasks, oldest first.
func (q queries) GetPendingOutboxTasks(ctx context.Context, limit int) ([]models.OutboxTask, error) {
	return q.listOutbox(ctx, "failed to get pending outbox tasks",
		`status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?) ORDER BY created_at ASC, id ASC LIMIT ?`,
		models.OutboxPending, models.OutboxRetry, q.now(), limit)
}

func (q queries) GetFailedOutboxTasks(ctx context.Context) ([]models.OutboxTask, error) {
	return q.listOutbox(ctx, "failed to get failed outbox tasks",
		`status = ? ORDER BY created_at DESC, id DESC`, models.OutboxFailed)
}

func (q queries) GetOutboxTask(ctx context.Context, id int64) (*models.OutboxTask, error) {
	tasks, err := q.listOutbox(ctx, "failed to get outbox task", `id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, errs.NotFoundf("outbox task %d not found", id)
	}
	return &tasks[0], nil
}

func (q queries) UpdateOutboxTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}
	now := q.now()
	lastErr := nullString(errMsg)

	switch status {
	case models.OutboxRetry:
		query = `UPDATE outbox SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{status, lastErr, utcPtr(nextRetryAt), id}
	case models.OutboxCompleted, models.OutboxFailed:
		query = `UPDATE outbox SET status = ?, last_error = ?, next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []interface{}{status, lastErr, utcPtr(nextRetryAt), now, id}
	default:
		query = `UPDATE outbox SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []interface{}{status, lastErr, utcPtr(nextRetryAt), id}
	}

	if _, err := q.q.ExecContext(ctx, query, args...); err != nil {
		return classify(err, "failed to update outbox task status")
	}
	return nil
}
