package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lysyi3m/crosspost/app/content"
	"github.com/lysyi3m/crosspost/app/queue"
)

const queueItemColumns = `id, content_ref, platform, priority, scheduled_for, status,
	retry_count, last_error, external_id, url, created_at, updated_at`

// Waiting items sort by priority rank, then due time, then creation.
const dueOrder = `ORDER BY CASE priority WHEN 'high' THEN 2 WHEN 'medium' THEN 1 ELSE 0 END DESC,
	COALESCE(scheduled_for, created_at) ASC, created_at ASC, id ASC`

type QueueRepository struct {
	db  *DB
	now func() time.Time
}

func NewQueueRepository(db *DB) *QueueRepository {
	return &QueueRepository{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueueItem(row rowScanner) (*queue.Item, error) {
	var (
		item         queue.Item
		priority     string
		status       string
		scheduledFor sql.NullString
		lastError    sql.NullString
		createdAt    string
		updatedAt    string
	)

	err := row.Scan(&item.ID, &item.ContentRef, &item.Platform, &priority, &scheduledFor, &status,
		&item.RetryCount, &lastError, &item.ExternalID, &item.URL, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	item.Priority = queue.Priority(priority)
	item.Status = queue.Status(status)

	if item.ScheduledFor, err = parseTimePtr(scheduledFor); err != nil {
		return nil, err
	}
	if item.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if item.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	if lastError.Valid && lastError.String != "" {
		var ie queue.ItemError
		if err := json.Unmarshal([]byte(lastError.String), &ie); err != nil {
			return nil, fmt.Errorf("failed to decode last_error: %w", err)
		}
		item.LastError = &ie
	}

	return &item, nil
}

func encodeItemError(e *queue.ItemError) (sql.NullString, error) {
	if e == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode last_error: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func (r *QueueRepository) InsertIfAbsent(ctx context.Context, item *queue.Item) (*queue.Item, bool, error) {
	lastError, err := encodeItemError(item.LastError)
	if err != nil {
		return nil, false, err
	}

	query := `INSERT INTO queue_items (` + queueItemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		item.ID, item.ContentRef, item.Platform, string(item.Priority), formatTimePtr(item.ScheduledFor),
		string(item.Status), item.RetryCount, lastError, item.ExternalID, item.URL,
		formatTime(item.CreatedAt), formatTime(item.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			existing, ferr := r.FindActive(ctx, item.ContentRef, item.Platform)
			if ferr != nil {
				return nil, false, ferr
			}
			if existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("failed to insert queue item: %w", err)
	}

	return item.Clone(), true, nil
}

func (r *QueueRepository) Get(ctx context.Context, id string) (*queue.Item, error) {
	query := `SELECT ` + queueItemColumns + ` FROM queue_items WHERE id = ?`

	item, err := scanQueueItem(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("queue item %s: %w", id, content.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}
	return item, nil
}

// Transition is a compare-and-swap: the update only lands while the row
// still has status from.
func (r *QueueRepository) Transition(ctx context.Context, id string, from queue.Status, mutate func(*queue.Item)) (*queue.Item, error) {
	cur, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := queue.ApplyTransition(cur, from, mutate, r.now())
	if err != nil {
		return nil, err
	}

	lastError, err := encodeItemError(next.LastError)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE queue_items
		SET status = ?, priority = ?, scheduled_for = ?, retry_count = ?, last_error = ?,
			external_id = ?, url = ?, updated_at = ?
		WHERE id = ? AND status = ?`

	res, err := r.db.ExecContext(ctx, query,
		string(next.Status), string(next.Priority), formatTimePtr(next.ScheduledFor), next.RetryCount,
		lastError, next.ExternalID, next.URL, formatTime(next.UpdatedAt),
		id, string(from))
	if err != nil {
		return nil, fmt.Errorf("failed to update queue item: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: item %s left %s", queue.ErrStatusConflict, id, from)
	}

	return next, nil
}

func (r *QueueRepository) Due(ctx context.Context, now time.Time, limit int) ([]*queue.Item, error) {
	query := `SELECT ` + queueItemColumns + ` FROM queue_items
		WHERE status IN (?, ?, ?) AND (scheduled_for IS NULL OR scheduled_for <= ?)
		` + dueOrder
	args := []any{
		string(queue.StatusQueued), string(queue.StatusScheduled), string(queue.StatusScheduledRetry),
		formatTime(now),
	}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	return r.query(ctx, query, args...)
}

func (r *QueueRepository) FindActive(ctx context.Context, ref, platform string) (*queue.Item, error) {
	query := `SELECT ` + queueItemColumns + ` FROM queue_items
		WHERE content_ref = ? AND platform = ? AND status IN (?, ?, ?, ?)
		LIMIT 1`

	args := []any{ref, platform}
	for _, s := range queue.ActiveStatuses {
		args = append(args, string(s))
	}

	item, err := scanQueueItem(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find active queue item: %w", err)
	}
	return item, nil
}

func (r *QueueRepository) Counts(ctx context.Context) (map[queue.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue items: %w", err)
	}
	defer rows.Close()

	counts := make(map[queue.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan queue count: %w", err)
		}
		counts[queue.Status(status)] = n
	}
	return counts, rows.Err()
}

func (r *QueueRepository) List(ctx context.Context, f queue.ListFilter) ([]*queue.Item, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Platform != "" {
		where = append(where, "platform = ?")
		args = append(args, f.Platform)
	}
	if f.ContentRef != "" {
		where = append(where, "content_ref = ?")
		args = append(args, f.ContentRef)
	}

	query := `SELECT ` + queueItemColumns + ` FROM queue_items`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	return r.query(ctx, query, args...)
}

func (r *QueueRepository) PurgeTerminal(ctx context.Context, before time.Time) (int, error) {
	query := `DELETE FROM queue_items WHERE status IN (?, ?, ?) AND updated_at < ?`

	args := make([]any, 0, len(queue.TerminalStatuses)+1)
	for _, s := range queue.TerminalStatuses {
		args = append(args, string(s))
	}
	args = append(args, formatTime(before))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to purge queue items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(n), nil
}

func (r *QueueRepository) query(ctx context.Context, query string, args ...any) ([]*queue.Item, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue items: %w", err)
	}
	defer rows.Close()

	var items []*queue.Item
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate queue items: %w", err)
	}
	return items, nil
}
