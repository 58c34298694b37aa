package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lysyi3m/crosspost/app/content"
)

// ContentRepository stores canonical content as JSON documents keyed by ref.
type ContentRepository struct {
	db  *DB
	now func() time.Time
}

func NewContentRepository(db *DB) *ContentRepository {
	return &ContentRepository{db: db, now: time.Now}
}

func (r *ContentRepository) Put(ctx context.Context, ref string, c content.Universal) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode content: %w", err)
	}

	query := `
		INSERT INTO contents (ref, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(ref) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`

	if _, err := r.db.ExecContext(ctx, query, ref, string(payload), formatTime(r.now())); err != nil {
		return fmt.Errorf("failed to store content: %w", err)
	}
	return nil
}

func (r *ContentRepository) Get(ctx context.Context, ref string) (content.Universal, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM contents WHERE ref = ?`, ref).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return content.Universal{}, fmt.Errorf("content %s: %w", ref, content.ErrNotFound)
		}
		return content.Universal{}, fmt.Errorf("failed to get content: %w", err)
	}

	var c content.Universal
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return content.Universal{}, fmt.Errorf("failed to decode content %s: %w", ref, err)
	}
	return c, nil
}
