package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lysyi3m/crosspost/app/content"
)

// PublicationRepository keeps the history of publish outcomes.
type PublicationRepository struct {
	db *DB
}

func NewPublicationRepository(db *DB) *PublicationRepository {
	return &PublicationRepository{db: db}
}

func (r *PublicationRepository) Record(ctx context.Context, p content.Publication) error {
	var pubErr sql.NullString
	if p.Error != nil {
		data, err := json.Marshal(p.Error)
		if err != nil {
			return fmt.Errorf("failed to encode publication error: %w", err)
		}
		pubErr = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO publications (item_id, content_ref, platform, status, external_id, url, score, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		p.ItemID, p.ContentRef, p.Platform, p.Status, p.ExternalID, p.URL, p.Score, pubErr,
		formatTime(p.RecordedAt))
	if err != nil {
		return fmt.Errorf("failed to record publication: %w", err)
	}
	return nil
}

// List returns the publications of ref, oldest first.
func (r *PublicationRepository) List(ctx context.Context, ref string) ([]content.Publication, error) {
	query := `
		SELECT item_id, content_ref, platform, status, external_id, url, score, error, recorded_at
		FROM publications WHERE content_ref = ? ORDER BY recorded_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to query publications: %w", err)
	}
	defer rows.Close()

	var pubs []content.Publication
	for rows.Next() {
		var (
			p          content.Publication
			pubErr     sql.NullString
			recordedAt string
		)
		if err := rows.Scan(&p.ItemID, &p.ContentRef, &p.Platform, &p.Status, &p.ExternalID, &p.URL,
			&p.Score, &pubErr, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan publication: %w", err)
		}
		if p.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, err
		}
		if pubErr.Valid && pubErr.String != "" {
			var pe content.PublishError
			if err := json.Unmarshal([]byte(pubErr.String), &pe); err != nil {
				return nil, fmt.Errorf("failed to decode publication error: %w", err)
			}
			p.Error = &pe
		}
		pubs = append(pubs, p)
	}
	return pubs, rows.Err()
}
