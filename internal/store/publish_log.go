package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chronicle/docsync/internal/util"
)

// PublishLog records the outcome of every publish request.
type PublishLog struct {
	q queryer
}

func NewPublishLog(db *sql.DB) *PublishLog {
	return &PublishLog{q: db}
}

func (l *PublishLog) Record(ctx context.Context, event PublishEvent) (PublishEvent, error) {
	if event.ID == "" {
		event.ID = util.NewID("pub")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := l.q.ExecContext(ctx, `
		INSERT INTO publish_events (id, session_id, document_id, locale, outcome, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.ID, event.SessionID, event.DocumentID, event.Locale, event.Outcome, event.Detail, event.CreatedAt)
	if err != nil {
		return PublishEvent{}, fmt.Errorf("record publish event: %w", err)
	}
	return event, nil
}

// List returns the most recent events of a document in locale, newest first.
func (l *PublishLog) List(ctx context.Context, documentID, locale string, limit int) ([]PublishEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.q.QueryContext(ctx, `
		SELECT id, session_id, document_id, locale, outcome, detail, created_at
		FROM publish_events
		WHERE document_id=$1 AND locale=$2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, documentID, locale, limit)
	if err != nil {
		return nil, fmt.Errorf("list publish events: %w", err)
	}
	defer rows.Close()

	var events []PublishEvent
	for rows.Next() {
		var event PublishEvent
		if err := rows.Scan(&event.ID, &event.SessionID, &event.DocumentID, &event.Locale,
			&event.Outcome, &event.Detail, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan publish event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
