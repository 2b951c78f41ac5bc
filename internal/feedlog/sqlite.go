package feedlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// SQLiteRepository stores readings in feed_messages and events in session_events.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on a migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts a reading and sets r.ID.
func (r *SQLiteRepository) Record(ctx context.Context, reading *Reading) error {
	if reading.ReceivedAt.IsZero() {
		reading.ReceivedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO feed_messages (topic, feed_id, payload, qos, retained, received_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		reading.Topic,
		reading.FeedID,
		reading.Payload,
		int64(reading.QoS),
		boolToInt(reading.Retained),
		reading.ReceivedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting feed message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading feed message id: %w", err)
	}
	reading.ID = id
	return nil
}

// List returns the most recent readings for one feed.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - feedID: Feed identifier as passed to the message callback
//   - limit: Maximum entries (<=0 means 50, capped at 500)
//
// Returns:
//   - []Reading: Newest first (may be empty)
//   - error: ErrFeedIDRequired or the underlying query error
func (r *SQLiteRepository) List(ctx context.Context, feedID string, limit int) ([]Reading, error) {
	if feedID == "" {
		return nil, ErrFeedIDRequired
	}
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, topic, feed_id, payload, qos, retained, received_at
		 FROM feed_messages
		 WHERE feed_id = ?
		 ORDER BY received_at DESC, id DESC
		 LIMIT ?`,
		feedID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying feed messages: %w", err)
	}
	return scanReadings(rows, limit)
}

// Recent returns the most recent readings across all feeds.
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]Reading, error) {
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, topic, feed_id, payload, qos, retained, received_at
		 FROM feed_messages
		 ORDER BY received_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying feed messages: %w", err)
	}
	return scanReadings(rows, limit)
}

func scanReadings(rows *sql.Rows, limit int) ([]Reading, error) {
	defer rows.Close()

	readings := make([]Reading, 0, limit)
	for rows.Next() {
		var (
			reading  Reading
			qos      int64
			retained int64
			received int64
		)
		if err := rows.Scan(&reading.ID, &reading.Topic, &reading.FeedID, &reading.Payload,
			&qos, &retained, &received); err != nil {
			return nil, fmt.Errorf("scanning feed message: %w", err)
		}
		reading.QoS = byte(qos) //nolint:gosec // stored from a byte
		reading.Retained = retained != 0
		reading.ReceivedAt = time.UnixMilli(received).UTC()
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating feed messages: %w", err)
	}
	return readings, nil
}

// Prune deletes readings and events older than now-olderThan.
//
// Returns:
//   - int64: Number of feed_messages rows deleted
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).UnixMilli()

	result, err := r.db.ExecContext(ctx, "DELETE FROM feed_messages WHERE received_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting feed messages: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, "DELETE FROM session_events WHERE occurred_at < ?", cutoff); err != nil {
		return deleted, fmt.Errorf("deleting session events: %w", err)
	}
	return deleted, nil
}

// RecordEvent inserts a session event and sets e.ID.
func (r *SQLiteRepository) RecordEvent(ctx context.Context, e *Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO session_events (kind, topic, detail, occurred_at) VALUES (?, ?, ?, ?)`,
		e.Kind, nullableString(e.Topic), nullableString(e.Detail), e.OccurredAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting session event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading session event id: %w", err)
	}
	e.ID = id
	return nil
}

// Events returns the most recent session events, newest first.
func (r *SQLiteRepository) Events(ctx context.Context, limit int) ([]Event, error) {
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, topic, detail, occurred_at
		 FROM session_events
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying session events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			e        Event
			topic    sql.NullString
			detail   sql.NullString
			occurred int64
		)
		if err := rows.Scan(&e.ID, &e.Kind, &topic, &detail, &occurred); err != nil {
			return nil, fmt.Errorf("scanning session event: %w", err)
		}
		e.Topic = topic.String
		e.Detail = detail.String
		e.OccurredAt = time.UnixMilli(occurred).UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session events: %w", err)
	}
	return events, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// nullableString returns nil for empty strings so nullable TEXT columns stay NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
