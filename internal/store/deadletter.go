package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DeadLetter is an analytics event the collector did not accept.
type DeadLetter struct {
	ID          string
	EventName   string
	Payload     string // JSON-encoded event
	Error       string
	CreatedAt   int64
	RetryCount  int
	NextRetryAt int64 // 0 = give up
	ResolvedAt  int64 // 0 = unresolved
}

// SaveDeadLetter saves a dead letter
func (s *Store) SaveDeadLetter(ctx context.Context, dl *DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dl.CreatedAt == 0 {
		dl.CreatedAt = time.Now().UnixMilli()
	}

	query := `
	INSERT OR REPLACE INTO analytics_dead_letters (
		id, event_name, payload, error,
		created_at, retry_count, next_retry_at, resolved_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	nextRetry := sql.NullInt64{Int64: dl.NextRetryAt, Valid: dl.NextRetryAt != 0}
	resolved := sql.NullInt64{Int64: dl.ResolvedAt, Valid: dl.ResolvedAt != 0}

	_, err := s.db.ExecContext(ctx, query,
		dl.ID, dl.EventName, dl.Payload, dl.Error,
		dl.CreatedAt, dl.RetryCount, nextRetry, resolved,
	)

	if err != nil {
		return fmt.Errorf("failed to save dead letter: %w", err)
	}
	return nil
}

// ListRetryable returns unresolved dead letters whose retry time has come.
func (s *Store) ListRetryable(ctx context.Context, limit int) ([]*DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now().UnixMilli()
	query := `
	SELECT id, event_name, payload, error,
	       created_at, retry_count, next_retry_at, resolved_at
	FROM analytics_dead_letters
	WHERE next_retry_at <= ? AND resolved_at IS NULL
	ORDER BY next_retry_at ASC
	`

	args := []interface{}{now}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list retryable dead letters: %w", err)
	}
	defer rows.Close()

	var dls []*DeadLetter
	for rows.Next() {
		dl := &DeadLetter{}
		var nextRetry, resolved sql.NullInt64

		err := rows.Scan(
			&dl.ID, &dl.EventName, &dl.Payload, &dl.Error,
			&dl.CreatedAt, &dl.RetryCount, &nextRetry, &resolved,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}

		if nextRetry.Valid {
			dl.NextRetryAt = nextRetry.Int64
		}
		if resolved.Valid {
			dl.ResolvedAt = resolved.Int64
		}

		dls = append(dls, dl)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dead letters: %w", err)
	}

	return dls, nil
}

// IncrementRetry records a failed retry. nextRetryAt of 0 gives up on the
// event; it stays unresolved for retention to collect.
func (s *Store) IncrementRetry(ctx context.Context, id string, nextRetryAt int64, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
	UPDATE analytics_dead_letters
	SET retry_count = retry_count + 1, next_retry_at = ?, error = ?
	WHERE id = ?
	`

	nextRetry := sql.NullInt64{Int64: nextRetryAt, Valid: nextRetryAt != 0}
	result, err := s.db.ExecContext(ctx, query, nextRetry, lastErr, id)
	if err != nil {
		return fmt.Errorf("failed to increment retry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("dead letter not found: %s", id)
	}

	return nil
}

// ResolveDeadLetter marks a dead letter as delivered.
func (s *Store) ResolveDeadLetter(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `UPDATE analytics_dead_letters SET resolved_at = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to resolve dead letter: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("dead letter not found: %s", id)
	}

	return nil
}
