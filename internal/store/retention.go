package store

import (
	"context"
	"fmt"
	"time"
)

const (
	resolvedDeadLetterRetention   = 7 * 24 * time.Hour
	unresolvedDeadLetterRetention = 30 * 24 * time.Hour
)

// RunRetention deletes resolved dead letters after a week and abandoned ones
// after a month. Returns the number of rows removed.
func (s *Store) RunRetention(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var removed int64

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM analytics_dead_letters WHERE resolved_at IS NOT NULL AND resolved_at < ?",
		now.Add(-resolvedDeadLetterRetention).UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete resolved dead letters: %w", err)
	}
	n, _ := res.RowsAffected()
	removed += n

	res, err = s.db.ExecContext(ctx,
		"DELETE FROM analytics_dead_letters WHERE resolved_at IS NULL AND created_at < ?",
		now.Add(-unresolvedDeadLetterRetention).UnixMilli(),
	)
	if err != nil {
		return removed, fmt.Errorf("failed to delete abandoned dead letters: %w", err)
	}
	n, _ = res.RowsAffected()
	removed += n

	if removed > 0 {
		s.logger.Info().Int64("removed", removed).Msg("retention removed dead letters")
	}
	return removed, nil
}
