package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	perrors "github.com/p-blackswan/therapy-booking/internal/errors"
	"github.com/p-blackswan/therapy-booking/internal/partneraccess"
)

// ReplacePartnerAccesses replaces the user's snapshot with accesses, keeping
// their order, and returns the new snapshot version. Returns ErrNotFound
// when the user does not exist.
func (s *Store) ReplacePartnerAccesses(ctx context.Context, userID string, accesses []*partneraccess.PartnerAccess) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var version int64
	err = tx.QueryRowContext(ctx, `SELECT accesses_version FROM users WHERE id = ?`, userID).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("user %s: %w", userID, perrors.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read accesses version: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM partner_accesses WHERE user_id = ?`, userID); err != nil {
		return 0, fmt.Errorf("failed to clear partner accesses: %w", err)
	}

	insert := `
	INSERT INTO partner_accesses (
		user_id, position, id, partner_id, partner_name, partner_logo, access_code,
		feature_live_chat, feature_therapy,
		therapy_sessions_remaining, therapy_sessions_redeemed, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	position := 0
	for _, pa := range accesses {
		if pa == nil {
			continue
		}
		var partnerID, partnerName, partnerLogo sql.NullString
		if pa.Partner != nil {
			partnerID = sql.NullString{String: pa.Partner.ID, Valid: true}
			partnerName = sql.NullString{String: pa.Partner.Name, Valid: true}
			partnerLogo = sql.NullString{String: pa.Partner.Logo, Valid: true}
		}
		var createdAt sql.NullInt64
		if pa.CreatedAt != nil && !pa.CreatedAt.IsZero() {
			createdAt = sql.NullInt64{Int64: pa.CreatedAt.UnixMilli(), Valid: true}
		}

		_, err := tx.ExecContext(ctx, insert,
			userID, position, pa.ID, partnerID, partnerName, partnerLogo, pa.AccessCode,
			pa.FeatureLiveChat, pa.FeatureTherapy,
			pa.TherapySessionsRemaining, pa.TherapySessionsRedeemed, createdAt,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert partner access %d: %w", position, err)
		}
		position++
	}

	version++
	_, err = tx.ExecContext(ctx,
		`UPDATE users SET accesses_version = ?, updated_at = ? WHERE id = ?`,
		version, time.Now().UnixMilli(), userID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to bump accesses version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit partner accesses: %w", err)
	}

	s.logger.Debug().
		Str("user_id", userID).
		Int("count", position).
		Int64("version", version).
		Msg("partner accesses replaced")

	return version, nil
}

// ListPartnerAccesses returns the user's snapshot in stored order together
// with its version. Returns ErrNotFound when the user does not exist.
func (s *Store) ListPartnerAccesses(ctx context.Context, userID string) ([]*partneraccess.PartnerAccess, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var version int64
	err := s.db.QueryRowContext(ctx, `SELECT accesses_version FROM users WHERE id = ?`, userID).Scan(&version)
	if err == sql.ErrNoRows {
		return nil, 0, fmt.Errorf("user %s: %w", userID, perrors.ErrNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read accesses version: %w", err)
	}

	query := `
	SELECT id, partner_id, partner_name, partner_logo, access_code,
	       feature_live_chat, feature_therapy,
	       therapy_sessions_remaining, therapy_sessions_redeemed, created_at
	FROM partner_accesses
	WHERE user_id = ?
	ORDER BY position ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list partner accesses: %w", err)
	}
	defer rows.Close()

	accesses := []*partneraccess.PartnerAccess{}
	for rows.Next() {
		pa := &partneraccess.PartnerAccess{}
		var partnerID, partnerName, partnerLogo sql.NullString
		var createdAt sql.NullInt64

		err := rows.Scan(
			&pa.ID, &partnerID, &partnerName, &partnerLogo, &pa.AccessCode,
			&pa.FeatureLiveChat, &pa.FeatureTherapy,
			&pa.TherapySessionsRemaining, &pa.TherapySessionsRedeemed, &createdAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan partner access: %w", err)
		}

		if partnerName.Valid {
			pa.Partner = &partneraccess.Partner{
				ID:   partnerID.String,
				Name: partnerName.String,
				Logo: partnerLogo.String,
			}
		}
		if createdAt.Valid {
			created := time.UnixMilli(createdAt.Int64).UTC()
			pa.CreatedAt = &created
		}

		accesses = append(accesses, pa)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating partner accesses: %w", err)
	}

	return accesses, version, nil
}
