package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/scuolanet/auth-api/internal/models"
)

// TokenRepository is the refresh-token ledger adapter. The jti column has a
// unique index; it is the lookup key for every ledger operation.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository creates a new instance of TokenRepository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Insert persists a new ledger entry.
func (r *TokenRepository) Insert(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_tokens (id, user_id, jti, token_hash, expires_at, created_at, revoked_at) VALUES (:id, :user_id, :jti, :token_hash, :expires_at, :created_at, :revoked_at)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// FindLive returns the entry for jti+owner, filtering revocation and expiry
// in the database rather than trusting the caller's clock.
func (r *TokenRepository) FindLive(ctx context.Context, jti, userID string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, jti, token_hash, expires_at, created_at, revoked_at FROM refresh_tokens WHERE jti = $1 AND user_id = $2 AND revoked_at IS NULL AND expires_at > NOW() LIMIT 1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, jti, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find live refresh token: %w", err)
	}
	return &rt, nil
}

// Revoke marks the entry revoked and reports whether this call was the one
// that revoked it. The revoked_at IS NULL guard serializes concurrent
// rotations of the same token: the loser sees zero rows affected.
func (r *TokenRepository) Revoke(ctx context.Context, jti string, revokedAt time.Time) (bool, error) {
	const query = `UPDATE refresh_tokens SET revoked_at = $2 WHERE jti = $1 AND revoked_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, jti, revokedAt)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return affected > 0, nil
}

// RevokeAllForUser revokes every live entry for an owner. Used when a
// fingerprint mismatch signals a stolen token.
func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, userID, revokedAt); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

// DeleteExpired prunes entries whose expiry passed before the given cutoff.
// Retention policy lives with the caller; normal flows never delete rows.
func (r *TokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return affected, nil
}
