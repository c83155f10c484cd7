package models

import "time"

// RefreshToken is the persisted ledger entry for one issued refresh token.
// Only the SHA-256 fingerprint of the signed token is stored, so a leaked
// ledger does not yield usable tokens. Rows are revoked, never deleted,
// during normal flows; pruning of long-expired rows is a maintenance task.
type RefreshToken struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	JTI       string     `db:"jti" json:"jti"`
	TokenHash string     `db:"token_hash" json:"-"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
}

// Live reports whether the entry can still authorize a refresh at now.
func (t *RefreshToken) Live(now time.Time) bool {
	return t.RevokedAt == nil && t.ExpiresAt.After(now)
}
