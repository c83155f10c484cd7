package models

import "time"

// User represents an account stored in the users table. The failed-attempt
// counter and lock_until instant live on the row so lockout state survives
// process restarts.
type User struct {
	ID             string     `db:"id" json:"id"`
	Username       string     `db:"username" json:"username"`
	PasswordHash   string     `db:"password_hash" json:"-"`
	Role           string     `db:"role" json:"role"`
	Active         bool       `db:"active" json:"active"`
	FailedAttempts int        `db:"failed_attempts" json:"-"`
	LockUntil      *time.Time `db:"lock_until" json:"-"`
	LastLogin      *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Locked reports whether the account is under an active lockout at now.
// An elapsed lock_until no longer blocks logins, but the failed-attempt
// counter is only reset by a successful login.
func (u *User) Locked(now time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(now)
}
