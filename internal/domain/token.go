package domain

import "time"

// RefreshToken is a rotating opaque refresh-token row (spec.md §3, §4.11).
// The wire representation the client holds is "<ID>::<Secret>"; only
// TokenHash (a salted hash of Secret) is persisted.
type RefreshToken struct {
	ID           string
	TokenHash    string
	UserID       string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	Revoked      bool
	RevokedAt    *time.Time
	ReplacedByID *string
	CreatedByIP  string
}

// IsExpired reports whether the token has passed its expiry.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IsValid reports whether the token may still be used to rotate or
// authenticate: not revoked and not expired.
func (t *RefreshToken) IsValid(now time.Time) bool {
	return !t.Revoked && !t.IsExpired(now)
}
