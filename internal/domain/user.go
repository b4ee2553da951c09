package domain

import "time"

const (
	UserStatusUnverified = "unverified"
	UserStatusActive     = "active"
)

// User is a registered account.
type User struct {
	ID             string
	Username       string
	Email          string
	PasswordHash   string
	NativeLanguage string
	RussianLevel   string
	Status         string
	RegisteredAt   time.Time
	VerifiedAt     *time.Time
}

// VerificationCode is the pending email confirmation for a user. At most one
// exists per user.
type VerificationCode struct {
	UserID    string
	Code      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the code is no longer valid at now.
func (v VerificationCode) Expired(now time.Time) bool {
	return now.After(v.ExpiresAt)
}
