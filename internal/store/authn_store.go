package store

import "context"

// OwnerData is the single claimed owner record for this instance. At most
// one row ever exists.
type OwnerData struct {
	UserID        string
	TOTPSecret    string // base32, at rest
	BackupCodes   []string // SHA-256 hex hashes
	RecoveryToken string   // SHA-256 hex hash
	CreatedAt     int64
}

// SessionCookieData binds a hashed session token to the owner.
type SessionCookieData struct {
	TokenHash string // SHA-256 hex of the cookie value
	UserID    string
	CreatedAt int64
	ExpiresAt int64
}

// RecoveryAttemptData tracks exponential-backoff / permanent-block state for
// the recovery endpoints, keyed by client IP.
type RecoveryAttemptData struct {
	ClientIP    string
	Failures    int
	LastAttempt int64
	BlockedUntil int64 // 0 = not blocked
	PermaBlocked bool
}

// AuthStore persists the owner claim, active session cookies, and recovery
// rate-limit state — see internal/authn for the first-factor
// proof-of-possession, TOTP, and backup-code issuance it backs.
type AuthStore interface {
	GetOwner(ctx context.Context) (*OwnerData, error)
	ClaimOwner(ctx context.Context, o *OwnerData) error
	UpdateOwner(ctx context.Context, o *OwnerData) error

	CreateSession(ctx context.Context, s *SessionCookieData) error
	GetSession(ctx context.Context, tokenHash string) (*SessionCookieData, error)
	DeleteSession(ctx context.Context, tokenHash string) error

	GetRecoveryAttempt(ctx context.Context, clientIP string) (*RecoveryAttemptData, error)
	RecordRecoveryFailure(ctx context.Context, clientIP string, now int64) error
	ResetRecoveryAttempt(ctx context.Context, clientIP string) error
}
