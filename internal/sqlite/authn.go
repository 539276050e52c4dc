package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// AuthStore implements store.AuthStore against the owner, session_cookies,
// and recovery_attempts tables.
type AuthStore struct {
	db *DB
}

func NewAuthStore(db *DB) *AuthStore {
	return &AuthStore{db: db}
}

func (s *AuthStore) GetOwner(ctx context.Context) (*store.OwnerData, error) {
	var o store.OwnerData
	var codesJSON string
	err := s.db.QueryRowContext(ctx, `SELECT user_id, totp_secret, backup_codes, recovery_token, created_at FROM owner LIMIT 1`).
		Scan(&o.UserID, &o.TOTPSecret, &codesJSON, &o.RecoveryToken, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	_ = json.Unmarshal([]byte(codesJSON), &o.BackupCodes)
	return &o, nil
}

// ClaimOwner inserts the owner row. Fails on conflict since at most one
// owner may ever be claimed for this instance.
func (s *AuthStore) ClaimOwner(ctx context.Context, o *store.OwnerData) error {
	var existing int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM owner`).Scan(&existing); err != nil {
		return err
	}
	if existing > 0 {
		return fmt.Errorf("owner already claimed")
	}
	codes, err := json.Marshal(o.BackupCodes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO owner (user_id, totp_secret, backup_codes, recovery_token, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, o.UserID, o.TOTPSecret, string(codes), o.RecoveryToken, o.CreatedAt)
	return err
}

func (s *AuthStore) UpdateOwner(ctx context.Context, o *store.OwnerData) error {
	codes, err := json.Marshal(o.BackupCodes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE owner SET totp_secret=?, backup_codes=?, recovery_token=? WHERE user_id=?
	`, o.TOTPSecret, string(codes), o.RecoveryToken, o.UserID)
	return err
}

func (s *AuthStore) CreateSession(ctx context.Context, sc *store.SessionCookieData) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_cookies (token_hash, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)
	`, sc.TokenHash, sc.UserID, sc.CreatedAt, sc.ExpiresAt)
	return err
}

func (s *AuthStore) GetSession(ctx context.Context, tokenHash string) (*store.SessionCookieData, error) {
	var sc store.SessionCookieData
	err := s.db.QueryRowContext(ctx, `SELECT token_hash, user_id, created_at, expires_at FROM session_cookies WHERE token_hash = ?`, tokenHash).
		Scan(&sc.TokenHash, &sc.UserID, &sc.CreatedAt, &sc.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session not found")
		}
		return nil, err
	}
	return &sc, nil
}

func (s *AuthStore) DeleteSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_cookies WHERE token_hash = ?`, tokenHash)
	return err
}

func (s *AuthStore) GetRecoveryAttempt(ctx context.Context, clientIP string) (*store.RecoveryAttemptData, error) {
	var r store.RecoveryAttemptData
	err := s.db.QueryRowContext(ctx, `SELECT client_ip, failures, last_attempt, blocked_until, perma_blocked FROM recovery_attempts WHERE client_ip = ?`, clientIP).
		Scan(&r.ClientIP, &r.Failures, &r.LastAttempt, &r.BlockedUntil, &r.PermaBlocked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &store.RecoveryAttemptData{ClientIP: clientIP}, nil
		}
		return nil, err
	}
	return &r, nil
}

// RecordRecoveryFailure increments failures and applies exponential backoff:
// blockedUntil = now + 1min * 2^(floor(failures/3)-1) once failures >= 3,
// permanently blocked after 10 failures.
func (s *AuthStore) RecordRecoveryFailure(ctx context.Context, clientIP string, now int64) error {
	cur, err := s.GetRecoveryAttempt(ctx, clientIP)
	if err != nil {
		return err
	}
	failures := cur.Failures + 1

	var blockedUntil int64
	permaBlocked := cur.PermaBlocked
	if failures >= 10 {
		permaBlocked = true
	} else if failures >= 3 {
		shift := failures/3 - 1
		backoffMs := int64(60_000) << uint(shift)
		blockedUntil = now + backoffMs
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO recovery_attempts (client_ip, failures, last_attempt, blocked_until, perma_blocked)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(client_ip) DO UPDATE SET failures=excluded.failures, last_attempt=excluded.last_attempt,
			blocked_until=excluded.blocked_until, perma_blocked=excluded.perma_blocked
	`, clientIP, failures, now, blockedUntil, permaBlocked)
	return err
}

func (s *AuthStore) ResetRecoveryAttempt(ctx context.Context, clientIP string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM recovery_attempts WHERE client_ip = ?`, clientIP)
	return err
}
