package http

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/authn"
	"github.com/nextlevelbuilder/goclaw/internal/bootstrap"
	"github.com/nextlevelbuilder/goclaw/internal/store"
)

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	owner, err := s.auth.GetOwner(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	resp := map[string]bool{
		"claimed":       owner != nil,
		"isOwner":       false,
		"setupRequired": owner == nil,
		"mfaConfigured": owner != nil && owner.TOTPSecret != "",
	}
	if sess := s.currentSession(r); sess != nil && owner != nil && sess.UserID == owner.UserID {
		resp["isOwner"] = true
	}
	writeJSON(w, http.StatusOK, resp)
}

type bootstrapRequest struct {
	Secret string `json:"secret"`
}

// handleSetupBootstrap implements POST /api/setup/bootstrap: trade the
// process-start bootstrap secret for a setup token and a fresh TOTP secret.
func (s *Server) handleSetupBootstrap(w http.ResponseWriter, r *http.Request) {
	var req bootstrapRequest
	if err := readJSON(r, &req); err != nil || req.Secret == "" {
		writeError(w, http.StatusBadRequest, "missing secret")
		return
	}
	setupToken, totpSecret, ok := s.authn.VerifyBootstrap(req.Secret)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid or expired bootstrap secret")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"setupToken": setupToken,
		"totpSecret": totpSecret,
		"totpUri":    authn.TOTPURI(totpSecret, "owner", "goclaw"),
	})
}

type setupCompleteRequest struct {
	SetupToken string `json:"setupToken"`
	TOTPCode   string `json:"totpCode"`
	UserID     string `json:"userId"`
}

// handleSetupComplete implements POST /api/setup/complete: consumes the
// setup token, confirms the TOTP code against the secret it was minted
// with, persists the owner record, seeds the owner's soul file, and
// returns the one-time backup codes and recovery token.
func (s *Server) handleSetupComplete(w http.ResponseWriter, r *http.Request) {
	var req setupCompleteRequest
	if err := readJSON(r, &req); err != nil || req.SetupToken == "" || req.TOTPCode == "" {
		writeError(w, http.StatusBadRequest, "missing setupToken or totpCode")
		return
	}
	totpSecret, ok := s.authn.ConsumeSetupToken(req.SetupToken)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid or expired setup token")
		return
	}
	if !authn.ValidateTOTP(totpSecret, req.TOTPCode, time.Now()) {
		writeError(w, http.StatusUnauthorized, "invalid TOTP code")
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = "owner"
	}
	backupCodes := authn.NewBackupCodes()
	hashed := make([]string, len(backupCodes))
	for i, c := range backupCodes {
		hashed[i] = authn.HashToken(c)
	}
	recoveryToken := authn.NewRecoveryToken()

	owner := &store.OwnerData{
		UserID:        userID,
		TOTPSecret:    totpSecret,
		BackupCodes:   hashed,
		RecoveryToken: authn.HashToken(recoveryToken),
		CreatedAt:     time.Now().UnixMilli(),
	}
	if err := s.auth.ClaimOwner(r.Context(), owner); err != nil {
		writeError(w, http.StatusConflict, "owner already claimed")
		return
	}

	workspace := s.cfg.Agents.Defaults.Workspace
	if workspace != "" {
		if _, err := bootstrap.EnsureWorkspaceFiles(workspace); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to seed workspace")
			return
		}
	}

	token, err := s.createSession(r, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	setSessionCookie(w, token)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"backupCodes":   backupCodes,
		"recoveryToken": recoveryToken,
	})
}

type loginRequest struct {
	TOTPCode string `json:"totpCode"`
}

// handleLogin implements POST /api/auth/login: TOTP-only second-factor
// login for an already-claimed owner.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !isLoopback(ip) && !s.loginLimiter.Allow(ip) {
		writeError(w, http.StatusTooManyRequests, "too many attempts")
		return
	}

	var req loginRequest
	if err := readJSON(r, &req); err != nil || req.TOTPCode == "" {
		writeError(w, http.StatusBadRequest, "missing totpCode")
		return
	}
	owner, err := s.auth.GetOwner(r.Context())
	if err != nil || owner == nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !authn.ValidateTOTP(owner.TOTPSecret, req.TOTPCode, time.Now()) {
		if !isLoopback(ip) {
			s.loginLimiter.Record(ip)
		}
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !isLoopback(ip) {
		s.loginLimiter.Reset(ip)
	}

	token, err := s.createSession(r, owner.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type recoveryValidateRequest struct {
	RecoveryToken string `json:"recoveryToken"`
}

// handleRecoveryValidateToken implements POST /api/recovery/validate-token.
func (s *Server) handleRecoveryValidateToken(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !isLoopback(ip) {
		blocked, err := s.recoveryBlocked(r, ip)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "storage error")
			return
		}
		if blocked {
			writeError(w, http.StatusTooManyRequests, "too many attempts")
			return
		}
	}

	var req recoveryValidateRequest
	if err := readJSON(r, &req); err != nil || req.RecoveryToken == "" {
		writeError(w, http.StatusBadRequest, "missing recoveryToken")
		return
	}
	owner, err := s.auth.GetOwner(r.Context())
	if err != nil || owner == nil || !authn.ConstantTimeEqual(req.RecoveryToken, owner.RecoveryToken) {
		if !isLoopback(ip) {
			_ = s.auth.RecordRecoveryFailure(r.Context(), ip, time.Now().UnixMilli())
		}
		writeError(w, http.StatusUnauthorized, "invalid recovery token")
		return
	}
	if !isLoopback(ip) {
		_ = s.auth.ResetRecoveryAttempt(r.Context(), ip)
	}

	sessionID := s.authn.NewRecoverySession()
	writeJSON(w, http.StatusOK, map[string]string{"recoverySessionId": sessionID})
}

type recoveryUseBackupRequest struct {
	RecoverySessionID string `json:"recoverySessionId"`
	BackupCode        string `json:"backupCode"`
}

// handleRecoveryUseBackup implements POST /api/recovery/use-backup: spends
// one backup code, then rotates every backup code and the recovery token
// so a leaked/used code can never be replayed.
func (s *Server) handleRecoveryUseBackup(w http.ResponseWriter, r *http.Request) {
	var req recoveryUseBackupRequest
	if err := readJSON(r, &req); err != nil || req.RecoverySessionID == "" || req.BackupCode == "" {
		writeError(w, http.StatusBadRequest, "missing recoverySessionId or backupCode")
		return
	}
	if !s.authn.ConsumeRecoverySession(req.RecoverySessionID) {
		writeError(w, http.StatusUnauthorized, "invalid or expired recovery session")
		return
	}
	owner, err := s.auth.GetOwner(r.Context())
	if err != nil || owner == nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	candidateHash := authn.HashToken(req.BackupCode)
	matched := -1
	for i, h := range owner.BackupCodes {
		if h == candidateHash {
			matched = i
			break
		}
	}
	if matched < 0 {
		writeError(w, http.StatusUnauthorized, "invalid backup code")
		return
	}

	newCodes := authn.NewBackupCodes()
	hashed := make([]string, len(newCodes))
	for i, c := range newCodes {
		hashed[i] = authn.HashToken(c)
	}
	newRecoveryToken := authn.NewRecoveryToken()
	owner.BackupCodes = hashed
	owner.RecoveryToken = authn.HashToken(newRecoveryToken)
	if err := s.auth.UpdateOwner(r.Context(), owner); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to rotate credentials")
		return
	}

	token, err := s.createSession(r, owner.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"backupCodes":   newCodes,
		"recoveryToken": newRecoveryToken,
	})
}

type totpConfirmRequest struct {
	TOTPCode string `json:"totpCode"`
}

func (s *Server) handleOwnerTOTPSetup(w http.ResponseWriter, r *http.Request, sess *store.SessionCookieData) {
	secret := authn.NewTOTPSecret()
	writeJSON(w, http.StatusOK, map[string]string{
		"totpSecret": secret,
		"totpUri":    authn.TOTPURI(secret, sess.UserID, "goclaw"),
	})
}

// handleOwnerTOTPConfirm implements POST /api/owner/totp-confirm: rotates
// backup codes and the recovery token alongside the TOTP secret, since any
// of the three leaking is as serious as the others leaking.
func (s *Server) handleOwnerTOTPConfirm(w http.ResponseWriter, r *http.Request, sess *store.SessionCookieData) {
	var req totpConfirmRequest
	if err := readJSON(r, &req); err != nil || req.TOTPCode == "" {
		writeError(w, http.StatusBadRequest, "missing totpCode")
		return
	}
	owner, err := s.auth.GetOwner(r.Context())
	if err != nil || owner == nil || owner.UserID != sess.UserID {
		writeError(w, http.StatusUnauthorized, "not the owner")
		return
	}
	if !authn.ValidateTOTP(owner.TOTPSecret, req.TOTPCode, time.Now()) {
		writeError(w, http.StatusUnauthorized, "invalid TOTP code")
		return
	}

	newCodes := authn.NewBackupCodes()
	hashed := make([]string, len(newCodes))
	for i, c := range newCodes {
		hashed[i] = authn.HashToken(c)
	}
	newRecoveryToken := authn.NewRecoveryToken()
	owner.BackupCodes = hashed
	owner.RecoveryToken = authn.HashToken(newRecoveryToken)
	if err := s.auth.UpdateOwner(r.Context(), owner); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to rotate credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"backupCodes":   newCodes,
		"recoveryToken": newRecoveryToken,
	})
}

// recoveryBlocked reports whether ip is currently locked out of recovery,
// per the exponential-backoff/permanent-block schedule.
func (s *Server) recoveryBlocked(r *http.Request, ip string) (bool, error) {
	att, err := s.auth.GetRecoveryAttempt(r.Context(), ip)
	if err != nil {
		return false, err
	}
	if att == nil {
		return false, nil
	}
	if att.PermaBlocked {
		return true, nil
	}
	if att.BlockedUntil > time.Now().UnixMilli() {
		return true, nil
	}
	return false, nil
}

// createSession mints a random session token, stores only its hash, and
// returns the raw token for the cookie.
func (s *Server) createSession(r *http.Request, userID string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)
	now := time.Now()
	err := s.auth.CreateSession(r.Context(), &store.SessionCookieData{
		TokenHash: authn.HashToken(token),
		UserID:    userID,
		CreatedAt: now.UnixMilli(),
		ExpiresAt: now.Add(sessionTTL).UnixMilli(),
	})
	return token, err
}

func setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})
}

// currentSession resolves the session cookie to its stored record by
// looking up the token's hash, rejecting expired sessions. Returns nil on
// any failure — callers
// treat that as "not authenticated".
func (s *Server) currentSession(r *http.Request) *store.SessionCookieData {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	sess, err := s.auth.GetSession(r.Context(), authn.HashToken(cookie.Value))
	if err != nil || sess == nil {
		return nil
	}
	if sess.ExpiresAt < time.Now().UnixMilli() {
		return nil
	}
	return sess
}

// requireSession wraps a handler that needs an authenticated owner
// session, rejecting the request with 401 otherwise.
func (s *Server) requireSession(next func(http.ResponseWriter, *http.Request, *store.SessionCookieData)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.currentSession(r)
		if sess == nil {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		next(w, r, sess)
	}
}
