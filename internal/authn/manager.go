package authn

import (
	"sync"
	"time"
)

// bootstrapTTL is how long the process-start bootstrap secret remains
// valid before it must be regenerated.
const bootstrapTTL = time.Hour

// setupTokenTTL is how long a setup token survives between
// /api/setup/bootstrap and /api/setup/complete.
const setupTokenTTL = 15 * time.Minute

// recoverySessionTTL is how long a validated recovery token survives
// between /api/recovery/validate-token and /api/recovery/use-backup.
const recoverySessionTTL = 10 * time.Minute

// Manager holds the process-local, ephemeral authentication state that
// doesn't belong in the persistent store: the one-time bootstrap secret,
// in-flight setup tokens, and validated recovery sessions. All three are
// short-lived by design and are deliberately lost on restart.
type Manager struct {
	mu sync.Mutex

	bootstrapSecret   string
	bootstrapExpires  time.Time
	bootstrapConsumed bool

	setupTokens     map[string]setupState
	recoverySession map[string]recoveryState
}

type setupState struct {
	totpSecret string
	expires    time.Time
}

type recoveryState struct {
	expires time.Time
}

func NewManager() *Manager {
	m := &Manager{
		setupTokens:     make(map[string]setupState),
		recoverySession: make(map[string]recoveryState),
	}
	m.regenerateBootstrap()
	return m
}

func (m *Manager) regenerateBootstrap() {
	m.bootstrapSecret = NewBootstrapSecret()
	m.bootstrapExpires = time.Now().Add(bootstrapTTL)
	m.bootstrapConsumed = false
}

// BootstrapSecret returns the current bootstrap secret for display in
// process logs/terminal wizard output.
func (m *Manager) BootstrapSecret() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bootstrapSecret
}

// VerifyBootstrap checks candidate against the current bootstrap secret.
// On success it mints a setup token bound to a fresh TOTP secret and
// marks the bootstrap secret consumed (one-shot per process lifetime).
func (m *Manager) VerifyBootstrap(candidate string) (setupToken, totpSecret string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.bootstrapConsumed || time.Now().After(m.bootstrapExpires) {
		if time.Now().After(m.bootstrapExpires) {
			m.regenerateBootstrap()
		}
		return "", "", false
	}
	if !ConstantTimeEqual(candidate, HashToken(m.bootstrapSecret)) {
		return "", "", false
	}

	totpSecret = NewTOTPSecret()
	setupToken = randomToken(40)
	m.setupTokens[setupToken] = setupState{totpSecret: totpSecret, expires: time.Now().Add(setupTokenTTL)}
	m.bootstrapConsumed = true
	return setupToken, totpSecret, true
}

// ConsumeSetupToken validates and removes a setup token, returning the
// TOTP secret it was minted with.
func (m *Manager) ConsumeSetupToken(token string) (totpSecret string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, found := m.setupTokens[token]
	if !found || time.Now().After(st.expires) {
		delete(m.setupTokens, token)
		return "", false
	}
	delete(m.setupTokens, token)
	return st.totpSecret, true
}

// NewRecoverySession mints a recovery session id after a recovery token
// has been validated, bridging /api/recovery/validate-token and
// /api/recovery/use-backup.
func (m *Manager) NewRecoverySession() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := randomToken(40)
	m.recoverySession[id] = recoveryState{expires: time.Now().Add(recoverySessionTTL)}
	return id
}

// ConsumeRecoverySession validates and removes a recovery session id.
func (m *Manager) ConsumeRecoverySession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, found := m.recoverySession[id]
	if !found || time.Now().After(st.expires) {
		delete(m.recoverySession, id)
		return false
	}
	delete(m.recoverySession, id)
	return true
}
