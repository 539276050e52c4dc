// Package http implements the owner/guest HTTP+SSE transport:
// setup/auth/recovery endpoints backed by internal/authn and
// internal/store.AuthStore, owner and friend chat endpoints that drive an
// agent.Loop, and the background-task/sub-agent listing endpoints. There is
// no WebSocket gateway here — the companion talks plain SSE.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/agent"
	"github.com/nextlevelbuilder/goclaw/internal/authn"
	"github.com/nextlevelbuilder/goclaw/internal/background"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/internal/subagents"
)

// sessionCookieName is the cookie the owner's browser carries after login
// ("tinyclaw_session").
const sessionCookieName = "tinyclaw_session"

const sessionTTL = 365 * 24 * time.Hour

// Server serves the HTTP contract for a single-owner instance.
type Server struct {
	cfg        *config.Config
	auth       store.AuthStore
	authn      *authn.Manager
	loop       *agent.Loop
	background *background.Runner
	subagents  *subagents.Manager
	events     *EventBroker

	loginLimiter *slidingLimiter

	httpServer *http.Server
	mux        *http.ServeMux
}

// Deps bundles everything Server needs. All fields are required except
// Background/Subagents, which are nil-safe (their endpoints return an
// empty list).
type Deps struct {
	Config     *config.Config
	Auth       store.AuthStore
	Authn      *authn.Manager
	Loop       *agent.Loop
	Background *background.Runner
	Subagents  *subagents.Manager
	// Events must be the same broker whose Dispatch method was wired as
	// the Loop's LoopConfig.OnEvent, so SSE streams see their run's events.
	Events *EventBroker
}

// New builds a Server and registers every route on a fresh mux.
func New(d Deps) *Server {
	s := &Server{
		cfg:        d.Config,
		auth:       d.Auth,
		authn:      d.Authn,
		loop:       d.Loop,
		background: d.Background,
		subagents:  d.Subagents,
		events:     d.Events,

		loginLimiter: newSlidingLimiter(5, time.Minute, 5*time.Minute),
	}
	s.mux = http.NewServeMux()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/auth/status", s.handleAuthStatus)

	s.mux.HandleFunc("POST /api/setup/bootstrap", s.handleSetupBootstrap)
	s.mux.HandleFunc("POST /api/setup/complete", s.handleSetupComplete)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	s.mux.HandleFunc("POST /api/recovery/validate-token", s.handleRecoveryValidateToken)
	s.mux.HandleFunc("POST /api/recovery/use-backup", s.handleRecoveryUseBackup)

	s.mux.HandleFunc("POST /api/owner/totp-setup", s.requireSession(s.handleOwnerTOTPSetup))
	s.mux.HandleFunc("POST /api/owner/totp-confirm", s.requireSession(s.handleOwnerTOTPConfirm))

	s.mux.HandleFunc("POST /api/chat", s.requireSession(s.handleOwnerChat))
	s.mux.HandleFunc("POST /api/chat/friend", s.handleFriendChat)

	s.mux.HandleFunc("GET /api/background-tasks", s.requireSession(s.handleBackgroundTasks))
	s.mux.HandleFunc("GET /api/sub-agents", s.requireSession(s.handleSubAgents))
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.securityHeaders(s.cors(s.mux)),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http: listening", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// securityHeaders applies the fixed header set required on every
// response.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// cors applies the configured origin allowlist; an empty list allows any
// origin (single-owner instances typically run behind their own reverse
// proxy, not a public CORS boundary).
func (s *Server) cors(next http.Handler) http.Handler {
	allowed := s.cfg.Gateway.AllowedOrigins
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if len(allowed) == 0 {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			} else {
				for _, a := range allowed {
					if a == origin {
						w.Header().Set("Access-Control-Allow-Origin", origin)
						break
					}
				}
			}
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// clientIP extracts the direct peer's address from RemoteAddr for
// rate-limit bucketing. X-Forwarded-For is not consulted, so requests
// arriving through a local reverse proxy all report a loopback address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return host
}

func isLoopback(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func readJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

// bearerToken extracts an Authorization: Bearer <token> header value.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(h, prefix) {
		return strings.TrimPrefix(h, prefix)
	}
	return ""
}
