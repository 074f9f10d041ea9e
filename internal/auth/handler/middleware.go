package handler

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	sessiondomain "stocktrack/backend/internal/session/domain"
	"stocktrack/backend/internal/security"
)

type contextKey string

const (
	ctxKeyUserID    contextKey = "auth.user_id"
	ctxKeySessionID contextKey = "auth.session_id"
	ctxKeyClientIP  contextKey = "auth.client_ip"
)

// SessionReader is the session store access the middleware needs.
type SessionReader interface {
	FindLiveByTokenID(ctx context.Context, tokenID string) (*sessiondomain.Session, error)
	Touch(ctx context.Context, id string) error
}

// TokenValidator validates the signed session token.
type TokenValidator interface {
	ValidateSession(tokenString string) (sessionID, userID string, err error)
}

// UserID returns the authenticated user id set by RequireSession.
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyUserID).(string)
	return v, ok
}

// SessionID returns the authenticated session id set by RequireSession.
func SessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeySessionID).(string)
	return v, ok
}

// ClientIP returns the request client IP stashed by WithClientIP, or
// "unknown". Shape matches audit.IPExtractor.
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyClientIP).(string); ok && v != "" {
		return v
	}
	return "unknown"
}

// WithClientIP stores the request's client IP in the context for audit
// logging, honoring X-Forwarded-For when present.
func WithClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), ctxKeyClientIP, extractClientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RequireSession authenticates the Bearer token: signature check, live-session
// lookup by fingerprint, constant-time full-hash compare, then an activity
// touch. A valid signature alone never authorizes a request — logout and
// takeover are enforced by the store lookup.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		sessionID, userID, err := h.validator.ValidateSession(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}
		sess, err := h.sessions.FindLiveByTokenID(r.Context(), security.TokenFingerprint(token))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "session lookup failed")
			return
		}
		if sess == nil || sess.ID != sessionID || sess.UserID != userID ||
			!sess.Live(time.Now().UTC()) || !security.TokenHashEqual(token, sess.TokenHash) {
			writeError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}
		if err := h.sessions.Touch(r.Context(), sess.ID); err != nil {
			writeError(w, http.StatusInternalServerError, "session touch failed")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeySessionID, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}
