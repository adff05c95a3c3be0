package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
)

// TokenManager signs and verifies session tokens. A token binds the GUI that
// opened a session to the frame and close endpoints, so a second client on
// the network cannot drive someone else's roll call.
type TokenManager struct {
	secret []byte
}

// NewTokenManager creates a token manager. An empty secret gets a random
// per-process key, which invalidates tokens across restarts.
func NewTokenManager(secret string) *TokenManager {
	if secret == "" {
		buf := make([]byte, 32)
		_, _ = rand.Read(buf)
		secret = base64.URLEncoding.EncodeToString(buf)
	}
	return &TokenManager{secret: []byte(secret)}
}

// Issue returns a signed token for a session ID.
func (tm *TokenManager) Issue(sessionID string) string {
	return sessionID + "." + tm.sign(sessionID)
}

// Verify checks a token's signature and returns the session ID it was
// issued for.
func (tm *TokenManager) Verify(token string) (string, bool) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", false
	}
	if !hmac.Equal([]byte(parts[1]), []byte(tm.sign(parts[0]))) {
		return "", false
	}
	return parts[0], true
}

func (tm *TokenManager) sign(data string) string {
	h := hmac.New(sha256.New, tm.secret)
	h.Write([]byte(data))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

// TokenFromRequest extracts the session token from the Authorization header
// or the X-Session-Token header.
func TokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-Session-Token")
}

// RequireSession is middleware that only lets the token issued for the
// currently open session through. currentSession returns the open session's
// ID, empty when no session is open.
func RequireSession(tm *TokenManager, currentSession func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID, ok := tm.Verify(TokenFromRequest(r))
			if !ok {
				http.Error(w, `{"error": "missing or invalid session token"}`, http.StatusUnauthorized)
				return
			}

			current := currentSession()
			if current == "" || sessionID != current {
				http.Error(w, `{"error": "token does not match the open session"}`, http.StatusConflict)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
