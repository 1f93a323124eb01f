// internal/app/system/auth/auth.go
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/maishoras/maishoras/internal/app/system/apperr"
	"github.com/maishoras/maishoras/internal/app/system/respond"
	"go.uber.org/zap"
)

/*─────────────────────────────────────────────────────────────────────────────*
| Current-User helper                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionUser is what we resolve from the bearer token & inject into r.Context().
type SessionUser struct {
	ID    string
	Name  string
	Email string
	Role  string
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the user & “found?” flag.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	u, ok := r.Context().Value(currentUserKey).(*SessionUser)
	return u, ok && u != nil
}

// WithTestUser attaches u to the request context. Only tests should call it;
// production requests get their user from LoadUser.
func WithTestUser(r *http.Request, u *SessionUser) *http.Request {
	return withUser(r, u)
}

func withUser(r *http.Request, u *SessionUser) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

/*─────────────────────────────────────────────────────────────────────────────*
| Middleware                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

// UserFetcher loads the current state of a user on each request. It returns
// nil when the user no longer exists.
type UserFetcher interface {
	FetchUser(ctx context.Context, userID string) *SessionUser
}

// Manager wires token verification and user loading into chi middleware.
type Manager struct {
	tokens  *Tokens
	fetcher UserFetcher
	log     *zap.Logger
}

// NewManager builds a Manager. fetcher may be nil, in which case the token
// claims alone describe the user.
func NewManager(tokens *Tokens, fetcher UserFetcher, logger *zap.Logger) *Manager {
	return &Manager{tokens: tokens, fetcher: fetcher, log: logger}
}

// Tokens exposes the signer used by the login endpoint.
func (m *Manager) Tokens() *Tokens { return m.tokens }

// LoadUser injects the user into context when the request carries a valid
// bearer token. Requests without one pass through anonymously.
func (m *Manager) LoadUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.tokens.Parse(raw)
		if err != nil {
			m.log.Debug("rejected bearer token", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		u := claims.SessionUser()
		if m.fetcher != nil {
			u = m.fetcher.FetchUser(r.Context(), claims.Subject)
			if u == nil {
				next.ServeHTTP(w, r)
				return
			}
		}
		next.ServeHTTP(w, withUser(r, u))
	})
}

// RequireSignedIn ensures there is a user in context (set by LoadUser).
func (m *Manager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		respond.Error(w, m.log, apperr.Unauthorized("authentication required"))
	})
}

// RequireRole ensures there is a user with one of the allowed roles.
// Missing user → 401, wrong role → 403.
func (m *Manager) RequireRole(allowed ...string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		set[strings.ToLower(strings.TrimSpace(role))] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := CurrentUser(r)
			if !ok {
				respond.Error(w, m.log, apperr.Unauthorized("authentication required"))
				return
			}
			if _, has := set[strings.ToLower(u.Role)]; !has {
				respond.Error(w, m.log, apperr.Forbidden("your role cannot perform this action"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
