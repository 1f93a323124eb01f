// internal/app/system/ratelimit/ratelimit.go
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/maishoras/maishoras/internal/app/system/apperr"
)

// sweepAt is the number of tracked keys that triggers dropping expired
// windows on the next Allow.
const sweepAt = 10000

// Limiter counts requests per key in fixed windows. It is safe for
// concurrent use.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	limit    int
	duration time.Duration
	now      func() time.Time
}

type window struct {
	count     int
	expiresAt time.Time
}

// New creates a limiter allowing limit requests per key every duration.
func New(limit int, duration time.Duration) *Limiter {
	return &Limiter{
		windows:  make(map[string]*window),
		limit:    limit,
		duration: duration,
		now:      time.Now,
	}
}

// Allow records a request for key and reports whether it is within the limit.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.windows) >= sweepAt {
		l.sweep(now)
	}
	w, ok := l.windows[key]
	if !ok || now.After(w.expiresAt) {
		l.windows[key] = &window{count: 1, expiresAt: now.Add(l.duration)}
		return true
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// Reset clears the window of key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// Sweep drops expired windows and returns how many remain.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(l.now())
	return len(l.windows)
}

func (l *Limiter) sweep(now time.Time) {
	for key, w := range l.windows {
		if now.After(w.expiresAt) {
			delete(l.windows, key)
		}
	}
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// LoginLimiter throttles login attempts per client IP and per email, so
// neither a single client nor a distributed guess against one account can
// hammer password checks.
type LoginLimiter struct {
	ip    *Limiter
	email *Limiter
}

// NewLoginLimiter allows 10 attempts per IP per minute and 5 per email per
// 5 minutes.
func NewLoginLimiter() *LoginLimiter {
	return NewLoginLimiterWithConfig(10, time.Minute, 5, 5*time.Minute)
}

// NewLoginLimiterWithConfig creates a login limiter with custom limits.
func NewLoginLimiterWithConfig(ipLimit int, ipWindow time.Duration, emailLimit int, emailWindow time.Duration) *LoginLimiter {
	return &LoginLimiter{
		ip:    New(ipLimit, ipWindow),
		email: New(emailLimit, emailWindow),
	}
}

// Check records an attempt and returns an apperr.RateLimited error when
// either limit is exhausted.
func (ll *LoginLimiter) Check(r *http.Request, email string) error {
	if !ll.ip.Allow(ClientIP(r)) {
		return apperr.RateLimited("too many login attempts; wait a minute before trying again")
	}
	if key := emailKey(email); key != "" && !ll.email.Allow(key) {
		return apperr.RateLimited("too many login attempts for this account; wait a few minutes")
	}
	return nil
}

// Succeeded clears the per-email window after a successful login.
func (ll *LoginLimiter) Succeeded(email string) {
	if key := emailKey(email); key != "" {
		ll.email.Reset(key)
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
