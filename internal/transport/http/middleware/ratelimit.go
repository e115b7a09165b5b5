package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"labourpanel/internal/requestctx"
	"labourpanel/internal/transport/http/api"
)

// maxTrackedKeys bounds the window table; expired windows are dropped
// once it is reached.
const maxTrackedKeys = 4096

type RateLimitKeyFunc func(r *http.Request) string

type RateLimitOption func(*mutationLimiter)

func WithKeyFunc(fn RateLimitKeyFunc) RateLimitOption {
	return func(l *mutationLimiter) {
		if fn != nil {
			l.key = fn
		}
	}
}

func WithClock(now func() time.Time) RateLimitOption {
	return func(l *mutationLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

// window is a fixed counting window for one key.
type window struct {
	used    int
	resetAt time.Time
}

type verdict struct {
	allowed   bool
	remaining int
	resetIn   time.Duration
}

type mutationLimiter struct {
	limit  int
	period time.Duration
	key    RateLimitKeyFunc
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// MutationRateLimit throttles mutating requests per session, falling back
// to the client address. Reads are never limited. A non-positive limit
// turns the middleware into a pass-through.
func MutationRateLimit(limit int, period time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	l := &mutationLimiter{
		limit:   limit,
		period:  period,
		key:     sessionOrIPKey,
		now:     time.Now,
		windows: make(map[string]*window),
	}
	for _, opt := range opts {
		opt(l)
	}
	return func(next http.Handler) http.Handler {
		if l.limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			key := l.key(r)
			if key == "" {
				key = clientIPKey(r)
			}
			v := l.take(key)
			writeRateHeaders(w, l.limit, v)
			if !v.allowed {
				slog.WarnContext(r.Context(), "mutation rate limit exceeded",
					"key", key,
					"method", r.Method,
					"path", r.URL.Path,
					"limit", l.limit,
				)
				api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many changes, slow down", GetRequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *mutationLimiter) take(key string) verdict {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	win, ok := l.windows[key]
	if !ok || !now.Before(win.resetAt) {
		if !ok && len(l.windows) >= maxTrackedKeys {
			for k, old := range l.windows {
				if !now.Before(old.resetAt) {
					delete(l.windows, k)
				}
			}
		}
		win = &window{resetAt: now.Add(l.period)}
		l.windows[key] = win
	}
	win.used++
	return verdict{
		allowed:   win.used <= l.limit,
		remaining: max(l.limit-win.used, 0),
		resetIn:   win.resetAt.Sub(now),
	}
}

func writeRateHeaders(w http.ResponseWriter, limit int, v verdict) {
	seconds := int(math.Ceil(v.resetIn.Seconds()))
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(v.remaining))
	h.Set("X-RateLimit-Reset", strconv.Itoa(seconds))
	if !v.allowed {
		h.Set("Retry-After", strconv.Itoa(max(seconds, 1)))
	}
}

func sessionOrIPKey(r *http.Request) string {
	if id := requestctx.GetSessionID(r.Context()); id != "" {
		return "session:" + id
	}
	return clientIPKey(r)
}

func clientIPKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	return addr
}
