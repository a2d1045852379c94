package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit throttles credential-bearing endpoints per client IP. Brute-force
// protection only; normal API traffic is not limited here.
type RateLimit struct {
	perSecond float64
	burst     int
	mu        sync.Mutex
	clients   map[string]*clientLimiter
}

func NewRateLimit(perSecond float64, burst int) *RateLimit {
	if perSecond <= 0 {
		perSecond = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &RateLimit{
		perSecond: perSecond,
		burst:     burst,
		clients:   map[string]*clientLimiter{},
	}
}

// Handler rejects requests exceeding the per-IP budget with 429.
func (m *RateLimit) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.allow(ClientIP(r)) {
			w.Header().Set("Retry-After", "60")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limited","error_description":"Too many requests"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *RateLimit) allow(clientIP string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.clients[clientIP]
	if !exists {
		entry = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(m.perSecond), m.burst)}
		m.clients[clientIP] = entry
	}
	entry.lastSeen = time.Now()
	m.gcLocked()
	return entry.limiter.Allow()
}

func (m *RateLimit) gcLocked() {
	if len(m.clients) < 1000 {
		return
	}
	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, entry := range m.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(m.clients, ip)
		}
	}
}

// ClientIP extracts the originating client IP, honoring proxy headers.
// The result keys sessions and refresh token creation metadata, so the same
// extraction must be used everywhere.
func ClientIP(r *http.Request) string {
	forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	realIP := strings.TrimSpace(r.Header.Get("X-Real-IP"))
	if realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}

	if strings.TrimSpace(r.RemoteAddr) == "" {
		return "unknown"
	}
	return r.RemoteAddr
}
