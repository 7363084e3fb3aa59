package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter manages per-client token buckets. Clients are identified by the
// caller, typically by remote address or an API key header.
type Limiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

// NewLimiter creates a limiter allowing requestsPerHour sustained requests
// per client with the given burst size.
func NewLimiter(requestsPerHour int, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(requestsPerHour) / 3600.0),
		burst:    burst,
	}
}

func (l *Limiter) get(clientID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[clientID]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[clientID] = limiter
	}
	return limiter
}

// Allow reports whether the client may make a request now.
func (l *Limiter) Allow(clientID string) bool {
	return l.get(clientID).Allow()
}

// Tokens returns the client's currently available tokens.
func (l *Limiter) Tokens(clientID string) float64 {
	return l.get(clientID).Tokens()
}
