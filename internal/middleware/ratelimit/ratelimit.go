// Package ratelimit implements a keyed fixed-window limiter with optional
// cooldown blocks, usable directly or as HTTP middleware.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Limiter allows at most RequestsPerMinute calls per key in each one-minute
// window measured from the key's first call in that window.
type Limiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
	now          func() time.Time

	requestsPerMinute int
	cleanupInterval   time.Duration
}

type clientInfo struct {
	windowStart  time.Time
	requests     int
	blockedUntil time.Time
	lastSeen     time.Time
}

type Config struct {
	RequestsPerMinute int
	CleanupInterval   time.Duration
	// Clock overrides time.Now.
	Clock func() time.Time
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		CleanupInterval:   5 * time.Minute,
	}
}

// NewLimiter starts a limiter and its cleanup goroutine. Call Stop when done.
func NewLimiter(config Config) *Limiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig().CleanupInterval
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	rl := &Limiter{
		clients:           make(map[string]*clientInfo),
		stopCleanup:       make(chan struct{}),
		now:               config.Clock,
		requestsPerMinute: config.RequestsPerMinute,
		cleanupInterval:   config.CleanupInterval,
	}
	go rl.startCleanup()
	return rl
}

// Allow records a call for key and reports whether it fits the window.
// Blocked keys are always refused and do not consume the window.
func (rl *Limiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c := rl.client(key, now)
	if now.Before(c.blockedUntil) {
		return false
	}
	if now.Sub(c.windowStart) >= time.Minute {
		c.windowStart = now
		c.requests = 0
	}
	if c.requests >= rl.requestsPerMinute {
		return false
	}
	c.requests++
	return true
}

// Block refuses every call for key during d. A shorter block never
// shortens an existing one.
func (rl *Limiter) Block(key string, d time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c := rl.client(key, now)
	if until := now.Add(d); until.After(c.blockedUntil) {
		c.blockedUntil = until
	}
}

// BlockedFor returns the remaining block on key, zero when not blocked.
func (rl *Limiter) BlockedFor(key string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.clients[key]
	if !ok {
		return 0
	}
	if d := c.blockedUntil.Sub(rl.now()); d > 0 {
		return d
	}
	return 0
}

// RetryAfter returns how long until key's window resets or block ends.
func (rl *Limiter) RetryAfter(key string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.clients[key]
	if !ok {
		return 0
	}
	now := rl.now()
	wait := c.windowStart.Add(time.Minute).Sub(now)
	if b := c.blockedUntil.Sub(now); b > wait {
		wait = b
	}
	if wait < 0 {
		return 0
	}
	return wait
}

func (rl *Limiter) client(key string, now time.Time) *clientInfo {
	c, ok := rl.clients[key]
	if !ok {
		c = &clientInfo{windowStart: now}
		rl.clients[key] = c
	}
	c.lastSeen = now
	return c
}

func (rl *Limiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries drops keys idle for ten minutes that are not blocked.
func (rl *Limiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-10 * time.Minute)
	for key, c := range rl.clients {
		if c.lastSeen.Before(cutoff) && !now.Before(c.blockedUntil) {
			delete(rl.clients, key)
		}
	}
}

// Stop shuts down the cleanup goroutine. Safe to call more than once.
func (rl *Limiter) Stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// Middleware limits requests per key returned by extractKey. onLimit, when
// set, writes the rejection; otherwise a plain 429 is sent.
func (rl *Limiter) Middleware(extractKey func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractKey(r)
			if !rl.Allow(key) {
				secs := int(rl.RetryAfter(key).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				if onLimit != nil {
					onLimit(w, r)
				} else {
					http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
