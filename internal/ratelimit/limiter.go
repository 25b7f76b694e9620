// Package ratelimit throttles requests per client key.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config defines the rate limiting configuration.
type Config struct {
	RPS             float64       // sustained requests per second per key
	Burst           int           // bucket size per key
	CleanupInterval time.Duration // idle limiters older than this are dropped
}

// DefaultConfig is generous enough that a single browser driving the
// wizard never trips it.
var DefaultConfig = Config{
	RPS:             50,
	Burst:           100,
	CleanupInterval: 10 * time.Minute,
}

type entry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// Limiter keeps one token bucket per key.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	config   Config
	now      func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a limiter and starts its cleanup goroutine. Call Stop when
// done.
func New(config Config) *Limiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig.CleanupInterval
	}
	l := &Limiter{
		limiters: make(map[string]*entry),
		config:   config,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	l.wg.Add(1)
	go l.cleanupLoop()
	return l
}

// Allow reports whether a request for key may proceed now.
func (l *Limiter) Allow(key string) bool {
	return l.get(key).Allow()
}

// get returns the bucket for key, creating it on first use.
func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(l.config.RPS), l.config.Burst)}
		l.limiters[key] = e
	}
	e.lastUsed = l.now()
	return e.limiter
}

// Len is the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Cleanup drops limiters idle for longer than the cleanup interval.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.config.CleanupInterval)
	for key, e := range l.limiters {
		if e.lastUsed.Before(cutoff) {
			delete(l.limiters, key)
		}
	}
}

func (l *Limiter) cleanupLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Cleanup()
		case <-l.stopCh:
			return
		}
	}
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
}
