// Package ratelimit implements per-host token bucket limits for calls to
// external services.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/docwatch/internal/metrics"
	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration.
type Config struct {
	// RPS is the steady request rate per host. Zero or less disables limiting.
	RPS   float64
	Burst int
	// Hosts overrides RPS for individual hosts.
	Hosts map[string]float64
}

// Limiter manages per-host rate limits.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	cfg      Config
	burst    int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		cfg:      cfg,
		burst:    burst,
	}
}

// Wait blocks until a token is available for the URL's host, respecting the context.
// A nil Limiter never blocks.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	if l == nil {
		return nil
	}
	host := metrics.SanitizeHost(rawURL)
	limiter := l.forHost(host)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

func (l *Limiter) forHost(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.limitFor(host), l.burst)
		l.limiters[host] = limiter
	}
	return limiter
}

func (l *Limiter) limitFor(host string) rate.Limit {
	rps := l.cfg.RPS
	if override, ok := l.cfg.Hosts[host]; ok {
		rps = override
	}
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}
