// Package ratelimiter throttles outbound API calls with a token bucket per
// remote host. Buckets for hosts not seen recently are evicted so a
// long-running process talking to many test servers does not grow without
// bound.
package ratelimiter

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const sweepEvery = 512

type HostLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	calls   uint64
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a per-host limiter; returns nil (an unlimited limiter) if the
// arguments are invalid.
func New(rps float64, burst int, idleTTL time.Duration) *HostLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &HostLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether one call to host may proceed at now, without
// blocking. A nil limiter or empty host always allows.
func (l *HostLimiter) Allow(host string, now time.Time) bool {
	b := l.bucketFor(host, now)
	if b == nil {
		return true
	}
	return b.limiter.AllowN(now, 1)
}

// Wait blocks until one call to host may proceed, or until ctx is done. A
// nil limiter or empty host admits immediately.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	b := l.bucketFor(host, time.Now())
	if b == nil {
		return nil
	}
	return b.limiter.Wait(ctx)
}

// bucketFor returns the host's bucket, creating it on first sight. Every
// sweepEvery lookups, buckets idle past the TTL are dropped. Nil means
// unlimited.
func (l *HostLimiter) bucketFor(host string, now time.Time) *bucket {
	if l == nil {
		return nil
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[host]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[host] = b
	}
	b.lastSeen = now

	l.calls++
	if l.calls%sweepEvery == 0 {
		cutoff := now.Add(-l.idleTTL)
		for h, stale := range l.buckets {
			if stale.lastSeen.Before(cutoff) {
				delete(l.buckets, h)
			}
		}
	}
	return b
}
