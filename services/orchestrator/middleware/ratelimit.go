// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the orchestrator
// service.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/observability"
)

// Default rate limit settings: enough for a conversational client,
// tight enough to stop a runaway script.
const (
	DefaultRequestsPerSecond = 5.0
	DefaultBurst             = 10

	// staleAfter is how long an idle client keeps its bucket.
	staleAfter = 10 * time.Minute
)

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a per-client token bucket keyed by client IP.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	rps     rate.Limit
	burst   int

	// now is swappable for tests.
	now func() time.Time
}

// NewRateLimiter builds a limiter. Non-positive arguments select the
// defaults.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &RateLimiter{
		clients: make(map[string]*clientBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
}

// allow reports whether the client may proceed, creating its bucket on
// first sight and pruning idle buckets as a side effect.
func (r *RateLimiter) allow(clientIP string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for ip, bucket := range r.clients {
		if now.Sub(bucket.lastSeen) > staleAfter {
			delete(r.clients, ip)
		}
	}

	bucket, ok := r.clients[clientIP]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(r.rps, r.burst)}
		r.clients[clientIP] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.Allow()
}

// Middleware rejects over-limit requests with 429.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.allow(c.ClientIP()) {
			if m := observability.DefaultMetrics; m != nil {
				m.RateLimitedTotal.Inc()
			}
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded, slow down",
			})
			return
		}
		c.Next()
	}
}
