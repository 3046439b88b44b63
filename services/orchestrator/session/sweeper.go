// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"log/slog"
	"time"
)

// DefaultSessionTTL is how long an idle session survives before the
// sweeper removes it.
const DefaultSessionTTL = 24 * time.Hour

// DefaultSweepInterval is the cadence of expiry sweeps.
const DefaultSweepInterval = 5 * time.Minute

// Sweeper periodically evicts idle sessions from a ShardedStore.
type Sweeper struct {
	store    *ShardedStore
	ttl      time.Duration
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewSweeper creates a sweeper. Zero ttl or interval fall back to the
// package defaults.
func NewSweeper(store *ShardedStore, ttl, interval time.Duration, logger *slog.Logger) *Sweeper {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		store:    store,
		ttl:      ttl,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background sweep loop.
func (sw *Sweeper) Start() {
	go sw.run()
}

// Stop halts the loop and waits for it to exit.
func (sw *Sweeper) Stop() {
	close(sw.stopCh)
	<-sw.doneCh
}

// SweepOnce runs a single eviction pass and returns the eviction count.
func (sw *Sweeper) SweepOnce() int {
	evicted := sw.store.evictExpired(sw.ttl)
	if evicted > 0 && sw.logger != nil {
		sw.logger.Info("evicted idle sessions",
			slog.Int("count", evicted),
			slog.Duration("ttl", sw.ttl))
	}
	return evicted
}

func (sw *Sweeper) run() {
	defer close(sw.doneCh)

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sw.stopCh:
			return
		case <-ticker.C:
			sw.SweepOnce()
		}
	}
}
