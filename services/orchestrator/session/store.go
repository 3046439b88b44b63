// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session holds per-conversation state in memory.
//
// The store is sharded to keep lock contention low, serializes turns on
// a per-session mutex so concurrent requests for the same session never
// interleave, and expires idle sessions via a background sweeper.
package session

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/datatypes"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/observability"
)

// Clock abstracts time for the store and sweeper so tests can control
// expiry deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the production clock.
var SystemClock Clock = systemClock{}

// shardCount must be a power of two.
const shardCount = 32

// Store is the session store interface consumed by handlers and the
// sweeper.
type Store interface {
	// Get returns a snapshot-free pointer to the session, or false when
	// it does not exist. Callers that mutate state must use WithLock.
	Get(ctx context.Context, sessionID string) (*datatypes.SessionState, bool)

	// Delete removes a session, reporting whether it existed.
	Delete(ctx context.Context, sessionID string) bool

	// List returns the ids of all live sessions.
	List(ctx context.Context) []string

	// WithLock runs fn while holding the session's lock, creating the
	// session on first use. Turns for the same session serialize here.
	WithLock(ctx context.Context, sessionID string, fn func(s *datatypes.SessionState) error) error

	// Len returns the number of live sessions.
	Len() int
}

type entry struct {
	mu    sync.Mutex
	state *datatypes.SessionState
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// ShardedStore is the in-memory Store implementation.
type ShardedStore struct {
	shards [shardCount]*shard
	clock  Clock
}

// NewStore creates an empty sharded store. A nil clock falls back to
// SystemClock.
func NewStore(clock Clock) *ShardedStore {
	if clock == nil {
		clock = SystemClock
	}
	s := &ShardedStore{clock: clock}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return s
}

func (s *ShardedStore) shardFor(sessionID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return s.shards[h.Sum32()&(shardCount-1)]
}

// Get implements Store.
func (s *ShardedStore) Get(_ context.Context, sessionID string) (*datatypes.SessionState, bool) {
	sh := s.shardFor(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.entries[sessionID]
	if !ok {
		return nil, false
	}
	return e.state, true
}

// Delete implements Store.
func (s *ShardedStore) Delete(_ context.Context, sessionID string) bool {
	sh := s.shardFor(sessionID)
	sh.mu.Lock()
	_, ok := sh.entries[sessionID]
	delete(sh.entries, sessionID)
	sh.mu.Unlock()
	if ok {
		s.recordGauge()
	}
	return ok
}

// List implements Store.
func (s *ShardedStore) List(_ context.Context) []string {
	var ids []string
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id := range sh.entries {
			ids = append(ids, id)
		}
		sh.mu.Unlock()
	}
	return ids
}

// WithLock implements Store. The session is created on first use; fn
// runs under the session's own mutex so the shard stays available to
// other sessions for the duration of a turn.
func (s *ShardedStore) WithLock(ctx context.Context, sessionID string, fn func(st *datatypes.SessionState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sh := s.shardFor(sessionID)
	sh.mu.Lock()
	e, ok := sh.entries[sessionID]
	if !ok {
		e = &entry{state: datatypes.NewSessionState(sessionID, s.clock.Now())}
		sh.entries[sessionID] = e
	}
	sh.mu.Unlock()
	if !ok {
		s.recordGauge()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(e.state); err != nil {
		return err
	}
	e.state.Touch(s.clock.Now())
	return nil
}

// Len implements Store.
func (s *ShardedStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

func (s *ShardedStore) recordGauge() {
	if m := observability.DefaultMetrics; m != nil {
		m.ActiveSessions.Set(float64(s.Len()))
	}
}

// evictExpired removes sessions idle past ttl. Sessions whose lock is
// held (a turn in flight) are skipped and revisited on the next sweep.
func (s *ShardedStore) evictExpired(ttl time.Duration) int {
	cutoff := s.clock.Now().Add(-ttl).UnixMilli()
	evicted := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, e := range sh.entries {
			if !e.mu.TryLock() {
				continue
			}
			expired := e.state.LastActivity < cutoff
			e.mu.Unlock()
			if expired {
				delete(sh.entries, id)
				evicted++
			}
		}
		sh.mu.Unlock()
	}
	if evicted > 0 {
		s.recordGauge()
		if m := observability.DefaultMetrics; m != nil {
			m.SessionsEvictedTotal.Add(float64(evicted))
		}
	}
	return evicted
}
