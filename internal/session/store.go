// File: internal/session/store.go
// Package session
// Author: momentics <momentics@gmail.com>
//
// Sharded, thread-safe live session table keyed by identity key.

package session

import (
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
)

// Store is the live session table. Keys compare case-insensitively.
// Inserts and removals lock one shard only.
type Store[S comparable] struct {
	shards []*shard[S]
	mask   uint32
	count  atomic.Int64
}

type shard[S comparable] struct {
	mu       sync.RWMutex
	sessions map[string]S
}

// NewStore constructs a sharded table with shardCount shards.
func NewStore[S comparable](shardCount int) *Store[S] {
	if shardCount <= 0 {
		shardCount = 16
	}
	// find power-of-two shards for bitmasking
	m := nextPowerOfTwo(uint32(shardCount))
	shards := make([]*shard[S], m)
	for i := range shards {
		shards[i] = &shard[S]{sessions: make(map[string]S)}
	}
	return &Store[S]{shards: shards, mask: m - 1}
}

// shard picks the correct shard for a normalized key.
func (m *Store[S]) shard(key string) *shard[S] {
	return m.shards[fnv32(key)&m.mask]
}

// TryAdd inserts s under key unless the key is already present.
func (m *Store[S]) TryAdd(key string, s S) bool {
	key = normalize(key)
	sh := m.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.sessions[key]; ok {
		return false
	}
	sh.sessions[key] = s
	m.count.Add(1)
	return true
}

// Get fetches a session if present.
func (m *Store[S]) Get(key string) (S, bool) {
	key = normalize(key)
	sh := m.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.sessions[key]
	return s, ok
}

// Remove deletes key only while it still maps to s, so a late close of an
// old session never evicts a newer one registered under the same key.
func (m *Store[S]) Remove(key string, s S) bool {
	key = normalize(key)
	sh := m.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	cur, ok := sh.sessions[key]
	if !ok || cur != s {
		return false
	}
	delete(sh.sessions, key)
	m.count.Add(-1)
	return true
}

// Len returns the number of live sessions.
func (m *Store[S]) Len() int {
	return int(m.count.Load())
}

// Values copies all sessions. Shards are locked one at a time.
func (m *Store[S]) Values() []S {
	out := make([]S, 0, m.Len())
	for _, sh := range m.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			out = append(out, s)
		}
		sh.mu.RUnlock()
	}
	return out
}

func normalize(key string) string {
	return strings.ToLower(key)
}

// fnv32 hashes a string to uint32.
func fnv32(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

// nextPowerOfTwo returns the next power-of-two >= v.
func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
