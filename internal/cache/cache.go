// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

// Package cache provides a thread-safe in-memory TTL cache used to
// memoize portal API responses within one session. It is local to a
// single process and never shared across devices; the document store is
// the durable cross-device tier.
package cache

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"sync"
	"time"
)

// Entry is a cached item with its expiration time.
type Entry struct {
	Data      []byte
	ExpiresAt time.Time
}

// Stats tracks cache performance counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// Cache is a thread-safe in-memory cache with a fixed TTL per entry and
// a background cleanup loop.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration
	stats   Stats
	stopCh  chan struct{}
	// now is injectable for deterministic expiry tests.
	now func() time.Time
}

// cleanupInterval is how often the background loop sweeps expired entries.
const cleanupInterval = 5 * time.Minute

// New creates a cache whose entries expire after ttl. A background
// goroutine sweeps expired entries until Close is called; expired
// entries are also evicted lazily on Get.
func New(ttl time.Duration) *Cache {
	c := &Cache{
		entries: make(map[string]Entry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
	go c.cleanupLoop()
	return c
}

// Get retrieves a value by key. Expired entries are deleted and count as
// misses.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	if c.now().After(entry.ExpiresAt) {
		delete(c.entries, key)
		c.stats.Misses++
		c.stats.Evictions++
		return nil, false
	}
	c.stats.Hits++
	return entry.Data, true
}

// Set stores a value under key with the cache's default TTL.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry{Data: data, ExpiresAt: c.now().Add(c.ttl)}
}

// Delete removes a single entry.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry)
}

// Len returns the number of entries, including any not yet swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Close stops the background cleanup goroutine.
func (c *Cache) Close() {
	close(c.stopCh)
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
			c.stats.Evictions++
		}
	}
}

// RequestKey builds a stable cache key for an HTTP request from its URL
// path and query parameters. url.Values.Encode sorts keys, so the same
// parameters always produce the same key.
func RequestKey(path string, params url.Values) string {
	sum := sha256.Sum256([]byte(path + "?" + params.Encode()))
	return fmt.Sprintf("%x", sum[:16])
}
