// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// MemoryStore implements Store in memory. Suitable for tests and
// single-run usage; data does not survive a restart.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Envelope
	// now is injectable for deterministic expiry tests.
	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]Envelope),
		now:         time.Now,
	}
}

// SaveDocuments writes every doc with a store-assigned UpdatedAt.
func (s *MemoryStore) SaveDocuments(ctx context.Context, collection string, docs map[string]any, ttl time.Duration) error {
	if len(docs) == 0 {
		return nil
	}

	now := s.now()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	encoded := make(map[string]Envelope, len(docs))
	for key, doc := range docs {
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal document %s/%s: %w", collection, key, err)
		}
		encoded[key] = Envelope{Data: data, UpdatedAt: now, ExpiresAt: expiresAt}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]Envelope)
		s.collections[collection] = coll
	}
	for key, envelope := range encoded {
		coll[key] = envelope
	}
	return nil
}

// GetDocument reads one document, treating expired documents as missing.
func (s *MemoryStore) GetDocument(ctx context.Context, collection, key string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	envelope, ok := s.collections[collection][key]
	if !ok {
		return ErrNotFound
	}
	if envelope.Expired(s.now()) {
		delete(s.collections[collection], key)
		return ErrNotFound
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("unmarshal %s/%s: %w", collection, key, err)
		}
	}
	return nil
}

// GetByKeys reads the named documents, skipping missing and expired keys.
func (s *MemoryStore) GetByKeys(ctx context.Context, collection string, keys []string) (map[string]Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	found := make(map[string]Envelope, len(keys))
	for _, key := range keys {
		envelope, ok := s.collections[collection][key]
		if !ok || envelope.Expired(now) {
			continue
		}
		found[key] = envelope
	}
	return found, nil
}

// ListDocuments returns every unexpired document in collection.
func (s *MemoryStore) ListDocuments(ctx context.Context, collection string) (map[string]Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	found := make(map[string]Envelope)
	for key, envelope := range s.collections[collection] {
		if envelope.Expired(now) {
			continue
		}
		found[key] = envelope
	}
	return found, nil
}

// DeleteDocument removes one document; absent keys are a no-op.
func (s *MemoryStore) DeleteDocument(ctx context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], key)
	return nil
}

// ClearCollection removes every document in collection.
func (s *MemoryStore) ClearCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, collection)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// SetClock overrides the store clock. Test helper.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
