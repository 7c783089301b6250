// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/alrimii/AlKharj/internal/logging"
)

// BadgerStore implements Store on BadgerDB for durable storage across
// restarts. Keys are laid out as "<collection>:<key>" so a collection
// can be scanned with a prefix iterator.
type BadgerStore struct {
	db *badger.DB
	// now is injectable for deterministic expiry tests.
	now func() time.Time
}

// NewBadgerStore opens (or creates) a BadgerDB database at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &BadgerStore{db: db, now: time.Now}, nil
}

// NewBadgerStoreWithDB wraps an already opened database. The caller
// retains ownership; Close is still safe to call once.
func NewBadgerStoreWithDB(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db, now: time.Now}
}

func storeKey(collection, key string) []byte {
	return []byte(collection + ":" + key)
}

// SaveDocuments writes docs in transactions of at most maxBatchWrites
// entries each. Keys are written in sorted order so a partial failure
// leaves a deterministic prefix committed.
func (s *BadgerStore) SaveDocuments(ctx context.Context, collection string, docs map[string]any, ttl time.Duration) error {
	if len(docs) == 0 {
		return nil
	}

	now := s.now()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	keys := make([]string, 0, len(docs))
	for key := range docs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, chunk := range chunkKeys(keys, maxBatchWrites) {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			for _, key := range chunk {
				data, err := json.Marshal(docs[key])
				if err != nil {
					return fmt.Errorf("marshal document %s/%s: %w", collection, key, err)
				}
				envelope, err := json.Marshal(Envelope{
					Data:      data,
					UpdatedAt: now,
					ExpiresAt: expiresAt,
				})
				if err != nil {
					return fmt.Errorf("marshal envelope %s/%s: %w", collection, key, err)
				}
				if err := txn.Set(storeKey(collection, key), envelope); err != nil {
					return fmt.Errorf("set %s/%s: %w", collection, key, err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// GetDocument reads one document into out, treating expired documents
// as missing and deleting them lazily.
func (s *BadgerStore) GetDocument(ctx context.Context, collection, key string, out any) error {
	var envelope Envelope
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storeKey(collection, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s/%s: %w", collection, key, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &envelope)
		})
	})
	if err != nil {
		return err
	}

	if envelope.Expired(s.now()) {
		s.deleteExpired(collection, key)
		return ErrNotFound
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("unmarshal %s/%s: %w", collection, key, err)
		}
	}
	return nil
}

// GetByKeys reads keys in transactions of at most lookupChunkSize each.
// Missing and expired keys are skipped.
func (s *BadgerStore) GetByKeys(ctx context.Context, collection string, keys []string) (map[string]Envelope, error) {
	found := make(map[string]Envelope, len(keys))
	now := s.now()

	for _, chunk := range chunkKeys(keys, lookupChunkSize) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := s.db.View(func(txn *badger.Txn) error {
			for _, key := range chunk {
				item, err := txn.Get(storeKey(collection, key))
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				if err != nil {
					return fmt.Errorf("get %s/%s: %w", collection, key, err)
				}
				var envelope Envelope
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &envelope)
				}); err != nil {
					return err
				}
				if envelope.Expired(now) {
					continue
				}
				found[key] = envelope
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return found, nil
}

// ListDocuments scans the collection prefix and returns every unexpired
// document.
func (s *BadgerStore) ListDocuments(ctx context.Context, collection string) (map[string]Envelope, error) {
	found := make(map[string]Envelope)
	now := s.now()
	prefix := []byte(collection + ":")

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := string(item.Key()[len(prefix):])
			var envelope Envelope
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &envelope)
			}); err != nil {
				return fmt.Errorf("read %s/%s: %w", collection, key, err)
			}
			if envelope.Expired(now) {
				continue
			}
			found[key] = envelope
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// DeleteDocument removes one document; absent keys are a no-op.
func (s *BadgerStore) DeleteDocument(ctx context.Context, collection, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(storeKey(collection, key))
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete %s/%s: %w", collection, key, err)
		}
		return nil
	})
}

// ClearCollection removes every document under the collection prefix.
// Deletes are batched to respect transaction size limits.
func (s *BadgerStore) ClearCollection(ctx context.Context, collection string) error {
	prefix := []byte(collection + ":")

	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	for start := 0; start < len(keys); start += maxBatchWrites {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + maxBatchWrites
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]
		err := s.db.Update(func(txn *badger.Txn) error {
			for _, key := range batch {
				if err := txn.Delete(key); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("clear %s: %w", collection, err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) deleteExpired(collection, key string) {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(storeKey(collection, key))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		logging.Warn().Err(err).
			Str("collection", collection).
			Str("key", key).
			Msg("Failed to delete expired document")
	}
}
