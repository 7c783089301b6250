// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

// Package docstore provides the durable document tier shared by all
// tracker devices. Documents live in named collections, carry a
// store-assigned update timestamp and an expiration time, and are
// invisible once expired: an expired document reads as a miss and is
// deleted lazily.
package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
)

// ErrNotFound is returned when a document does not exist or has expired.
var ErrNotFound = errors.New("document not found")

// maxBatchWrites bounds how many documents a single write transaction
// may carry. Larger batches are split transparently.
const maxBatchWrites = 400

// lookupChunkSize bounds how many keys a single read transaction may
// fetch. Larger key sets are split transparently.
const lookupChunkSize = 10

// Envelope wraps a stored document with its metadata. UpdatedAt is
// assigned by the store at write time, never by the caller.
type Envelope struct {
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updatedAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// Expired reports whether the envelope is past its expiration at now.
// A zero ExpiresAt means the document never expires.
func (e *Envelope) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Store is the persistence contract for tracker documents. All methods
// are safe for concurrent use.
type Store interface {
	// SaveDocuments writes every entry of docs into collection, each
	// expiring after ttl. A ttl of zero means no expiration. Writes are
	// split into bounded transactions; a failure may leave earlier
	// chunks committed.
	SaveDocuments(ctx context.Context, collection string, docs map[string]any, ttl time.Duration) error

	// GetDocument reads one document into out. Returns ErrNotFound when
	// the key is absent or the document has expired.
	GetDocument(ctx context.Context, collection, key string, out any) error

	// GetByKeys reads the named documents, returning only those that
	// exist and are unexpired. Missing keys are not an error.
	GetByKeys(ctx context.Context, collection string, keys []string) (map[string]Envelope, error)

	// ListDocuments returns every unexpired document in collection.
	ListDocuments(ctx context.Context, collection string) (map[string]Envelope, error)

	// DeleteDocument removes one document. Deleting an absent key is
	// not an error.
	DeleteDocument(ctx context.Context, collection, key string) error

	// ClearCollection removes every document in collection.
	ClearCollection(ctx context.Context, collection string) error

	// Close releases underlying resources.
	Close() error
}

// chunkKeys splits keys into slices of at most size elements.
func chunkKeys(keys []string, size int) [][]string {
	if len(keys) == 0 {
		return nil
	}
	chunks := make([][]string, 0, (len(keys)+size-1)/size)
	for size < len(keys) {
		chunks = append(chunks, keys[:size])
		keys = keys[size:]
	}
	return append(chunks, keys)
}
