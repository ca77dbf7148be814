// Package store defines the transactional document-store boundary the engine
// writes through. Implementations must apply a batch atomically: concurrent
// readers never observe a half-committed batch, and a failed commit leaves
// every document untouched.
package store

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound indicates the addressed document does not exist.
	ErrNotFound = errors.New("store: document not found")
	// ErrNotConfigured indicates the store was not initialised.
	ErrNotConfigured = errors.New("store: not configured")
)

// Document is one persisted record addressed by a path of the form
// "collection/.../id".
type Document struct {
	ID     string
	Fields map[string]any
}

// ChangeFunc receives the full path and the post-change document whenever a
// document under a subscribed collection is written. A zero-field document
// signals a deletion.
type ChangeFunc func(path string, doc Document)

// Unsubscribe cancels a subscription. Safe to call more than once.
type Unsubscribe func()

// Store is the read side plus batch factory.
type Store interface {
	// GetSnapshot lists every document directly under a collection path.
	GetSnapshot(ctx context.Context, collection string) ([]Document, error)
	// GetDocument fetches a single document, ErrNotFound if absent.
	GetDocument(ctx context.Context, path string) (Document, error)
	// Subscribe invokes fn for every subsequent change under collection.
	Subscribe(ctx context.Context, collection string, fn ChangeFunc) (Unsubscribe, error)
	// Batch opens a new atomic write batch.
	Batch() Batch
}

// Batch stages writes and applies them all-or-nothing on Commit.
type Batch interface {
	// Update merges fields into an existing document; commit fails with
	// ErrNotFound if the document is missing.
	Update(path string, fields map[string]any)
	// Set writes a document, merging into any existing fields when merge is
	// true and replacing them otherwise.
	Set(path string, fields map[string]any, merge bool)
	// Delete removes a document if present.
	Delete(path string)
	// Commit applies every staged write atomically.
	Commit(ctx context.Context) error
}

// incrementValue is the sentinel produced by Increment.
type incrementValue struct {
	Delta int64
}

// Increment returns a field value that atomically adds delta to the stored
// numeric field, treating an absent field as zero. Concurrent increments
// commute.
func Increment(delta int64) any {
	return incrementValue{Delta: delta}
}

// IncrementDelta reports whether v is an increment sentinel and its delta.
func IncrementDelta(v any) (int64, bool) {
	inc, ok := v.(incrementValue)
	if !ok {
		return 0, false
	}
	return inc.Delta, true
}

// Int64Field reads a numeric field from a document field map, tolerating the
// integer and float shapes different codecs produce. Absent or non-numeric
// values yield the fallback.
func Int64Field(fields map[string]any, key string, fallback int64) int64 {
	v, ok := fields[key]
	if !ok || v == nil {
		return fallback
	}
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	case float32:
		return int64(n)
	default:
		return fallback
	}
}

// Join builds a document path from a collection path and a document id.
func Join(collection, id string) string {
	return collection + "/" + id
}

// Split separates a document path into its collection and id.
func Split(path string) (collection, id string) {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}
