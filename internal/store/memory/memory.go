// Package memory provides an in-process Store used by the engine tests and
// the zero-dependency development mode. Batches commit under a single lock,
// so readers always observe either none or all of a batch.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"barborsa/internal/store"
)

// Store keeps documents in a path-keyed map.
type Store struct {
	mu   sync.RWMutex
	docs map[string]map[string]any

	subMu     sync.Mutex
	subs      map[int]subscription
	nextSubID int

	commitErr error
}

type subscription struct {
	collection string
	fn         store.ChangeFunc
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		docs: make(map[string]map[string]any),
		subs: make(map[int]subscription),
	}
}

// FailCommits makes every subsequent Commit return err without applying any
// writes. Pass nil to restore normal behaviour. Test hook.
func (s *Store) FailCommits(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErr = err
}

// GetSnapshot lists documents directly under collection.
func (s *Store) GetSnapshot(ctx context.Context, collection string) ([]store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]store.Document, 0)
	for path, fields := range s.docs {
		parent, id := store.Split(path)
		if parent != collection {
			continue
		}
		docs = append(docs, store.Document{ID: id, Fields: cloneFields(fields)})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// GetDocument fetches one document by path.
func (s *Store) GetDocument(ctx context.Context, path string) (store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, ok := s.docs[path]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	_, id := store.Split(path)
	return store.Document{ID: id, Fields: cloneFields(fields)}, nil
}

// Subscribe registers fn for changes under collection.
func (s *Store) Subscribe(ctx context.Context, collection string, fn store.ChangeFunc) (store.Unsubscribe, error) {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = subscription{collection: collection, fn: fn}
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}, nil
}

// Batch opens a write batch against this store.
func (s *Store) Batch() store.Batch {
	return &batch{store: s}
}

type opKind int

const (
	opUpdate opKind = iota
	opSet
	opSetMerge
	opDelete
)

type op struct {
	kind   opKind
	path   string
	fields map[string]any
}

type batch struct {
	store *Store
	ops   []op
}

func (b *batch) Update(path string, fields map[string]any) {
	b.ops = append(b.ops, op{kind: opUpdate, path: path, fields: cloneFields(fields)})
}

func (b *batch) Set(path string, fields map[string]any, merge bool) {
	kind := opSet
	if merge {
		kind = opSetMerge
	}
	b.ops = append(b.ops, op{kind: kind, path: path, fields: cloneFields(fields)})
}

func (b *batch) Delete(path string) {
	b.ops = append(b.ops, op{kind: opDelete, path: path})
}

// Commit validates every staged op, then applies them under the write lock.
// Validation failures surface before any document changes.
func (b *batch) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := b.store
	s.mu.Lock()

	if s.commitErr != nil {
		err := s.commitErr
		s.mu.Unlock()
		return err
	}

	for _, o := range b.ops {
		if o.kind == opUpdate {
			if _, ok := s.docs[o.path]; !ok {
				s.mu.Unlock()
				return fmt.Errorf("update %s: %w", o.path, store.ErrNotFound)
			}
		}
	}

	changed := make([]string, 0, len(b.ops))
	for _, o := range b.ops {
		switch o.kind {
		case opUpdate:
			applyFields(s.docs[o.path], o.fields)
		case opSetMerge:
			if _, ok := s.docs[o.path]; !ok {
				s.docs[o.path] = make(map[string]any)
			}
			applyFields(s.docs[o.path], o.fields)
		case opSet:
			fresh := make(map[string]any)
			applyFields(fresh, o.fields)
			s.docs[o.path] = fresh
		case opDelete:
			delete(s.docs, o.path)
		}
		changed = append(changed, o.path)
	}

	notify := make(map[string]store.Document, len(changed))
	for _, path := range changed {
		_, id := store.Split(path)
		doc := store.Document{ID: id}
		if fields, ok := s.docs[path]; ok {
			doc.Fields = cloneFields(fields)
		}
		notify[path] = doc
	}
	s.mu.Unlock()

	s.dispatch(notify)
	return nil
}

func (s *Store) dispatch(changes map[string]store.Document) {
	s.subMu.Lock()
	subs := make([]subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subMu.Unlock()

	for path, doc := range changes {
		parent, _ := store.Split(path)
		for _, sub := range subs {
			if sub.collection == parent {
				sub.fn(path, doc)
			}
		}
	}
}

// applyFields merges src into dst, resolving increment sentinels against the
// current value.
func applyFields(dst, src map[string]any) {
	for key, value := range src {
		if delta, ok := store.IncrementDelta(value); ok {
			dst[key] = asInt64(dst[key]) + delta
			continue
		}
		dst[key] = value
	}
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func cloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

var _ store.Store = (*Store)(nil)
