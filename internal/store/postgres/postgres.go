// Package postgres persists documents in a single JSONB-backed table. Batches
// map to transactions, and committed writes are announced over pg_notify so
// subscriptions work across processes.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"barborsa/internal/config"
	"barborsa/internal/store"
)

const (
	getDocumentSQL = `SELECT fields FROM documents WHERE path = $1;`

	getSnapshotSQL = `SELECT path, fields
    FROM documents
    WHERE parent = $1
    ORDER BY path;`

	updateDocumentSQL = `UPDATE documents
    SET fields = %s, updated_at = now()
    WHERE path = $1;`

	setReplaceSQL = `INSERT INTO documents (path, parent, fields)
    VALUES ($1, $2, $3)
    ON CONFLICT (path) DO UPDATE
    SET fields = EXCLUDED.fields, updated_at = now();`

	setMergeSQL = `INSERT INTO documents (path, parent, fields)
    VALUES ($1, $2, $3)
    ON CONFLICT (path) DO UPDATE
    SET fields = %s, updated_at = now();`

	deleteDocumentSQL = `DELETE FROM documents WHERE path = $1;`

	notifySQL = `SELECT pg_notify('doc_changes', $1);`

	listenSQL = `LISTEN doc_changes;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// Store implements the document store on top of a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, store.ErrNotConfigured
	}
	return s.pool, nil
}

// GetDocument fetches a single document by path.
func (s *Store) GetDocument(ctx context.Context, path string) (store.Document, error) {
	pool, err := s.getPool()
	if err != nil {
		return store.Document{}, err
	}

	var raw []byte
	if err := pool.QueryRow(ctx, getDocumentSQL, path).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Document{}, store.ErrNotFound
		}
		return store.Document{}, fmt.Errorf("get document %s: %w", path, err)
	}

	fields := make(map[string]any)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return store.Document{}, fmt.Errorf("decode document %s: %w", path, err)
	}
	_, id := store.Split(path)
	return store.Document{ID: id, Fields: fields}, nil
}

// GetSnapshot lists every document directly under a collection path.
func (s *Store) GetSnapshot(ctx context.Context, collection string) ([]store.Document, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, getSnapshotSQL, collection)
	if queryErr != nil {
		return nil, fmt.Errorf("snapshot %s: %w", collection, queryErr)
	}
	defer rows.Close()

	docs := make([]store.Document, 0)
	for rows.Next() {
		var path string
		var raw []byte
		if err := rows.Scan(&path, &raw); err != nil {
			return nil, err
		}
		fields := make(map[string]any)
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", path, err)
		}
		_, id := store.Split(path)
		docs = append(docs, store.Document{ID: id, Fields: fields})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return docs, nil
}

// Subscribe listens for committed changes under a collection on a dedicated
// connection. Each notification carries the changed path; the post-change
// document is re-read so callbacks always see committed state.
func (s *Store) Subscribe(ctx context.Context, collection string, fn store.ChangeFunc) (store.Unsubscribe, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, listenSQL); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen doc_changes: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			cancel()
			conn.Release()
		})
	}

	go func() {
		defer unsubscribe()
		for {
			notification, err := conn.Conn().WaitForNotification(subCtx)
			if err != nil {
				return
			}
			path := notification.Payload
			parent, id := store.Split(path)
			if parent != collection {
				continue
			}
			doc, err := s.GetDocument(subCtx, path)
			if errors.Is(err, store.ErrNotFound) {
				fn(path, store.Document{ID: id})
				continue
			}
			if err != nil {
				continue
			}
			fn(path, doc)
		}
	}()

	return unsubscribe, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a
// release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// Batch opens a staged write batch backed by one transaction.
func (s *Store) Batch() store.Batch {
	return &batch{store: s}
}

type opKind int

const (
	opUpdate opKind = iota
	opSet
	opDelete
)

type stagedOp struct {
	kind   opKind
	path   string
	fields map[string]any
	merge  bool
}

type batch struct {
	store *Store
	ops   []stagedOp
}

func (b *batch) Update(path string, fields map[string]any) {
	b.ops = append(b.ops, stagedOp{kind: opUpdate, path: path, fields: fields})
}

func (b *batch) Set(path string, fields map[string]any, merge bool) {
	b.ops = append(b.ops, stagedOp{kind: opSet, path: path, fields: fields, merge: merge})
}

func (b *batch) Delete(path string) {
	b.ops = append(b.ops, stagedOp{kind: opDelete, path: path})
}

// Commit applies every staged write in one transaction and notifies each
// changed path after its write. Any failure rolls the whole batch back.
func (b *batch) Commit(ctx context.Context) error {
	pool, err := b.store.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, op := range b.ops {
		if err := applyOp(ctx, tx, op); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, notifySQL, op.path); err != nil {
			return fmt.Errorf("notify %s: %w", op.path, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func applyOp(ctx context.Context, tx pgx.Tx, op stagedOp) error {
	switch op.kind {
	case opDelete:
		if _, err := tx.Exec(ctx, deleteDocumentSQL, op.path); err != nil {
			return fmt.Errorf("delete %s: %w", op.path, err)
		}
		return nil

	case opUpdate:
		plain, incs := splitIncrements(op.fields)
		raw, err := json.Marshal(plain)
		if err != nil {
			return fmt.Errorf("encode update %s: %w", op.path, err)
		}
		expr := incrementExpr("fields || $2", "fields", incs)
		tag, err := tx.Exec(ctx, fmt.Sprintf(updateDocumentSQL, expr), op.path, raw)
		if err != nil {
			return fmt.Errorf("update %s: %w", op.path, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("update %s: %w", op.path, store.ErrNotFound)
		}
		return nil

	case opSet:
		parent, _ := store.Split(op.path)
		plain, incs := splitIncrements(op.fields)
		// On first insert an increment starts from zero, so its delta is the
		// stored value.
		inserted := make(map[string]any, len(op.fields))
		for k, v := range plain {
			inserted[k] = v
		}
		for k, delta := range incs {
			inserted[k] = delta
		}
		insertRaw, err := json.Marshal(inserted)
		if err != nil {
			return fmt.Errorf("encode set %s: %w", op.path, err)
		}

		if !op.merge {
			if _, err := tx.Exec(ctx, setReplaceSQL, op.path, parent, insertRaw); err != nil {
				return fmt.Errorf("set %s: %w", op.path, err)
			}
			return nil
		}

		expr := incrementExpr("documents.fields || $4", "documents.fields", incs)
		mergeRaw, err := json.Marshal(plain)
		if err != nil {
			return fmt.Errorf("encode merge %s: %w", op.path, err)
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(setMergeSQL, expr), op.path, parent, insertRaw, mergeRaw); err != nil {
			return fmt.Errorf("set merge %s: %w", op.path, err)
		}
		return nil

	default:
		return fmt.Errorf("unknown batch op %d", op.kind)
	}
}

// splitIncrements separates increment sentinels from plain field values.
func splitIncrements(fields map[string]any) (map[string]any, map[string]int64) {
	plain := make(map[string]any, len(fields))
	incs := make(map[string]int64)
	for k, v := range fields {
		if delta, ok := store.IncrementDelta(v); ok {
			incs[k] = delta
			continue
		}
		plain[k] = v
	}
	return plain, incs
}

// incrementExpr wraps a base JSONB expression in jsonb_set calls that add each
// increment delta to the currently stored value. Field keys come from code,
// never from user input.
func incrementExpr(base, current string, incs map[string]int64) string {
	expr := base
	for key, delta := range incs {
		expr = fmt.Sprintf(
			"jsonb_set(%s, '{%s}', to_jsonb(COALESCE((%s->>'%s')::bigint, 0) + %d))",
			expr, key, current, key, delta,
		)
	}
	return expr
}
