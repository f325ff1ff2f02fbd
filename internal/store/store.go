// Package store is the quota-bounded local log.
//
// Entries live in a SQLite database (WAL journal) with two tables: one row per
// entry in log_details keyed by its strictly increasing create time, and one
// running byte total per app key in app_status. Every append runs in a single
// IMMEDIATE transaction that reads the total, inserts the entry, evicts the
// oldest entries of the same app key when the quota is exceeded, and writes
// the new total back.
//
// The store does not serialize callers itself. Appends for the same app key
// are expected to go through a serial queue so the size accounting is never
// observed half-done by another writer in the same process.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/coffersTech/logbuf/internal/apperrors"
	"github.com/coffersTech/logbuf/internal/clock"
	"github.com/coffersTech/logbuf/internal/metrics"
	"github.com/coffersTech/logbuf/internal/model"
)

// EvictionRatio is the fraction of the quota that an eviction pass shrinks the
// stored total down to.
const EvictionRatio = 0.7

const schema = `
CREATE TABLE IF NOT EXISTS app_status (
	app_key    TEXT PRIMARY KEY,
	total_size INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS log_details (
	create_time INTEGER PRIMARY KEY,
	app_key     TEXT NOT NULL,
	level       INTEGER NOT NULL,
	size        INTEGER NOT NULL,
	content     BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS log_details_create_time ON log_details(create_time);
CREATE INDEX IF NOT EXISTS log_details_app_key ON log_details(app_key, create_time);
`

// Config holds the parameters for opening a store.
type Config struct {
	// Path is the database file. Its parent directory must exist.
	Path string

	// PoolSize defaults to 4.
	PoolSize int

	// Clock defaults to the real clock.
	Clock clock.Clock

	Logger zerolog.Logger
}

// Store is safe for concurrent use.
type Store struct {
	pool   *pool
	clock  clock.Clock
	logger zerolog.Logger

	mu             sync.Mutex
	lastCreateTime int64
}

// Open opens (creating if needed) the database at cfg.Path. Any failure is
// reported as apperrors.ErrStorageUnavailable.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	p, err := openPool(cfg.Path, cfg.PoolSize, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}

	s := &Store{pool: p, clock: cfg.Clock, logger: cfg.Logger}
	if err := s.init(ctx); err != nil {
		p.close()
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return sqlitex.Execute(conn, "SELECT COALESCE(MAX(create_time), 0) FROM log_details", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			s.lastCreateTime = stmt.ColumnInt64(0)
			return nil
		},
	})
}

// Close closes the connection pool, waiting for borrowed connections.
func (s *Store) Close() error {
	return s.pool.close()
}

// nextCreateTime returns the current Unix millisecond time, bumped past the
// previous value when the clock has not advanced or moved backwards.
func (s *Store) nextCreateTime() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now().UnixMilli()
	if now <= s.lastCreateTime {
		now = s.lastCreateTime + 1
	}
	s.lastCreateTime = now
	return now
}

// LastCreateTime returns the most recently assigned create time.
func (s *Store) LastCreateTime() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCreateTime
}

// appendResult is what one append transaction changed.
type appendResult struct {
	id      int64
	total   int64
	evicted int
}

// Append persists content for appKey and returns the new entry's create time.
// When the app's total exceeds quota the oldest entries of that app key are
// deleted until the total is at most EvictionRatio × quota. The new entry is
// never evicted, even when it alone exceeds the quota.
func (s *Store) Append(ctx context.Context, appKey string, quota int64, content model.Content) (int64, error) {
	if quota <= 0 {
		return 0, apperrors.NewConfigError("bytesQuota", "must be positive, got %d", quota)
	}
	blob, err := encodeContent(content)
	if err != nil {
		return 0, err
	}

	res, err := s.append(ctx, appKey, quota, content, blob)
	if err != nil {
		return 0, fmt.Errorf("append to %s: %w", appKey, err)
	}

	metrics.EntryAppended(appKey, res.total)
	if res.evicted > 0 {
		metrics.EntriesEvicted(appKey, res.evicted, res.total)
		s.logger.Debug().
			Str("app_key", appKey).
			Int("evicted", res.evicted).
			Int64("total_size", res.total).
			Msg("quota exceeded, evicted oldest entries")
	}
	return res.id, nil
}

func (s *Store) append(ctx context.Context, appKey string, quota int64, content model.Content, blob []byte) (res appendResult, err error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return res, err
	}
	defer s.pool.put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return res, fmt.Errorf("begin transaction: %w", err)
	}
	defer endTransaction(&err)

	total, err := readTotalSize(conn, appKey)
	if err != nil {
		return res, err
	}

	res.id = s.nextCreateTime()
	size := content.Size()
	err = sqlitex.Execute(conn,
		"INSERT INTO log_details (create_time, app_key, level, size, content) VALUES (?, ?, ?, ?, ?)",
		&sqlitex.ExecOptions{Args: []any{res.id, appKey, int(content.Level), size, blob}})
	if err != nil {
		return res, fmt.Errorf("insert entry: %w", err)
	}
	total += size

	if total > quota {
		total, res.evicted, err = evict(conn, appKey, res.id, total, quota)
		if err != nil {
			return res, err
		}
	}

	res.total = total
	err = writeTotalSize(conn, appKey, total)
	return res, err
}

// errStopScan ends a ResultFunc iteration early.
var errStopScan = errors.New("stop scan")

// evict walks the app's entries oldest first, excluding newest, and deletes
// them until current is within EvictionRatio × quota.
func evict(conn *sqlite.Conn, appKey string, newest, current, quota int64) (int64, int, error) {
	threshold := EvictionRatio * float64(quota)
	var cutoff int64 = -1
	evicted := 0

	err := sqlitex.Execute(conn,
		"SELECT create_time, size FROM log_details WHERE app_key = ? AND create_time < ? ORDER BY create_time ASC",
		&sqlitex.ExecOptions{
			Args: []any{appKey, newest},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				if float64(current) <= threshold {
					return errStopScan
				}
				cutoff = stmt.ColumnInt64(0)
				current -= stmt.ColumnInt64(1)
				evicted++
				return nil
			},
		})
	if err != nil && !errors.Is(err, errStopScan) {
		return 0, 0, fmt.Errorf("scan for eviction: %w", err)
	}
	if evicted == 0 {
		return current, 0, nil
	}

	err = sqlitex.Execute(conn,
		"DELETE FROM log_details WHERE app_key = ? AND create_time <= ?",
		&sqlitex.ExecOptions{Args: []any{appKey, cutoff}})
	if err != nil {
		return 0, 0, fmt.Errorf("evict entries: %w", err)
	}
	return current, evicted, nil
}

func readTotalSize(conn *sqlite.Conn, appKey string) (int64, error) {
	var total int64
	err := sqlitex.Execute(conn, "SELECT total_size FROM app_status WHERE app_key = ?", &sqlitex.ExecOptions{
		Args: []any{appKey},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			total = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("read total size: %w", err)
	}
	return total, nil
}

func writeTotalSize(conn *sqlite.Conn, appKey string, total int64) error {
	err := sqlitex.Execute(conn,
		`INSERT INTO app_status (app_key, total_size) VALUES (?, ?)
		 ON CONFLICT(app_key) DO UPDATE SET total_size = excluded.total_size`,
		&sqlitex.ExecOptions{Args: []any{appKey, total}})
	if err != nil {
		return fmt.Errorf("write total size: %w", err)
	}
	return nil
}

// Status returns the running total for appKey. An app key with no entries has
// a zero total.
func (s *Store) Status(ctx context.Context, appKey string) (model.AppStatus, error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return model.AppStatus{}, err
	}
	defer s.pool.put(conn)

	total, err := readTotalSize(conn, appKey)
	if err != nil {
		return model.AppStatus{}, err
	}
	return model.AppStatus{AppKey: appKey, TotalSize: total}, nil
}

// WipeAll deletes every entry and every app status row.
func (s *Store) WipeAll(ctx context.Context) (err error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer endTransaction(&err)

	if err = sqlitex.ExecuteScript(conn, "DELETE FROM log_details; DELETE FROM app_status;", nil); err != nil {
		return fmt.Errorf("wipe: %w", err)
	}
	s.logger.Debug().Msg("store wiped")
	return nil
}

// DeleteDatabase removes the database file at path along with its WAL and
// shared-memory siblings. Missing files are not an error. The store using the
// file must be closed first.
func DeleteDatabase(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete %s: %w", p, err)
		}
	}
	return nil
}
