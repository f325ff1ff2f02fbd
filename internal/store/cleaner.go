package store

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/coffersTech/logbuf/internal/metrics"
)

// PurgeBefore deletes appKey's entries created before cutoff and recomputes
// the app's total from what remains.
func (s *Store) PurgeBefore(ctx context.Context, appKey string, cutoff time.Time) (removed int, err error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.put(conn)

	total, removed, err := purge(conn, appKey, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge %s: %w", appKey, err)
	}
	if removed > 0 {
		metrics.EntriesEvicted(appKey, removed, total)
		s.logger.Debug().Str("app_key", appKey).Int("removed", removed).Msg("expired entries purged")
	}
	return removed, nil
}

func purge(conn *sqlite.Conn, appKey string, cutoff int64) (total int64, removed int, err error) {
	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn, "DELETE FROM log_details WHERE app_key = ? AND create_time < ?",
		&sqlitex.ExecOptions{Args: []any{appKey, cutoff}})
	if err != nil {
		return 0, 0, err
	}
	removed = conn.Changes()

	err = sqlitex.Execute(conn, "SELECT COALESCE(SUM(size), 0) FROM log_details WHERE app_key = ?",
		&sqlitex.ExecOptions{
			Args: []any{appKey},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				total = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return 0, 0, err
	}
	return total, removed, writeTotalSize(conn, appKey, total)
}
