package store

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/coffersTech/logbuf/internal/apperrors"
	"github.com/coffersTech/logbuf/internal/model"
)

// Stats summarizes what is stored for one app key.
type Stats struct {
	AppKey    string         `json:"appKey"`
	Count     int64          `json:"count"`
	TotalSize int64          `json:"totalSize"`
	Oldest    int64          `json:"oldest,omitempty"` // create time, Unix ms
	Newest    int64          `json:"newest,omitempty"`
	Levels    map[string]int `json:"levels"`
}

// HistogramPoint is the entry count of one time bucket starting at Time.
type HistogramPoint struct {
	Time  int64 `json:"time"`
	Count int   `json:"count"`
}

// Stats returns entry counts, size and level distribution for appKey.
func (s *Store) Stats(ctx context.Context, appKey string) (Stats, error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return Stats{}, err
	}
	defer s.pool.put(conn)

	st := Stats{AppKey: appKey, Levels: make(map[string]int)}
	err = sqlitex.Execute(conn,
		`SELECT COUNT(*), COALESCE(MIN(create_time), 0), COALESCE(MAX(create_time), 0)
		 FROM log_details WHERE app_key = ?`,
		&sqlitex.ExecOptions{
			Args: []any{appKey},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				st.Count = stmt.ColumnInt64(0)
				st.Oldest = stmt.ColumnInt64(1)
				st.Newest = stmt.ColumnInt64(2)
				return nil
			},
		})
	if err != nil {
		return Stats{}, fmt.Errorf("stats %s: %w", appKey, err)
	}

	err = sqlitex.Execute(conn,
		"SELECT level, COUNT(*) FROM log_details WHERE app_key = ? GROUP BY level",
		&sqlitex.ExecOptions{
			Args: []any{appKey},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				st.Levels[model.Level(stmt.ColumnInt(0)).String()] = stmt.ColumnInt(1)
				return nil
			},
		})
	if err != nil {
		return Stats{}, fmt.Errorf("level stats %s: %w", appKey, err)
	}

	if st.TotalSize, err = readTotalSize(conn, appKey); err != nil {
		return Stats{}, err
	}
	return st, nil
}

// Histogram counts appKey's entries in [start, end] per interval-wide bucket.
// Buckets are aligned to multiples of interval and returned in ascending
// order; empty buckets are omitted.
func (s *Store) Histogram(ctx context.Context, appKey string, start, end, interval int64) ([]HistogramPoint, error) {
	if start > end {
		return nil, apperrors.NewQueryParameterError("start %d is after end %d", start, end)
	}
	if interval <= 0 {
		return nil, apperrors.NewQueryParameterError("interval must be positive, got %d", interval)
	}

	conn, err := s.pool.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.put(conn)

	var points []HistogramPoint
	err = sqlitex.Execute(conn,
		`SELECT (create_time / ?) * ? AS bucket, COUNT(*)
		 FROM log_details WHERE app_key = ? AND create_time BETWEEN ? AND ?
		 GROUP BY bucket ORDER BY bucket ASC`,
		&sqlitex.ExecOptions{
			Args: []any{interval, interval, appKey, start, end},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				points = append(points, HistogramPoint{Time: stmt.ColumnInt64(0), Count: stmt.ColumnInt(1)})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("histogram %s: %w", appKey, err)
	}
	return points, nil
}
