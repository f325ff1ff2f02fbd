package store

import (
	"context"
	"fmt"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/coffersTech/logbuf/internal/apperrors"
	"github.com/coffersTech/logbuf/internal/model"
)

// QueryRange returns appKey's entries with start ≤ create time ≤ end in
// ascending order. Both bounds are Unix milliseconds.
func (s *Store) QueryRange(ctx context.Context, appKey string, start, end int64) ([]model.LogEntry, error) {
	if start > end {
		return nil, apperrors.NewQueryParameterError("start %d is after end %d", start, end)
	}
	return s.scan(ctx, appKey,
		"SELECT create_time, content FROM log_details WHERE app_key = ? AND create_time BETWEEN ? AND ? ORDER BY create_time ASC",
		[]any{appKey, start, end}, nil)
}

// QueryByContent returns appKey's entries whose text contains substr, in
// ascending order. It decodes every entry of the app key.
func (s *Store) QueryByContent(ctx context.Context, appKey, substr string) ([]model.LogEntry, error) {
	return s.scan(ctx, appKey,
		"SELECT create_time, content FROM log_details WHERE app_key = ? ORDER BY create_time ASC",
		[]any{appKey}, func(c model.Content) bool {
			return strings.Contains(c.Text, substr)
		})
}

func (s *Store) scan(ctx context.Context, appKey, query string, args []any, keep func(model.Content) bool) ([]model.LogEntry, error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.put(conn)

	var entries []model.LogEntry
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			blob := make([]byte, stmt.ColumnLen(1))
			stmt.ColumnBytes(1, blob)
			content, err := decodeContent(blob)
			if err != nil {
				return err
			}
			if keep != nil && !keep(content) {
				return nil
			}
			entries = append(entries, model.LogEntry{
				CreateTime: stmt.ColumnInt64(0),
				AppKey:     appKey,
				Content:    content,
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", appKey, err)
	}
	return entries, nil
}
