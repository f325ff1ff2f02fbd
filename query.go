package logbuf

import (
	"context"
	"math"
	"time"

	"github.com/coffersTech/logbuf/internal/apperrors"
	"github.com/coffersTech/logbuf/internal/model"
	"github.com/coffersTech/logbuf/internal/queue"
	"github.com/coffersTech/logbuf/internal/report"
)

const day = 24 * time.Hour

// QueryByDays returns the entries created in the last |days| days, oldest
// first. Fractional days are allowed; 0 means DefaultQueryDays.
func (l *Logger) QueryByDays(ctx context.Context, days float64) ([]LogEntry, error) {
	if err := l.acquire(ErrNotSupported); err != nil {
		return nil, err
	}
	defer l.release()
	return l.queryByDays(ctx, days)
}

func (l *Logger) queryByDays(ctx context.Context, days float64) ([]LogEntry, error) {
	start, end, err := l.dayRange(days)
	if err != nil {
		return nil, err
	}
	entries, err := l.store.QueryRange(ctx, l.opts.AppKey, start, end)
	if err != nil {
		return nil, err
	}
	l.echo.Print("query result log items", map[string]any{"count": len(entries)})
	return entries, nil
}

func (l *Logger) dayRange(days float64) (start, end int64, err error) {
	if math.IsNaN(days) || math.IsInf(days, 0) {
		return 0, 0, apperrors.NewQueryParameterError("days should be a finite number, got %v", days)
	}
	if days == 0 {
		days = DefaultQueryDays
	}
	if days > 0 {
		days = -days
	}
	now := l.clock.Now()
	start = now.Add(time.Duration(days * float64(day))).UnixMilli()
	// Create times of a write burst can run a few ms ahead of the clock.
	end = max(now.UnixMilli(), l.store.LastCreateTime())
	return start, end, nil
}

// QueryByContent returns the entries whose text contains text, oldest first.
func (l *Logger) QueryByContent(ctx context.Context, text string) ([]LogEntry, error) {
	if err := l.acquire(ErrNotSupported); err != nil {
		return nil, err
	}
	defer l.release()
	entries, err := l.store.QueryByContent(ctx, l.opts.AppKey, text)
	if err != nil {
		return nil, err
	}
	l.echo.Print("query result log items", map[string]any{"count": len(entries)})
	return entries, nil
}

// Report sends the entries of the last |days| days to the collector. By
// default they go through the batching dispatcher and the returned Ticket
// resolves once they have been sent. With immediate set they are sent in one
// request before Report returns, and a send failure is returned as the error.
// Without a report URL Report does nothing and returns a resolved Ticket.
func (l *Logger) Report(ctx context.Context, days float64, immediate bool) (*Ticket, error) {
	if err := l.acquire(ErrNotSupported); err != nil {
		return nil, err
	}
	entries, err := l.queryByDays(ctx, days)
	l.release()
	if err != nil {
		return nil, err
	}
	if l.dispatcher == nil {
		return report.Resolved(nil), nil
	}

	records := model.FormatReport(entries)
	if immediate {
		payload := model.Payload{BizInfo: records, EnvInfo: l.env.Collect()}
		err := l.dispatcher.ImmediateReport(ctx, l.opts.ReportURL, payload, l.opts.EnableFireAndForget)
		return report.Resolved(err), err
	}
	return l.dispatcher.Enqueue(l.opts.ReportURL, records, l.opts.EnableFireAndForget), nil
}

// Flush sends every pending report batch now and waits for the sends.
func (l *Logger) Flush(ctx context.Context) error {
	if l.dispatcher == nil {
		return nil
	}
	return l.dispatcher.FlushNow(ctx)
}

// Stats summarizes what is stored for the logger's app key.
func (l *Logger) Stats(ctx context.Context) (Stats, error) {
	if err := l.acquire(ErrNotSupported); err != nil {
		return Stats{}, err
	}
	defer l.release()
	return l.store.Stats(ctx, l.opts.AppKey)
}

// Histogram counts stored entries between start and end per interval.
func (l *Logger) Histogram(ctx context.Context, start, end time.Time, interval time.Duration) ([]HistogramPoint, error) {
	if err := l.acquire(ErrNotSupported); err != nil {
		return nil, err
	}
	defer l.release()
	return l.store.Histogram(ctx, l.opts.AppKey, start.UnixMilli(), end.UnixMilli(), interval.Milliseconds())
}

// Wipe deletes every stored entry for every app key.
func (l *Logger) Wipe(ctx context.Context) error {
	if err := l.acquire(ErrNotSupported); err != nil {
		return err
	}
	defer l.release()
	_, err := queue.Do(ctx, l.writes, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, l.store.WipeAll(ctx)
	})
	return err
}
