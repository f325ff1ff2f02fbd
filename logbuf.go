// Package logbuf buffers log events in a local quota-bounded store and ships
// them to a collector in size- and time-bounded batches.
//
//	logger, err := logbuf.New(ctx, logbuf.Options{
//		AppKey:    "checkout",
//		ReportURL: "https://collector.example.com/api/report",
//	})
//	if err != nil {
//		return err
//	}
//	defer logger.Close(ctx)
//
//	logger.Info(ctx, "payment started")
//	ticket, err := logger.Report(ctx, 1, false)
//
// A Logger whose store could not be opened stays usable but incapable: writes
// fail with ErrStorageUnavailable and queries and reports with ErrNotSupported.
package logbuf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coffersTech/logbuf/internal/apperrors"
	"github.com/coffersTech/logbuf/internal/clock"
	"github.com/coffersTech/logbuf/internal/config"
	"github.com/coffersTech/logbuf/internal/env"
	"github.com/coffersTech/logbuf/internal/logging"
	"github.com/coffersTech/logbuf/internal/model"
	"github.com/coffersTech/logbuf/internal/queue"
	"github.com/coffersTech/logbuf/internal/report"
	"github.com/coffersTech/logbuf/internal/store"
	"github.com/coffersTech/logbuf/internal/transport"
)

type (
	// Options configures a Logger. Zero fields take their defaults.
	Options = config.Options
	// Level is a log severity.
	Level = model.Level
	// LogEntry is a stored log record.
	LogEntry = model.LogEntry
	// Ticket resolves when the records of one Report call have been sent.
	Ticket = report.Ticket
	// Stats summarizes the stored entries of the logger's app key.
	Stats = store.Stats
	// HistogramPoint is one time bucket of a Histogram.
	HistogramPoint = store.HistogramPoint
)

const (
	LevelTrace  = model.LevelTrace
	LevelInfo   = model.LevelInfo
	LevelWarn   = model.LevelWarn
	LevelError  = model.LevelError
	LevelFatal  = model.LevelFatal
	LevelAssert = model.LevelAssert
)

var (
	ErrStorageUnavailable = apperrors.ErrStorageUnavailable
	ErrNotSupported       = apperrors.ErrNotSupported
	ErrClosed             = apperrors.ErrClosed
)

// ParseLevel parses a level name case-insensitively.
func ParseLevel(s string) (Level, error) {
	return model.ParseLevel(s)
}

// DefaultQueryDays is the look-back used when QueryByDays or Report is given 0.
const DefaultQueryDays = 1

// cleanerInterval is how often expired entries are purged when a retention
// period is configured.
const cleanerInterval = time.Hour

// Option customizes Logger construction.
type Option func(*settings)

type settings struct {
	logger     zerolog.Logger
	clock      clock.Clock
	httpClient *http.Client
	echo       io.Writer
	noStorage  bool
}

// WithLogger sets the operational logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(s *settings) { s.clock = c }
}

// WithHTTPClient sets the client used for report delivery.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.httpClient = c }
}

// WithEchoWriter redirects the diagnostic echo, which defaults to stderr.
func WithEchoWriter(w io.Writer) Option {
	return func(s *settings) { s.echo = w }
}

// WithoutStorage builds an incapable Logger that never opens a store.
func WithoutStorage() Option {
	return func(s *settings) { s.noStorage = true }
}

// Logger is the client-side telemetry buffer. It is safe for concurrent use.
type Logger struct {
	opts   Options
	clock  clock.Clock
	logger zerolog.Logger
	echo   *logging.Echo
	env    *env.Collector

	store  *store.Store
	writes *queue.Queue

	client     *transport.Client
	beacon     *transport.Beacon
	dispatcher *report.Dispatcher

	stopCleaner context.CancelFunc
	cleanerDone chan struct{}

	// life guards closed. Operations hold it shared while they use the
	// store; Close takes it exclusively.
	life   sync.RWMutex
	closed bool
}

// New validates opts and builds a Logger. Invalid options return a
// ConfigError. A store that fails to open does not fail New; the Logger is
// returned incapable instead.
func New(ctx context.Context, opts Options, options ...Option) (*Logger, error) {
	set := settings{logger: logging.Nop(), clock: clock.Real()}
	for _, o := range options {
		o(&set)
	}

	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	l := &Logger{
		opts:   opts,
		clock:  set.clock,
		logger: set.logger.With().Str("app_key", opts.AppKey).Logger(),
		echo:   logging.NewEcho(set.echo, opts.EnableDiagnosticEcho),
		env:    env.NewCollector(opts.StateDir),
	}

	if !set.noStorage {
		s, err := store.Open(ctx, store.Config{Path: opts.StoragePath, Clock: set.clock, Logger: l.logger})
		if err != nil {
			l.logger.Warn().Err(err).Str("path", opts.StoragePath).Msg("log storage unavailable")
		} else {
			l.store = s
			l.writes = queue.New("writes", l.logger)
		}
	}

	if opts.ReportingEnabled() {
		client, err := transport.NewClient(transport.ClientOptions{
			APIKey:     opts.APIKey,
			Compress:   opts.CompressReports,
			HTTPClient: set.httpClient,
			Logger:     l.logger,
		})
		if err != nil {
			l.closeStore()
			return nil, err
		}
		l.client = client
		if opts.EnableFireAndForget {
			l.beacon = transport.NewBeacon(client, 0, l.logger)
		}
		sender := transport.NewSender(client, l.beacon, transport.DefaultTimeout, l.logger)
		l.dispatcher, err = report.New(report.Options{Sender: sender, Env: l.env, Clock: set.clock, Logger: l.logger})
		if err != nil {
			l.closeStore()
			return nil, err
		}
	} else {
		l.echo.Print("report url is empty", nil)
	}

	if l.store != nil && opts.RetentionPeriod > 0 {
		cctx, cancel := context.WithCancel(context.Background())
		l.stopCleaner = cancel
		l.cleanerDone = make(chan struct{})
		go func() {
			defer close(l.cleanerDone)
			l.runCleaner(cctx)
		}()
	}
	return l, nil
}

// Capable reports whether the Logger has a persistent store and has not been
// closed.
func (l *Logger) Capable() bool {
	if l.store == nil {
		return false
	}
	l.life.RLock()
	defer l.life.RUnlock()
	return !l.closed
}

// acquire holds the store open until release. It returns incapable when there
// is no store and ErrClosed after Close.
func (l *Logger) acquire(incapable error) error {
	if l.store == nil {
		return incapable
	}
	l.life.RLock()
	if l.closed {
		l.life.RUnlock()
		return ErrClosed
	}
	return nil
}

func (l *Logger) release() {
	l.life.RUnlock()
}

// Options returns the effective options.
func (l *Logger) Options() Options {
	return l.opts
}

// Trace persists content at trace level. userID overrides the configured one.
func (l *Logger) Trace(ctx context.Context, content string, userID ...string) error {
	return l.Emit(ctx, LevelTrace, content, userID...)
}

// Info persists content at info level.
func (l *Logger) Info(ctx context.Context, content string, userID ...string) error {
	return l.Emit(ctx, LevelInfo, content, userID...)
}

// Warn persists content at warn level.
func (l *Logger) Warn(ctx context.Context, content string, userID ...string) error {
	return l.Emit(ctx, LevelWarn, content, userID...)
}

// Error persists content at error level.
func (l *Logger) Error(ctx context.Context, content string, userID ...string) error {
	return l.Emit(ctx, LevelError, content, userID...)
}

// Fatal persists content at fatal level. It does not exit the process.
func (l *Logger) Fatal(ctx context.Context, content string, userID ...string) error {
	return l.Emit(ctx, LevelFatal, content, userID...)
}

// Emit persists content at level and waits until the write has settled.
func (l *Logger) Emit(ctx context.Context, level Level, content string, userID ...string) error {
	if err := l.acquire(ErrStorageUnavailable); err != nil {
		return err
	}
	defer l.release()
	_, err := l.emit(ctx, level, content, userID...)
	return err
}

// emit requires the caller to hold acquire.
func (l *Logger) emit(ctx context.Context, level Level, text string, userID ...string) (model.LogEntry, error) {
	if !level.Valid() {
		return model.LogEntry{}, fmt.Errorf("invalid level %d", uint8(level))
	}
	c := l.content(level, text, userID...)
	l.echo.Print("save log content", map[string]any{"level": level.String(), "content": c.Text})

	id, err := queue.Do(ctx, l.writes, func(ctx context.Context) (int64, error) {
		return l.store.Append(ctx, l.opts.AppKey, l.opts.BytesQuota, c)
	})
	if err != nil {
		return model.LogEntry{}, err
	}
	if l.echo.Enabled() {
		if status, err := l.store.Status(ctx, l.opts.AppKey); err == nil {
			l.echo.Print("total log size", map[string]any{"totalSize": status.TotalSize})
		}
	}
	return model.LogEntry{CreateTime: id, AppKey: l.opts.AppKey, Content: c}, nil
}

// emitAsync queues a write without waiting for it. The caller must hold
// acquire; the queued task itself runs before Close releases the store.
func (l *Logger) emitAsync(ctx context.Context, level Level, text string) *queue.Handle {
	c := l.content(level, text)
	return l.writes.Enqueue(ctx, func(ctx context.Context) (any, error) {
		return l.store.Append(ctx, l.opts.AppKey, l.opts.BytesQuota, c)
	})
}

func (l *Logger) content(level Level, text string, userID ...string) model.Content {
	uid := l.opts.UserID
	if len(userID) > 0 && userID[0] != "" {
		uid = userID[0]
	}
	return model.Content{
		Text:      text,
		Level:     level,
		Timestamp: l.clock.Now().UnixMilli(),
		OriginURL: l.opts.OriginURL,
		UserID:    uid,
	}
}

// Assert does nothing when condition holds. Otherwise it persists an
// assertion-failure entry carrying the current stack and, when reporting is
// enabled, sends that entry to the collector right away.
func (l *Logger) Assert(ctx context.Context, condition bool, content string, userID ...string) error {
	if condition {
		return nil
	}
	if err := l.acquire(ErrStorageUnavailable); err != nil {
		return err
	}
	text := fmt.Sprintf("Assertion failed. Check the stack %s. Log content:%s", debug.Stack(), content)
	entry, err := l.emit(ctx, LevelAssert, text, userID...)
	l.release()
	if err != nil {
		return err
	}
	if l.dispatcher == nil {
		return nil
	}
	payload := model.Payload{
		BizInfo: []model.BizInfo{model.NewBizInfo(entry)},
		EnvInfo: l.env.Collect(),
	}
	return l.dispatcher.ImmediateReport(ctx, l.opts.ReportURL, payload, l.opts.EnableFireAndForget)
}

// Close stops retention, flushes pending reports (bounded by ctx), drains the
// fire-and-forget queue and the write queue, and closes the store. It waits
// for operations already using the store; later calls fail with ErrClosed.
// If the write queue cannot drain before ctx is done the store is left open
// so the queued writes can still finish.
func (l *Logger) Close(ctx context.Context) error {
	l.life.Lock()
	if l.closed {
		l.life.Unlock()
		return nil
	}
	l.closed = true
	l.life.Unlock()

	var errs []error
	if l.stopCleaner != nil {
		l.stopCleaner()
		<-l.cleanerDone
	}
	if l.dispatcher != nil {
		if err := l.dispatcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flushing reports: %w", err))
		}
	}
	if l.beacon != nil {
		if err := l.beacon.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("draining beacon: %w", err))
		}
	}
	if l.client != nil {
		l.client.Close()
	}
	if l.writes != nil {
		if err := l.writes.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("draining writes: %w", err))
			return errors.Join(errs...)
		}
	}
	if err := l.closeStore(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (l *Logger) closeStore() error {
	if l.store == nil {
		return nil
	}
	return l.store.Close()
}

// runCleaner purges entries older than the retention period every
// cleanerInterval until ctx is done. Purges go through the write queue like
// every other store write.
func (l *Logger) runCleaner(ctx context.Context) {
	ticker := l.clock.NewTicker(cleanerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := l.clock.Now().Add(-l.opts.RetentionPeriod)
			removed, err := queue.Do(ctx, l.writes, func(ctx context.Context) (int, error) {
				return l.store.PurgeBefore(ctx, l.opts.AppKey, cutoff)
			})
			if err != nil {
				if ctx.Err() == nil {
					l.logger.Warn().Err(err).Msg("retention purge failed")
				}
				continue
			}
			if removed > 0 {
				l.logger.Debug().Int("removed", removed).Time("cutoff", cutoff).Msg("retention purge")
			}
		}
	}
}

// DeleteLogDB removes the database at path, or the default database when
// path is empty. Loggers using it must be closed first.
func DeleteLogDB(path string) error {
	if path == "" {
		path = config.DefaultStoragePath
	}
	return store.DeleteDatabase(path)
}
