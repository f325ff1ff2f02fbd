// Package report batches outbound report records per destination and ships
// them on a debounce.
//
// Small record sets are merged into a shared batch, very large ones are split
// into roughly 1 MiB pieces, and everything in between travels as-is. Each
// Enqueue restarts a single debounce timer; when it expires every pending
// batch is sent in chunks of ConcurrencyLimit. Sends within a chunk run
// concurrently and the next chunk starts only after the previous one has
// settled. Delivery is at most once: a failed batch is dropped.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/coffersTech/logbuf/internal/apperrors"
	"github.com/coffersTech/logbuf/internal/clock"
	"github.com/coffersTech/logbuf/internal/metrics"
	"github.com/coffersTech/logbuf/internal/model"
	"github.com/coffersTech/logbuf/internal/queue"
)

const (
	// MergeThreshold is the encoded size below which records are merged.
	MergeThreshold = 1024
	// SplitThreshold is the encoded size above which records are split.
	SplitThreshold = 2 * 1024 * 1024
	// TargetBatchSize is the nominal size of a merged or split batch.
	TargetBatchSize = 1024 * 1024
	// DebounceInterval is how long the dispatcher waits for more records.
	DebounceInterval = 1500 * time.Millisecond
	// ConcurrencyLimit is the number of sends in flight per chunk.
	ConcurrencyLimit = 5
)

// Sender delivers one payload.
type Sender interface {
	Send(ctx context.Context, url string, payload model.Payload, preferBeacon bool) error
}

// EnvSource supplies the envInfo attached to every payload.
type EnvSource interface {
	Collect() model.EnvInfo
}

// Options configures a Dispatcher. Sender and Env are required.
type Options struct {
	Sender Sender
	Env    EnvSource
	Clock  clock.Clock
	Logger zerolog.Logger
}

// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	sender Sender
	env    EnvSource
	clock  clock.Clock
	logger zerolog.Logger
	chunks *queue.Queue

	mu     sync.Mutex
	groups map[string]*group
	order  []string
	timer  *clock.Timer
	closed bool
}

// New returns a Dispatcher.
func New(opts Options) (*Dispatcher, error) {
	if opts.Sender == nil {
		return nil, fmt.Errorf("report: Sender is required")
	}
	if opts.Env == nil {
		return nil, fmt.Errorf("report: Env is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &Dispatcher{
		sender: opts.Sender,
		env:    opts.Env,
		clock:  opts.Clock,
		logger: opts.Logger,
		chunks: queue.New("report", opts.Logger),
		groups: make(map[string]*group),
	}, nil
}

// Enqueue schedules records for delivery to url. preferBeacon is fixed by the
// first Enqueue for a url. The returned Ticket resolves once all of records
// have been sent.
func (d *Dispatcher) Enqueue(url string, records []model.BizInfo, preferBeacon bool) *Ticket {
	if len(records) == 0 {
		return Resolved(nil)
	}
	encoded, err := json.Marshal(records)
	if err != nil {
		return Resolved(fmt.Errorf("encoding records: %w", err))
	}
	size := len(encoded)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return Resolved(fmt.Errorf("report: %w", apperrors.ErrClosed))
	}

	g, ok := d.groups[url]
	if !ok {
		g = &group{url: url, preferBeacon: preferBeacon}
		d.groups[url] = g
		d.order = append(d.order, url)
	}

	t := newTicket()
	switch {
	case size < MergeThreshold:
		if g.open != nil && g.openSize > TargetBatchSize {
			g.open = nil
		}
		if g.open == nil {
			g.open = g.newBatch()
			g.openSize = 0
		}
		g.open.add(records, t)
		g.openSize += size
	case size > SplitThreshold:
		pieces := (size + TargetBatchSize - 1) / TargetBatchSize
		for _, piece := range splitEven(records, pieces) {
			g.newBatch().add(piece, t)
		}
		g.open = nil
	default:
		g.newBatch().add(records, t)
		g.open = nil
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.clock.AfterFunc(DebounceInterval, d.onDebounce)
	return t
}

func (d *Dispatcher) onDebounce() {
	d.flush(context.Background())
}

// FlushNow sends everything pending without waiting for the debounce and
// blocks until those sends settle or ctx is done. It returns the first send
// failure.
func (d *Dispatcher) FlushNow(ctx context.Context) error {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	var firstErr error
	for _, h := range d.flush(ctx) {
		if _, err := h.Wait(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type send struct {
	url          string
	preferBeacon bool
	batch        *batch
}

// flush detaches every pending batch and queues them in chunks. Records that
// arrive after the detach start fresh batches.
func (d *Dispatcher) flush(ctx context.Context) []*queue.Handle {
	d.mu.Lock()
	var chunks [][]send
	for _, url := range d.order {
		g := d.groups[url]
		var chunk []send
		for _, b := range g.detach() {
			chunk = append(chunk, send{url: url, preferBeacon: g.preferBeacon, batch: b})
			if len(chunk) == ConcurrencyLimit {
				chunks = append(chunks, chunk)
				chunk = nil
			}
		}
		if len(chunk) > 0 {
			chunks = append(chunks, chunk)
		}
	}
	d.mu.Unlock()

	if len(chunks) == 0 {
		return nil
	}
	metrics.Flushed()

	env := d.env.Collect()
	handles := make([]*queue.Handle, 0, len(chunks))
	for _, chunk := range chunks {
		handles = append(handles, d.chunks.Enqueue(ctx, func(ctx context.Context) (any, error) {
			return nil, d.sendChunk(ctx, chunk, env)
		}))
	}
	// A chunk the queue skipped or that panicked leaves batches unsettled;
	// settle them with the task's error so no ticket waits forever.
	for i, h := range handles {
		chunk := chunks[i]
		go func() {
			<-h.Done()
			if _, err := h.Wait(context.Background()); err != nil {
				for _, s := range chunk {
					s.batch.settle(err)
				}
			}
		}()
	}
	return handles
}

func (d *Dispatcher) sendChunk(ctx context.Context, chunk []send, env model.EnvInfo) error {
	var g errgroup.Group
	for _, s := range chunk {
		g.Go(func() error {
			payload := model.Payload{BizInfo: s.batch.records, EnvInfo: env}
			err := d.sender.Send(ctx, s.url, payload, s.preferBeacon)
			if err != nil {
				d.logger.Warn().Err(err).Str("url", s.url).Int("records", len(s.batch.records)).
					Msg("report batch dropped")
			}
			s.batch.settle(err)
			return err
		})
	}
	return g.Wait()
}

// ImmediateReport sends payload to url right away, bypassing batching and
// the debounce.
func (d *Dispatcher) ImmediateReport(ctx context.Context, url string, payload model.Payload, preferBeacon bool) error {
	return d.sender.Send(ctx, url, payload, preferBeacon)
}

// Pending returns the number of batches waiting for the next flush.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, g := range d.groups {
		n += len(g.batches)
	}
	return n
}

// Close stops the debounce timer, flushes what is pending, and stops the
// chunk queue. Enqueue afterwards resolves with ErrClosed.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	err := d.FlushNow(ctx)
	if qerr := d.chunks.Close(ctx); qerr != nil && err == nil {
		err = qerr
	}
	return err
}
