package transport

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBeaconCapacity is the number of bodies a Beacon holds before Send
// starts refusing.
const DefaultBeaconCapacity = 256

// beaconTimeout bounds one background delivery.
const beaconTimeout = 10 * time.Second

type beaconJob struct {
	url  string
	body []byte
}

// Beacon queues bodies for background delivery. Callers learn only whether a
// body was accepted, never whether it arrived.
type Beacon struct {
	client *Client
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
	queue  chan beaconJob
	done   chan struct{}
}

// NewBeacon starts the delivery worker. capacity <= 0 uses
// DefaultBeaconCapacity.
func NewBeacon(client *Client, capacity int, logger zerolog.Logger) *Beacon {
	if capacity <= 0 {
		capacity = DefaultBeaconCapacity
	}
	b := &Beacon{
		client: client,
		logger: logger,
		queue:  make(chan beaconJob, capacity),
		done:   make(chan struct{}),
	}
	go b.run()
	return b
}

// Send queues body for url. It returns false when the beacon is closed or its
// queue is full.
func (b *Beacon) Send(url string, body []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	select {
	case b.queue <- beaconJob{url: url, body: body}:
		return true
	default:
		return false
	}
}

func (b *Beacon) run() {
	defer close(b.done)
	for job := range b.queue {
		// Detached from any caller so a cancelled request or shutting-down
		// caller does not abort the delivery.
		_, err := b.client.Post(context.Background(), job.url, job.body, beaconTimeout)
		if err != nil {
			b.logger.Warn().Err(err).Str("url", job.url).Msg("beacon delivery failed")
		}
	}
}

// Close stops accepting bodies and waits for queued ones to be delivered or
// for ctx to be done.
func (b *Beacon) Close(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
