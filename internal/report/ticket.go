package report

import (
	"context"
	"sync"
)

// Ticket tracks delivery of the records passed to one Enqueue call. It
// resolves once every batch carrying any of those records has been sent,
// successfully or not, and reports the first failure.
type Ticket struct {
	mu      sync.Mutex
	pending int
	err     error
	done    chan struct{}
}

func newTicket() *Ticket {
	return &Ticket{done: make(chan struct{})}
}

// Resolved returns a ticket that is already settled with err.
func Resolved(err error) *Ticket {
	t := newTicket()
	t.err = err
	close(t.done)
	return t
}

// attach is called once per batch the ticket's records land in, before that
// batch can be sent.
func (t *Ticket) attach() {
	t.mu.Lock()
	t.pending++
	t.mu.Unlock()
}

func (t *Ticket) settle(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil && t.err == nil {
		t.err = err
	}
	t.pending--
	if t.pending == 0 {
		close(t.done)
	}
}

// Done is closed when the ticket resolves.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Err returns the first send failure. It is only meaningful after Done.
func (t *Ticket) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Wait blocks until the ticket resolves or ctx is done.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
