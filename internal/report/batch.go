package report

import (
	"sync"

	"github.com/coffersTech/logbuf/internal/model"
)

// batch is one future request body.
type batch struct {
	records []model.BizInfo
	tickets []*Ticket
	settled sync.Once
}

func (b *batch) add(records []model.BizInfo, t *Ticket) {
	b.records = append(b.records, records...)
	for _, existing := range b.tickets {
		if existing == t {
			return
		}
	}
	b.tickets = append(b.tickets, t)
	t.attach()
}

// settle resolves the batch's share of each ticket. Only the first call has
// an effect.
func (b *batch) settle(err error) {
	b.settled.Do(func() {
		for _, t := range b.tickets {
			t.settle(err)
		}
	})
}

// group holds the pending batches for one destination URL.
type group struct {
	url          string
	preferBeacon bool
	batches      []*batch

	// open is the batch small records are merged into; nil when the next
	// small record must start a new one.
	open     *batch
	openSize int
}

func (g *group) newBatch() *batch {
	b := &batch{}
	g.batches = append(g.batches, b)
	return b
}

// detach hands over every pending batch and resets the group.
func (g *group) detach() []*batch {
	batches := g.batches
	g.batches = nil
	g.open = nil
	g.openSize = 0
	return batches
}

// splitEven cuts records into pieces consecutive slices whose lengths differ
// by at most one. pieces is clamped to [1, len(records)].
func splitEven(records []model.BizInfo, pieces int) [][]model.BizInfo {
	if len(records) == 0 {
		return nil
	}
	if pieces < 1 {
		pieces = 1
	}
	if pieces > len(records) {
		pieces = len(records)
	}
	base, extra := len(records)/pieces, len(records)%pieces
	out := make([][]model.BizInfo, 0, pieces)
	start := 0
	for i := 0; i < pieces; i++ {
		n := base
		if i < extra {
			n++
		}
		out = append(out, records[start:start+n])
		start += n
	}
	return out
}
