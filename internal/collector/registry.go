package collector

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coffersTech/logbuf/internal/clock"
)

// Client is a reporting process, identified by its instance id.
type Client struct {
	InstanceID   string `json:"instanceId"`
	Platform     string `json:"platform"`
	UserAgent    string `json:"userAgent"`
	IP           string `json:"ip"`
	RegisteredAt int64  `json:"registeredAt"`
	LastSeenAt   int64  `json:"lastSeenAt"`
	Reports      int64  `json:"reports"`
	Records      int64  `json:"records"`
}

// Registry tracks the clients that have reported recently.
type Registry struct {
	clock clock.Clock

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry returns an empty registry.
func NewRegistry(c clock.Clock) *Registry {
	if c == nil {
		c = clock.Real()
	}
	return &Registry{clock: c, clients: make(map[string]*Client)}
}

// Observe records one report of n records from client. RegisteredAt is kept
// from the first observation.
func (r *Registry) Observe(client Client, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now().Unix()
	if existing, ok := r.clients[client.InstanceID]; ok {
		client.RegisteredAt = existing.RegisteredAt
		client.Reports = existing.Reports
		client.Records = existing.Records
	} else {
		client.RegisteredAt = now
	}
	client.LastSeenAt = now
	client.Reports++
	client.Records += int64(n)
	r.clients[client.InstanceID] = &client
}

// Get returns a copy of the client with instanceID.
func (r *Registry) Get(instanceID string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[instanceID]
	if !ok {
		return Client{}, false
	}
	return *c, true
}

// List returns all clients, most recently seen first.
func (r *Registry) List() []Client {
	r.mu.RLock()
	list := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		list = append(list, *c)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].LastSeenAt != list[j].LastSeenAt {
			return list[i].LastSeenAt > list[j].LastSeenAt
		}
		return list[i].InstanceID < list[j].InstanceID
	})
	return list
}

// Prune removes clients not seen within timeout and returns how many.
func (r *Registry) Prune(timeout time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.clock.Now().Add(-timeout).Unix()
	count := 0
	for id, c := range r.clients {
		if c.LastSeenAt < cutoff {
			delete(r.clients, id)
			count++
		}
	}
	return count
}

// RunCleanup prunes stale clients every interval until ctx is done.
func (r *Registry) RunCleanup(ctx context.Context, interval, timeout time.Duration) {
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Prune(timeout)
		case <-ctx.Done():
			return
		}
	}
}
