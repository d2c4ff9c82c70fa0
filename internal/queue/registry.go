package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tvbridge/internal/signal"
)

// Registry holds the channel queues. Channels are statically known at
// startup; the map never changes afterwards, the lock only guards against
// registration racing an early HTTP request.
type Registry struct {
	mu     sync.RWMutex
	queues map[string]*Queue
}

func NewRegistry() *Registry {
	return &Registry{queues: map[string]*Queue{}}
}

func (r *Registry) Register(q *Queue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues[q.Channel()] = q
}

func (r *Registry) Get(channel string) (*Queue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queues[channel]
	return q, ok
}

// All returns the queues in stable channel order.
func (r *Registry) All() []*Queue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Queue, 0, len(r.queues))
	for _, q := range r.queues {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel() < out[j].Channel() })
	return out
}

// Enqueue routes a signal to its channel queue. Unknown channels are a
// caller error, not a silent drop.
func (r *Registry) Enqueue(ctx context.Context, channel string, sig signal.Signal) (uint, error) {
	q, ok := r.Get(channel)
	if !ok {
		return 0, fmt.Errorf("unknown channel %q", channel)
	}
	return q.Enqueue(ctx, sig)
}
