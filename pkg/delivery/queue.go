package delivery

import (
	"context"
	"sort"
	"sync"
	"time"
)

// RetryQueue schedules delivery retries by their due time.
type RetryQueue interface {
	// Schedule records that deliveryID becomes due at the given time.
	// Re-scheduling an already queued id moves its due time.
	Schedule(ctx context.Context, deliveryID string, at time.Time) error

	// Due pops every delivery due at or before now.
	Due(ctx context.Context, now time.Time) ([]string, error)

	Close() error
}

// MemoryQueue is the in-process RetryQueue used by tests and
// single-process deployments.
type MemoryQueue struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{entries: make(map[string]time.Time)}
}

func (q *MemoryQueue) Schedule(_ context.Context, deliveryID string, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries[deliveryID] = at

	return nil
}

func (q *MemoryQueue) Due(_ context.Context, now time.Time) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	type entry struct {
		id string
		at time.Time
	}

	var due []entry

	for id, at := range q.entries {
		if !at.After(now) {
			due = append(due, entry{id, at})
		}
	}

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })

	ids := make([]string, 0, len(due))

	for _, e := range due {
		delete(q.entries, e.id)
		ids = append(ids, e.id)
	}

	return ids, nil
}

func (q *MemoryQueue) Close() error { return nil }
