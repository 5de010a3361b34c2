package webhook

import (
	"context"
	"sort"
	"sync"
)

type memoryRepository struct {
	mu     sync.RWMutex
	events map[string]Event
}

// NewMemoryRepository constructs an in-memory event store for tests and development.
func NewMemoryRepository() Store {
	return &memoryRepository{events: make(map[string]Event)}
}

func (r *memoryRepository) Insert(_ context.Context, ev Event) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.events[ev.EventID]; exists {
		return false, nil
	}
	r.events[ev.EventID] = ev
	return true, nil
}

func (r *memoryRepository) FindByEventID(_ context.Context, eventID string) (Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.events[eventID]
	if !ok {
		return Event{}, ErrEventNotFound
	}
	return ev, nil
}

func (r *memoryRepository) ListRetryable(_ context.Context, maxAttempts, limit int) ([]Event, error) {
	r.mu.RLock()
	out := []Event{}
	for _, ev := range r.events {
		if (ev.Status == StatusPending || ev.Status == StatusFailed) && ev.AttemptCount < maxAttempts {
			out = append(out, ev)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepository) Save(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[ev.EventID]; !ok {
		return ErrEventNotFound
	}
	r.events[ev.EventID] = ev
	return nil
}
