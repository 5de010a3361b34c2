package payments

import (
	"context"
	"sync"

	"github.com/tbc-meetup/walletd/internal/txn"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Record
}

// NewMemoryRepository constructs an in-memory repository for tests and development.
func NewMemoryRepository() Store {
	return &memoryRepository{storage: make(map[string]Record)}
}

func (r *memoryRepository) Create(ctx context.Context, rec Record) (Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.storage[rec.OrderID]; ok {
		return existing, false, nil
	}
	r.storage[rec.OrderID] = rec
	txn.OnRollback(ctx, func() {
		r.mu.Lock()
		delete(r.storage, rec.OrderID)
		r.mu.Unlock()
	})
	return rec, true, nil
}

func (r *memoryRepository) FindByOrderID(_ context.Context, orderID string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.storage[orderID]
	if !ok {
		return Record{}, ErrOrderNotFound
	}
	return rec, nil
}

func (r *memoryRepository) FindForUpdate(ctx context.Context, orderID string) (Record, error) {
	if !txn.InTx(ctx) {
		return Record{}, txn.ErrNoTransaction
	}
	return r.FindByOrderID(ctx, orderID)
}

func (r *memoryRepository) Save(ctx context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.storage[rec.OrderID]
	if !ok {
		return ErrOrderNotFound
	}
	r.storage[rec.OrderID] = rec
	txn.OnRollback(ctx, func() {
		r.mu.Lock()
		r.storage[prev.OrderID] = prev
		r.mu.Unlock()
	})
	return nil
}
