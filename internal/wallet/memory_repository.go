package wallet

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tbc-meetup/walletd/internal/txn"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[int64]Wallet
}

// NewMemoryRepository constructs an in-memory repository for tests and
// development. Row locks are provided by txn.MemoryTransactor, which
// serializes all memory transactions.
func NewMemoryRepository() Store {
	return &memoryRepository{storage: make(map[int64]Wallet)}
}

func (r *memoryRepository) GetOrCreate(ctx context.Context, userID int64) (Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.storage[userID]; ok {
		return w, nil
	}
	now := time.Now().UTC()
	w := Wallet{ID: uuid.New(), UserID: userID, CreatedAt: now, UpdatedAt: now}
	r.storage[userID] = w
	txn.OnRollback(ctx, func() { r.delete(userID) })
	return w, nil
}

func (r *memoryRepository) delete(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.storage, userID)
}

func (r *memoryRepository) FindByUserID(_ context.Context, userID int64) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.storage[userID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w, nil
}

func (r *memoryRepository) FindForUpdate(ctx context.Context, userID int64) (Wallet, error) {
	if !txn.InTx(ctx) {
		return Wallet{}, txn.ErrNoTransaction
	}
	return r.FindByUserID(ctx, userID)
}

func (r *memoryRepository) Save(ctx context.Context, wallet Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.storage[wallet.UserID]
	if !ok || prev.ID != wallet.ID {
		return ErrWalletNotFound
	}
	r.storage[wallet.UserID] = wallet
	txn.OnRollback(ctx, func() {
		r.mu.Lock()
		r.storage[prev.UserID] = prev
		r.mu.Unlock()
	})
	return nil
}

func (r *memoryRepository) List(_ context.Context, afterUserID int64, limit int) ([]Wallet, error) {
	r.mu.RLock()
	wallets := make([]Wallet, 0, len(r.storage))
	for _, w := range r.storage {
		if w.UserID > afterUserID {
			wallets = append(wallets, w)
		}
	}
	r.mu.RUnlock()

	sort.Slice(wallets, func(i, j int) bool { return wallets[i].UserID < wallets[j].UserID })
	if limit > 0 && len(wallets) > limit {
		wallets = wallets[:limit]
	}
	return wallets, nil
}
