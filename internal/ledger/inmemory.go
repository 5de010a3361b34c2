package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/tbc-meetup/walletd/internal/txn"
)

type inMemoryStore struct {
	mu       sync.RWMutex
	byKey    map[string]Entry
	byWallet map[uuid.UUID][]Entry
}

// NewInMemory creates a concurrency-safe in-memory ledger store for tests
// and development.
func NewInMemory() Store {
	return &inMemoryStore{
		byKey:    make(map[string]Entry),
		byWallet: make(map[uuid.UUID][]Entry),
	}
}

func (s *inMemoryStore) Append(ctx context.Context, entry Entry) (Entry, error) {
	entry, err := prepare(entry)
	if err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byKey[entry.IdempotencyKey]; exists {
		return Entry{}, ErrDuplicateIdempotencyKey
	}
	s.byKey[entry.IdempotencyKey] = entry
	s.byWallet[entry.WalletID] = append(s.byWallet[entry.WalletID], entry)

	txn.OnRollback(ctx, func() { s.remove(entry) })
	return entry, nil
}

func (s *inMemoryStore) remove(entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byKey, entry.IdempotencyKey)
	entries := s.byWallet[entry.WalletID]
	for i := range entries {
		if entries[i].ID == entry.ID {
			s.byWallet[entry.WalletID] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
}

func (s *inMemoryStore) FindByIdempotencyKey(_ context.Context, key string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.byKey[key]
	return entry, ok, nil
}

func (s *inMemoryStore) SumSigned(_ context.Context, walletID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum int64
	for _, e := range s.byWallet[walletID] {
		sum += e.Signed()
	}
	return sum, nil
}

func (s *inMemoryStore) ListByWallet(_ context.Context, walletID uuid.UUID, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	entries := append([]Entry(nil), s.byWallet[walletID]...)
	s.mu.RUnlock()

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	if offset >= len(entries) {
		return []Entry{}, nil
	}
	entries = entries[offset:]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
