package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tbc-meetup/walletd/internal/ledger"
	"github.com/tbc-meetup/walletd/internal/logging"
	"github.com/tbc-meetup/walletd/internal/txn"
)

func newTestService() (*Service, Store, ledger.Store) {
	store := NewMemoryRepository()
	led := ledger.NewInMemory()
	return NewService(store, led, txn.NewMemoryTransactor(), logging.Discard()), store, led
}

func credit(key string, amount int64) Movement {
	return Movement{Type: ledger.Credit, Amount: amount, Reason: ledger.ReasonTopUp, IdempotencyKey: key}
}

func TestServiceGetOrCreateIsStable(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	first, err := svc.GetOrCreate(ctx, 42)
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	second, err := svc.GetOrCreate(ctx, 42)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if first.ID != second.ID || second.Balance != 0 {
		t.Fatalf("expected the same empty wallet, got %+v and %+v", first, second)
	}
}

func TestServicePostCreditAndDuplicate(t *testing.T) {
	svc, _, led := newTestService()
	ctx := context.Background()
	w, _ := svc.GetOrCreate(ctx, 7)

	posting, err := svc.Post(ctx, 7, credit("TOPUP:o-1", 2_500))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if !posting.Applied || posting.Wallet.Balance != 2_500 {
		t.Fatalf("unexpected posting %+v", posting)
	}

	replay, err := svc.Post(ctx, 7, credit("TOPUP:o-1", 2_500))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.Applied || replay.Wallet.Balance != 2_500 {
		t.Fatalf("replay must be a no-op, got %+v", replay)
	}

	sum, _ := led.SumSigned(ctx, w.ID)
	if sum != 2_500 {
		t.Fatalf("ledger sum %d does not match balance", sum)
	}
}

func TestServicePostDebitInsufficientFundsRollsBack(t *testing.T) {
	svc, _, led := newTestService()
	ctx := context.Background()
	w, _ := svc.GetOrCreate(ctx, 9)
	if _, err := svc.Post(ctx, 9, credit("TOPUP:o-2", 1_000)); err != nil {
		t.Fatalf("seed credit: %v", err)
	}

	_, err := svc.Post(ctx, 9, Movement{Type: ledger.Debit, Amount: 1_500, Reason: ledger.ReasonMeetupJoin, IdempotencyKey: "join-1-9"})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	got, _ := svc.Get(ctx, 9)
	if got.Balance != 1_000 {
		t.Fatalf("balance changed on failed debit: %d", got.Balance)
	}
	if _, found, _ := led.FindByIdempotencyKey(ctx, "join-1-9"); found {
		t.Fatal("failed debit left a ledger entry")
	}
	if sum, _ := led.SumSigned(ctx, w.ID); sum != 1_000 {
		t.Fatalf("unexpected ledger sum %d", sum)
	}
}

func TestServicePostRequiresWallet(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.Post(context.Background(), 404, credit("k", 1)); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected wallet not found, got %v", err)
	}
	if _, err := svc.Post(context.Background(), 404, credit("k", 0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestLockOutsideTransaction(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	svc.GetOrCreate(ctx, 1)
	if _, err := svc.Lock(ctx, 1); !errors.Is(err, txn.ErrNoTransaction) {
		t.Fatalf("expected no transaction error, got %v", err)
	}
}

func TestServiceConcurrentPostsKeepBalanceConsistent(t *testing.T) {
	svc, _, led := newTestService()
	ctx := context.Background()
	w, _ := svc.GetOrCreate(ctx, 3)
	if _, err := svc.Post(ctx, 3, credit("seed", 10_000)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := Movement{Type: ledger.Debit, Amount: 700, Reason: ledger.ReasonMeetupJoin, IdempotencyKey: "debit-" + string(rune('a'+i))}
			if _, err := svc.Post(ctx, 3, m); err != nil && !errors.Is(err, ErrInsufficientFunds) {
				t.Errorf("post %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	got, _ := svc.Get(ctx, 3)
	sum, _ := led.SumSigned(ctx, w.ID)
	if got.Balance != sum {
		t.Fatalf("balance %d diverged from ledger %d", got.Balance, sum)
	}
	if got.Balance < 0 || got.Balance != 10_000-14*700 {
		t.Fatalf("expected 14 debits to fit, balance %d", got.Balance)
	}
}
