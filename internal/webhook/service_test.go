package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbc-meetup/walletd/internal/gateway"
	"github.com/tbc-meetup/walletd/internal/ledger"
	"github.com/tbc-meetup/walletd/internal/logging"
	"github.com/tbc-meetup/walletd/internal/payments"
	"github.com/tbc-meetup/walletd/internal/txn"
	"github.com/tbc-meetup/walletd/internal/wallet"
)

const secret = "whsec_test"

type fixture struct {
	svc      *Service
	store    Store
	payments *payments.Service
	wallets  *wallet.Service
	gateway  *gateway.Static
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tx := txn.NewMemoryTransactor()
	wallets := wallet.NewService(wallet.NewMemoryRepository(), ledger.NewInMemory(), tx, logging.Discard())
	gw := &gateway.Static{}
	paySvc := payments.NewService(payments.NewMemoryRepository(), wallets, gw, tx)
	store := NewMemoryRepository()
	return &fixture{
		svc:      NewService(store, paySvc, secret, 3, logging.Discard()),
		store:    store,
		payments: paySvc,
		wallets:  wallets,
		gateway:  gw,
	}
}

func body(t *testing.T, eventID, orderID, status string, amount int64) []byte {
	t.Helper()
	raw, err := json.Marshal(Payload{
		EventID:   eventID,
		EventType: "PAYMENT_STATUS_CHANGED",
		Data:      PaymentData{PaymentKey: "pk-" + orderID, OrderID: orderID, Status: status, TotalAmount: amount},
	})
	require.NoError(t, err)
	return raw
}

func TestReceiveDoneCreditsOnceAcrossRedelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.payments.CreateInit(ctx, payments.CreateInput{UserID: 5, OrderID: "O-1", Amount: 2_000})
	require.NoError(t, err)

	raw := body(t, "evt-1", "O-1", "DONE", 2_000)
	ev, dup, err := f.svc.Receive(ctx, raw, Sign([]byte(secret), raw))
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Equal(t, StatusSuccess, ev.Status)
	assert.Equal(t, 1, ev.AttemptCount)

	_, dup, err = f.svc.Receive(ctx, raw, Sign([]byte(secret), raw))
	require.NoError(t, err)
	assert.True(t, dup)

	w, _ := f.wallets.Get(ctx, 5)
	assert.Equal(t, int64(2_000), w.Balance)
	assert.Equal(t, int64(1), f.gateway.Confirms())
}

func TestReceiveRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	raw := body(t, "evt-2", "O-2", "DONE", 100)
	_, _, err := f.svc.Receive(context.Background(), raw, "deadbeef")
	assert.True(t, errors.Is(err, ErrInvalidSignature))
	_, err = f.store.FindByEventID(context.Background(), "evt-2")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestReceiveAbortedMarksOrderFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.payments.CreateInit(ctx, payments.CreateInput{UserID: 6, OrderID: "O-3", Amount: 100})

	raw := body(t, "evt-3", "O-3", "ABORTED", 100)
	ev, _, err := f.svc.Receive(ctx, raw, Sign([]byte(secret), raw))
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, ev.Status)

	rec, _ := f.payments.Get(ctx, "O-3")
	assert.Equal(t, payments.StateFailed, rec.State)
}

func TestReceiveCanceledAfterPaymentIsStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.payments.CreateInit(ctx, payments.CreateInput{UserID: 6, OrderID: "O-4", Amount: 100})
	f.payments.ConfirmAndCredit(ctx, payments.ConfirmInput{PaymentKey: "pk", OrderID: "O-4", Amount: 100})

	raw := body(t, "evt-4", "O-4", "CANCELED", 100)
	ev, _, err := f.svc.Receive(ctx, raw, Sign([]byte(secret), raw))
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, ev.Status)

	rec, _ := f.payments.Get(ctx, "O-4")
	assert.Equal(t, payments.StatePaid, rec.State)
}

func TestDispatchPendingRetriesUntilMaxAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raw := body(t, "evt-5", "O-unknown", "DONE", 100)
	ev, _, err := f.svc.Receive(ctx, raw, Sign([]byte(secret), raw))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, ev.Status)
	assert.NotEmpty(t, ev.LastError)

	n, err := f.svc.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	stored, _ := f.store.FindByEventID(ctx, "evt-5")
	assert.Equal(t, 3, stored.AttemptCount)
	assert.Equal(t, StatusFailed, stored.Status)
}

func TestDispatchPendingSucceedsOnceOrderExists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raw := body(t, "evt-6", "O-late", "DONE", 700)
	_, _, err := f.svc.Receive(ctx, raw, Sign([]byte(secret), raw))
	require.NoError(t, err)

	_, err = f.payments.CreateInit(ctx, payments.CreateInput{UserID: 8, OrderID: "O-late", Amount: 700})
	require.NoError(t, err)

	_, err = f.svc.DispatchPending(ctx)
	require.NoError(t, err)

	stored, _ := f.store.FindByEventID(ctx, "evt-6")
	assert.Equal(t, StatusSuccess, stored.Status)
	w, _ := f.wallets.Get(ctx, 8)
	assert.Equal(t, int64(700), w.Balance)
}

func TestVerifyAcceptsPrefixedSignature(t *testing.T) {
	raw := []byte(`{"a":1}`)
	assert.NoError(t, Verify([]byte("k"), raw, "sha256="+Sign([]byte("k"), raw)))
	assert.ErrorIs(t, Verify([]byte("k"), raw, Sign([]byte("other"), raw)), ErrInvalidSignature)
}

func TestTruncateKeepsWholeRunes(t *testing.T) {
	msg := "E:" + strings.Repeat("카드사승인거절", 20)
	for _, n := range []int{255, 254, 253, 3, 1000} {
		got := truncate(msg, n)
		assert.True(t, utf8.ValidString(got), "limit %d", n)
		assert.LessOrEqual(t, len(got), n)
		assert.True(t, strings.HasPrefix(msg, got))
	}
	assert.Equal(t, msg, truncate(msg, len(msg)))
}
