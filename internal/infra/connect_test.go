package infra

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbc-meetup/walletd/internal/logging"
)

func TestNewRedisClientPings(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0", logging.Discard())
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
}

func TestNewRedisClientRequiresURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "", logging.Discard())
	assert.ErrorIs(t, err, errEmptyURL)
}

func TestNewPostgresPoolRejectsBadURL(t *testing.T) {
	_, err := NewPostgresPool(context.Background(), "", logging.Discard())
	assert.ErrorIs(t, err, errEmptyURL)

	_, err = NewPostgresPool(context.Background(), "postgres://%zz", logging.Discard())
	assert.Error(t, err)
}

func TestRetryStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := retry(ctx, "test", logging.Discard(), func(context.Context) error {
		calls++
		return assert.AnError
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
