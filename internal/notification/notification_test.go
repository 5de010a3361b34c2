package notification

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamNotifierAppendsEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	n := NewStreamNotifier(cache, "", 0)
	require.NoError(t, n.Send(context.Background(), Message{Kind: KindTopUpCredited, UserID: 7, Body: "credited 100"}))

	entries, err := cache.XRange(context.Background(), DefaultStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, KindTopUpCredited, entries[0].Values["kind"])
	assert.Equal(t, "7", entries[0].Values["user_id"])
}

type failing struct{}

func (failing) Send(context.Context, Message) error { return errors.New("down") }

func TestFanoutDeliversToAllAndJoinsErrors(t *testing.T) {
	rec := &Recorder{}
	err := Fanout{failing{}, rec}.Send(context.Background(), Message{Kind: KindRefundIssued, UserID: 1})
	assert.EqualError(t, err, "down")
	assert.Len(t, rec.Sent(), 1)
}

func TestLoggerNotifierNilSafe(t *testing.T) {
	var n *LoggerNotifier
	assert.NoError(t, n.Send(context.Background(), Message{}))
}
