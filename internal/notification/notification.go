package notification

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	KindTopUpCredited = "topup_credited"
	KindRefundIssued  = "refund_issued"
	KindMeetupJoined  = "meetup_joined"
)

// DefaultStream is the Redis stream wallet notifications are appended to.
const DefaultStream = "walletd:notifications"

// Message describes a notification payload.
type Message struct {
	Kind   string
	UserID int64
	Body   string
}

// Notifier delivers notifications to downstream systems. Callers treat
// delivery as best effort and never fail a money movement on it.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "user_id", message.UserID, "body", message.Body)
	return nil
}

// StreamNotifier appends notifications to a capped Redis stream for
// downstream consumers (push, email).
type StreamNotifier struct {
	cache  *redis.Client
	stream string
	maxLen int64
}

// NewStreamNotifier publishes to stream, keeping roughly maxLen entries.
func NewStreamNotifier(cache *redis.Client, stream string, maxLen int64) *StreamNotifier {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = 10_000
	}
	return &StreamNotifier{cache: cache, stream: stream, maxLen: maxLen}
}

func (n *StreamNotifier) Send(ctx context.Context, message Message) error {
	return n.cache.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		MaxLen: n.maxLen,
		Approx: true,
		Values: map[string]any{
			"kind":    message.Kind,
			"user_id": strconv.FormatInt(message.UserID, 10),
			"body":    message.Body,
			"sent_at": time.Now().UTC().Format(time.RFC3339Nano),
		},
	}).Err()
}

// Fanout sends to every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) Send(ctx context.Context, message Message) error {
	var errs []error
	for _, n := range f {
		if err := n.Send(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps sent messages in memory.
type Recorder struct {
	mu       sync.Mutex
	Messages []Message
}

func (r *Recorder) Send(_ context.Context, message Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages = append(r.Messages, message)
	return nil
}

// Sent returns a copy of the recorded messages.
func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.Messages...)
}
