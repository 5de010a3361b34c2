package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tbc-meetup/walletd/internal/metrics"
)

// Instrumented bounds every call with a timeout and records its outcome.
type Instrumented struct {
	next    Gateway
	timeout time.Duration
	logger  *slog.Logger
}

// NewInstrumented wraps next.
func NewInstrumented(next Gateway, timeout time.Duration, logger *slog.Logger) *Instrumented {
	return &Instrumented{next: next, timeout: timeout, logger: logger}
}

func (g *Instrumented) Confirm(ctx context.Context, req ConfirmRequest) (*Response, error) {
	return g.observe(ctx, "confirm", req.OrderID, func(ctx context.Context) (*Response, error) {
		return g.next.Confirm(ctx, req)
	})
}

func (g *Instrumented) Cancel(ctx context.Context, paymentKey string, req CancelRequest) (*Response, error) {
	return g.observe(ctx, "cancel", paymentKey, func(ctx context.Context) (*Response, error) {
		return g.next.Cancel(ctx, paymentKey, req)
	})
}

func (g *Instrumented) observe(ctx context.Context, op, ref string, fn func(context.Context) (*Response, error)) (*Response, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrGatewayUnavailable) {
		err = errors.Join(ErrGatewayUnavailable, err)
	}

	outcome := "ok"
	switch {
	case errors.Is(err, ErrGatewayUnavailable):
		outcome = "unavailable"
	case err != nil:
		outcome = "rejected"
	case resp == nil || (!resp.Succeeded() && resp.Status != StatusCanceled):
		outcome = "declined"
	}
	metrics.RecordGatewayCall(op, outcome, time.Since(start).Seconds())

	if g.logger != nil && outcome != "ok" {
		g.logger.Warn("gateway call failed", slog.String("operation", op), slog.String("ref", ref), slog.String("outcome", outcome), slog.Any("error", err))
	}
	return resp, err
}
