package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/tbc-meetup/walletd/internal/gateway"
	"github.com/tbc-meetup/walletd/internal/middleware"
	"github.com/tbc-meetup/walletd/internal/payments"
	"github.com/tbc-meetup/walletd/internal/refund"
	"github.com/tbc-meetup/walletd/internal/validation"
	"github.com/tbc-meetup/walletd/internal/wallet"
	"github.com/tbc-meetup/walletd/internal/webhook"
)

type errorResponse struct {
	Error     string            `json:"error"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

var statusByError = []struct {
	target error
	status int
}{
	{payments.ErrOrderNotFound, http.StatusNotFound},
	{wallet.ErrWalletNotFound, http.StatusNotFound},
	{webhook.ErrEventNotFound, http.StatusNotFound},
	{payments.ErrAmountMismatch, http.StatusBadRequest},
	{payments.ErrInvalidAmount, http.StatusBadRequest},
	{payments.ErrInvalidInput, http.StatusBadRequest},
	{wallet.ErrInvalidAmount, http.StatusBadRequest},
	{webhook.ErrInvalidPayload, http.StatusBadRequest},
	{webhook.ErrInvalidSignature, http.StatusUnauthorized},
	{payments.ErrInvalidStateTransition, http.StatusConflict},
	{payments.ErrInvalidRefundState, http.StatusConflict},
	{refund.ErrRefundExceedsPayment, http.StatusUnprocessableEntity},
	{wallet.ErrInsufficientFunds, http.StatusUnprocessableEntity},
	{gateway.ErrGatewayRejected, http.StatusPaymentRequired},
	{gateway.ErrGatewayUnavailable, http.StatusServiceUnavailable},
}

// StatusFor maps a domain error to its HTTP status. Unknown errors are 500.
func StatusFor(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	var ve *validation.Error
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	for _, m := range statusByError {
		if errors.Is(err, m.target) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// ErrorHandler renders every handler error as JSON. Internal errors are
// logged and hidden from the client.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := StatusFor(err)
		resp := errorResponse{Error: err.Error(), RequestID: middleware.RequestIDFrom(c)}

		var ve *validation.Error
		if errors.As(err, &ve) {
			resp.Details = ve.Details
		}
		if status == http.StatusInternalServerError {
			logger.Error("unhandled error",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.String("request_id", resp.RequestID),
				slog.Any("error", err))
			resp.Error = http.StatusText(http.StatusInternalServerError)
		}
		return c.Status(status).JSON(resp)
	}
}
