package refund

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/tbc-meetup/walletd/internal/validation"
)

// Handler exposes the refund endpoint.
type Handler struct {
	service *Service
}

// NewHandler builds a refund HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type refundRequest struct {
	OrderID string `json:"order_id" validate:"required,max=64"`
	Amount  int64  `json:"refund_amount" validate:"gt=0"`
	Reason  string `json:"reason" validate:"required,max=200"`
}

// Refund refunds part or all of a paid order.
func (h *Handler) Refund(c *fiber.Ctx) error {
	var req refundRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.service.Refund(c.UserContext(), Input{OrderID: req.OrderID, Amount: req.Amount, Reason: req.Reason})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"order_id":        res.OrderID,
		"state":           res.State,
		"refunded_amount": res.RefundedAmount,
		"total_refunded":  res.TotalRefunded,
		"balance_after":   res.BalanceAfter,
	})
}
