package payments

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/tbc-meetup/walletd/internal/validation"
)

// Handler exposes payment HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a payment HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	UserID  int64  `json:"user_id" validate:"gt=0"`
	OrderID string `json:"order_id" validate:"required,max=64"`
	Amount  int64  `json:"amount" validate:"gt=0"`
}

type confirmRequest struct {
	PaymentKey string `json:"payment_key" validate:"required,max=200"`
	OrderID    string `json:"order_id" validate:"required,max=64"`
	Amount     int64  `json:"amount" validate:"gt=0"`
	AutoDeduct bool   `json:"auto_deduct"`
	MeetupID   int64  `json:"meetup_id" validate:"required_if=AutoDeduct true"`
}

type recordResponse struct {
	OrderID        string `json:"order_id"`
	UserID         int64  `json:"user_id"`
	Amount         int64  `json:"amount"`
	RefundedAmount int64  `json:"refunded_amount"`
	State          string `json:"state"`
	PaymentKey     string `json:"payment_key,omitempty"`
	FailureCode    string `json:"failure_code,omitempty"`
	FailureMsg     string `json:"failure_msg,omitempty"`
}

type confirmResponse struct {
	OrderID        string `json:"order_id"`
	State          string `json:"state"`
	CreditedAmount int64  `json:"credited_amount"`
	BalanceAfter   int64  `json:"balance_after"`
	Joined         bool   `json:"joined,omitempty"`
	JoinError      string `json:"join_error,omitempty"`
}

// Create reserves an order id for a top-up.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	rec, err := h.service.CreateInit(c.UserContext(), CreateInput{UserID: req.UserID, OrderID: req.OrderID, Amount: req.Amount})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"order_id": rec.OrderID})
}

// Confirm confirms the payment with the gateway and credits the wallet.
func (h *Handler) Confirm(c *fiber.Ctx) error {
	var req confirmRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.service.ConfirmAndCredit(c.UserContext(), ConfirmInput{
		PaymentKey: req.PaymentKey,
		OrderID:    req.OrderID,
		Amount:     req.Amount,
		AutoDeduct: req.AutoDeduct,
		MeetupID:   req.MeetupID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(confirmResponse{
		OrderID:        res.OrderID,
		State:          string(res.State),
		CreditedAmount: res.CreditedAmount,
		BalanceAfter:   res.BalanceAfter,
		Joined:         res.Joined,
		JoinError:      res.JoinError,
	})
}

// Cancel cancels an unpaid order.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	rec, err := h.service.CancelInit(c.UserContext(), c.Params("orderId"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"order_id": rec.OrderID, "state": rec.State})
}

// Get returns the payment record.
func (h *Handler) Get(c *fiber.Ctx) error {
	rec, err := h.service.Get(c.UserContext(), c.Params("orderId"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResponse(rec))
}

func toResponse(rec Record) recordResponse {
	return recordResponse{
		OrderID:        rec.OrderID,
		UserID:         rec.UserID,
		Amount:         rec.Amount,
		RefundedAmount: rec.RefundedAmount,
		State:          string(rec.State),
		PaymentKey:     rec.PaymentKey,
		FailureCode:    rec.FailureCode,
		FailureMsg:     rec.FailureMsg,
	}
}
