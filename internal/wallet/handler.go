package wallet

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type walletResponse struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

type entryResponse struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Amount         int64     `json:"amount"`
	Reason         string    `json:"reason"`
	RefType        string    `json:"ref_type,omitempty"`
	RefID          string    `json:"ref_id,omitempty"`
	IdempotencyKey string    `json:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at"`
}

// Balance returns the wallet balance of a user.
func (h *Handler) Balance(c *fiber.Ctx) error {
	userID, err := userIDParam(c)
	if err != nil {
		return err
	}
	w, err := h.service.Get(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(walletResponse{
		ID:        w.ID.String(),
		UserID:    w.UserID,
		Balance:   w.Balance,
		UpdatedAt: w.UpdatedAt,
	})
}

// Ledger lists the wallet's movements, newest first.
func (h *Handler) Ledger(c *fiber.Ctx) error {
	userID, err := userIDParam(c)
	if err != nil {
		return err
	}
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	entries, err := h.service.Entries(c.UserContext(), userID, limit, offset)
	if err != nil {
		return err
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:             e.ID.String(),
			Type:           string(e.Type),
			Amount:         e.Amount,
			Reason:         e.Reason,
			RefType:        e.RefType,
			RefID:          e.RefID,
			IdempotencyKey: e.IdempotencyKey,
			CreatedAt:      e.CreatedAt,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"user_id": userID, "entries": out})
}

func userIDParam(c *fiber.Ctx) (int64, error) {
	userID, err := strconv.ParseInt(c.Params("userId"), 10, 64)
	if err != nil || userID <= 0 {
		return 0, fiber.NewError(http.StatusBadRequest, "invalid user id")
	}
	return userID, nil
}
