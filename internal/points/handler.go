package points

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/tbc-meetup/walletd/internal/validation"
)

// Handler exposes the point deduction endpoint.
type Handler struct {
	service *Service
}

// NewHandler builds a points HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type deductRequest struct {
	UserID      int64  `json:"user_id" validate:"gt=0"`
	MeetupID    int64  `json:"meetup_id" validate:"gt=0"`
	Amount      int64  `json:"amount" validate:"gt=0"`
	ExternalRef string `json:"external_ref" validate:"max=128"`
	Reason      string `json:"reason" validate:"max=64"`
}

// Deduct spends wallet points to join a meetup.
func (h *Handler) Deduct(c *fiber.Ctx) error {
	var req deductRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	balance, err := h.service.DeductForMeetup(c.UserContext(), req.UserID, req.MeetupID, req.Amount, req.ExternalRef, req.Reason)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"user_id":       req.UserID,
		"meetup_id":     req.MeetupID,
		"balance_after": balance,
	})
}
