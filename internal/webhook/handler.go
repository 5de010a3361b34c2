package webhook

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the gateway notification endpoint.
type Handler struct {
	service *Service
}

// NewHandler builds a webhook HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Receive accepts a gateway notification. Duplicates are acknowledged with 200.
func (h *Handler) Receive(c *fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)
	ev, duplicate, err := h.service.Receive(c.UserContext(), body, c.Get(SignatureHeader))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"event_id":  ev.EventID,
		"status":    ev.Status,
		"duplicate": duplicate,
	})
}
