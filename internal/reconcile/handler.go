package reconcile

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes admin reconciliation endpoints.
type Handler struct {
	reconciler *Reconciler
}

// NewHandler builds a reconciliation HTTP handler.
func NewHandler(r *Reconciler) *Handler {
	return &Handler{reconciler: r}
}

type mismatchResponse struct {
	WalletID string `json:"wallet_id"`
	UserID   int64  `json:"user_id"`
	Stored   int64  `json:"stored"`
	Expected int64  `json:"expected"`
	Diff     int64  `json:"diff"`
	Fixed    bool   `json:"fixed"`
	Note     string `json:"note,omitempty"`
}

// Report runs a read-only pass.
func (h *Handler) Report(c *fiber.Ctx) error {
	report, err := h.reconciler.ReconcileAll(c.UserContext())
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResponse(report))
}

// Fix repairs mismatched balances.
func (h *Handler) Fix(c *fiber.Ctx) error {
	report, err := h.reconciler.ReconcileAllAndFix(c.UserContext())
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResponse(report))
}

func toResponse(r Report) fiber.Map {
	out := make([]mismatchResponse, 0, len(r.Mismatches))
	for _, m := range r.Mismatches {
		out = append(out, mismatchResponse{
			WalletID: m.WalletID.String(),
			UserID:   m.UserID,
			Stored:   m.Stored,
			Expected: m.Expected,
			Diff:     m.Diff(),
			Fixed:    m.Fixed,
			Note:     m.Note,
		})
	}
	return fiber.Map{
		"checked":    r.Checked,
		"ok":         r.OK(),
		"mismatches": out,
		"summary":    r.String(),
	}
}
