package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/remittance/internal/contribution"
)

// RegisterContributionRoutes wires the endpoints that move funds. idem may
// be nil when no idempotency store is configured.
func RegisterContributionRoutes(r fiber.Router, h *contribution.Handler, idem fiber.Handler) {
	if idem != nil {
		r.Post("/contributions", idem, h.Contribute)
		r.Post("/transfers", idem, h.Transfer)
		return
	}
	r.Post("/contributions", h.Contribute)
	r.Post("/transfers", h.Transfer)
}
