package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/remittance/internal/fee"
	"github.com/congo-pay/remittance/internal/wallet"
)

// RegisterWalletRoutes wires the external wallet lifecycle endpoints.
// Authorize accepts GET so the provider can redirect straight to it.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler, fees *fee.Handler) {
	group := r.Group("/wallet")
	group.Get("", h.Get)
	group.Post("", h.Generate)
	group.Get("/authorize", h.Authorize)
	group.Post("/authorize", h.Authorize)
	group.Post("/verify", h.Verify)
	group.Post("/disconnect", h.Disconnect)
	group.Get("/balance", h.Balance)
	group.Get("/capabilities", h.Capabilities)
	if fees != nil {
		group.Get("/fees", fees.List)
	}
}
