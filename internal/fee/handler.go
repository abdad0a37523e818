package fee

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes fee introspection endpoints.
type Handler struct {
	scheduler *Scheduler
}

// NewHandler builds a fee HTTP handler.
func NewHandler(scheduler *Scheduler) *Handler {
	return &Handler{scheduler: scheduler}
}

// List returns every uncollected fee.
func (h *Handler) List(c *fiber.Ctx) error {
	fees, err := h.scheduler.Outstanding(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"fees":  fees,
		"armed": h.scheduler.Armed(),
	})
}
