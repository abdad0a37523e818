package wallet

import (
	"errors"
	"net/http"

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
	Provider string `json:"provider"`
	Status   Status `json:"status"`
	Address  string `json:"address,omitempty"`
	UserName string `json:"user_name,omitempty"`
	Links    Links  `json:"links"`
	Fees     int    `json:"pending_fees"`
}

func toResponse(record *Record) walletResponse {
	return walletResponse{
		Provider: record.Provider,
		Status:   record.Status,
		Address:  RedactAddress(record.Address),
		UserName: record.UserName,
		Links:    record.Links,
		Fees:     len(record.Fees),
	}
}

// Get returns the redacted wallet record.
func (h *Handler) Get(c *fiber.Ctx) error {
	record, err := h.service.Get(c.UserContext())
	if err != nil {
		return ErrorStatus(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(record))
}

// Generate creates the wallet record if needed.
func (h *Handler) Generate(c *fiber.Ctx) error {
	record, err := h.service.Generate(c.UserContext())
	if err != nil {
		return ErrorStatus(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(record))
}

type authorizeRequest struct {
	Code  string `json:"code" query:"code"`
	State string `json:"state" query:"state"`
	Error string `json:"error" query:"error"`
}

// Authorize completes the provider handshake.
func (h *Handler) Authorize(c *fiber.Ctx) error {
	var req authorizeRequest
	if err := c.QueryParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	record, err := h.service.Authorize(c.UserContext(), AuthorizeArgs{Code: req.Code, State: req.State, Error: req.Error})
	if err != nil {
		return ErrorStatus(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(record))
}

// Verify retries verification of a pending wallet.
func (h *Handler) Verify(c *fiber.Ctx) error {
	if err := h.service.Verify(c.UserContext()); err != nil {
		return ErrorStatus(err)
	}
	return h.Get(c)
}

// Disconnect unlinks the wallet on the user's request.
func (h *Handler) Disconnect(c *fiber.Ctx) error {
	if err := h.service.Disconnect(c.UserContext()); err != nil {
		return ErrorStatus(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// Balance returns the provider card balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	balance, err := h.service.FetchBalance(c.UserContext())
	if err != nil {
		return ErrorStatus(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"balance": balance})
}

// Capabilities returns what the provider account may do.
func (h *Handler) Capabilities(c *fiber.Ctx) error {
	caps, err := h.service.GetCapabilities(c.UserContext())
	if err != nil {
		return ErrorStatus(err)
	}
	return c.Status(http.StatusOK).JSON(caps)
}

// ErrorStatus maps wallet errors onto HTTP errors.
func ErrorStatus(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotVerified), errors.Is(err, ErrStatusChanged), errors.Is(err, ErrIllegalTransition), errors.Is(err, ErrConflict):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrStateMismatch), errors.Is(err, ErrAuthorizationDenied):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrExpiredCredential):
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrUserBlocked):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrProvider):
		return fiber.NewError(http.StatusBadGateway, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
