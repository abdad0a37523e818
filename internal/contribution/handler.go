package contribution

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/remittance/internal/transfer"
	"github.com/congo-pay/remittance/internal/wallet"
)

// Handler exposes contribution endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a contribution handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type recipientRequest struct {
	Key     string `json:"key"`
	Address string `json:"address"`
}

type contributeRequest struct {
	ContributionID string            `json:"contribution_id"`
	Recipient      *recipientRequest `json:"recipient"`
	Amount         decimal.Decimal   `json:"amount"`
}

// Contribute processes a contribution. Without an explicit contribution_id
// the Idempotency-Key is used, so a replayed request maps onto the same fee.
func (h *Handler) Contribute(c *fiber.Ctx) error {
	var req contributeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.ContributionID == "" {
		req.ContributionID = c.Get("Idempotency-Key")
	}
	if req.ContributionID == "" {
		req.ContributionID = uuid.NewString()
	}

	input := Request{ContributionID: req.ContributionID, Amount: req.Amount}
	if req.Recipient != nil {
		input.Recipient = &Recipient{Key: req.Recipient.Key, Address: req.Recipient.Address}
	}

	res, err := h.service.Contribute(c.UserContext(), input)
	if err != nil {
		if res.TransactionID != "" {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
				"error":           err.Error(),
				"contribution_id": req.ContributionID,
				"transaction_id":  res.TransactionID,
			})
		}
		return errorStatus(err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"contribution_id": req.ContributionID,
		"transaction_id":  res.TransactionID,
		"fee":             res.Fee,
		"reconciled":      res.Reconciled,
	})
}

type transferRequest struct {
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
}

// Transfer sends funds without a fee.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	txID, err := h.service.TransferFunds(c.UserContext(), req.Address, req.Amount)
	if err != nil {
		return errorStatus(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"transaction_id": txID})
}

func errorStatus(err error) error {
	switch {
	case errors.Is(err, ErrMissingRecipient), errors.Is(err, ErrInvalidRequest), errors.Is(err, transfer.ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, wallet.ErrNotFound), errors.Is(err, wallet.ErrNotVerified):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, transfer.ErrExpiredCredential):
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, transfer.ErrTransferFailed):
		return fiber.NewError(http.StatusBadGateway, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
