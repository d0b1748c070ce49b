package handler

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teamkurence-png/psp-platform-sub000/internal/core/balance"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/domain"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/lifecycle"
)

// OperatorHandler exposes the back-office surface: manual review
// decisions, receipt confirmation, refunds and manual failure.
type OperatorHandler struct {
	Machine *lifecycle.Machine
	Balance *balance.Engine
}

type ReviewDecisionRequest struct {
	Approve bool   `json:"approve"`
	Notes   string `json:"notes,omitempty"`
}

func (h *OperatorHandler) ReviewDecision(c *fiber.Ctx) error {
	txID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid transaction ID"})
	}

	var req ReviewDecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}

	tx, err := h.Machine.OperatorReviewDecision(c.Context(), txID, req.Approve, req.Notes, "operator")
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(tx)
}

type ConfirmReceiptRequest struct {
	ProofRef string `json:"proof_ref,omitempty"`
}

// ConfirmReceipt acknowledges that money actually moved: a bank wire
// arrived, or exchanged funds landed and the transaction settles.
func (h *OperatorHandler) ConfirmReceipt(c *fiber.Ctx) error {
	txID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid transaction ID"})
	}

	var req ConfirmReceiptRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}

	tx, err := h.Balance.ConfirmReceipt(c.Context(), txID, req.ProofRef, "operator")
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(tx)
}

type RefundRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (h *OperatorHandler) Refund(c *fiber.Ctx) error {
	txID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid transaction ID"})
	}

	var req RefundRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}
	currency, ok := parseCurrency(req.Currency)
	if !ok {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid currency"})
	}
	if req.Amount <= 0 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Refund amount must be positive"})
	}

	tx, err := h.Machine.Refund(c.Context(), txID, domain.NewMoney(req.Amount, currency), "operator")
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(tx)
}

type FailRequest struct {
	Reason string `json:"reason"`
	Status string `json:"status,omitempty"` // FAILED (default) or INSUFFICIENT_FUNDS
}

func (h *OperatorHandler) FailTransaction(c *fiber.Ctx) error {
	txID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid transaction ID"})
	}

	var req FailRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}
	if req.Reason == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Reason is required"})
	}

	status := domain.TxFailed
	if req.Status != "" {
		switch s := domain.TransactionStatus(req.Status); s {
		case domain.TxFailed, domain.TxInsufficientFunds:
			status = s
		default:
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Status must be FAILED or INSUFFICIENT_FUNDS"})
		}
	}

	tx, err := h.Machine.Terminate(c.Context(), txID, status, req.Reason, "operator")
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(tx)
}
