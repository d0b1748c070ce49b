package handler

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teamkurence-png/psp-platform-sub000/internal/core/balance"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/domain"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/ledger"
)

type WithdrawalHandler struct {
	Engine *balance.Engine
	Store  ledger.Store
}

type WithdrawalRequest struct {
	Amount      int64  `json:"amount"` // Gross, minor units
	Currency    string `json:"currency"`
	Method      string `json:"method"` // BANK_TRANSFER or CRYPTO
	Destination string `json:"destination"`
}

// CreateWithdrawal reserves funds and opens the payout. The reservation is
// atomic against concurrent withdrawals on the same balance.
func (h *WithdrawalHandler) CreateWithdrawal(c *fiber.Ctx) error {
	var req WithdrawalRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}

	merchantID, err := callerMerchant(c)
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Unknown merchant"})
	}

	currency, ok := parseCurrency(req.Currency)
	if !ok {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid currency. Use USD, EUR or TZS"})
	}

	method := domain.WithdrawalMethod(req.Method)
	if method != domain.WithdrawBankTransfer && method != domain.WithdrawCrypto {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Method must be BANK_TRANSFER or CRYPTO"})
	}

	wd, err := h.Engine.CreateWithdrawal(c.Context(), merchantID, domain.NewMoney(req.Amount, currency), method, req.Destination)
	if err != nil {
		return domainError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(wd)
}

type WithdrawalStatusRequest struct {
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
	TxHash        string `json:"tx_hash,omitempty"`
	Confirmations int    `json:"confirmations,omitempty"`
	ExplorerURL   string `json:"explorer_url,omitempty"`
	BankReference string `json:"bank_reference,omitempty"`
}

// UpdateStatus applies an operator- or chain-reported move on the payout
// graph. Funds release or finalize on the status change alone.
func (h *WithdrawalHandler) UpdateStatus(c *fiber.Ctx) error {
	wdID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid withdrawal ID"})
	}

	var req WithdrawalStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}

	wd, err := h.Engine.UpdateWithdrawalStatus(c.Context(), wdID, domain.WithdrawalStatus(req.Status), balance.StatusUpdate{
		FailureReason: req.FailureReason,
		TxHash:        req.TxHash,
		Confirmations: req.Confirmations,
		ExplorerURL:   req.ExplorerURL,
		BankReference: req.BankReference,
	})
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(wd)
}

// ListWithdrawals returns the merchant's payout history in one currency.
func (h *WithdrawalHandler) ListWithdrawals(c *fiber.Ctx) error {
	merchantID, err := callerMerchant(c)
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Unknown merchant"})
	}
	currency, ok := parseCurrency(c.Query("currency", string(domain.USD)))
	if !ok {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid currency"})
	}

	wds, err := h.Store.ListWithdrawals(c.Context(), merchantID, currency)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Could not fetch withdrawals"})
	}
	return c.JSON(fiber.Map{"withdrawals": wds})
}
