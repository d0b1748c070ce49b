package handler

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teamkurence-png/psp-platform-sub000/internal/core/domain"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/ledger"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/lifecycle"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/security"
)

type PaymentHandler struct {
	Machine *lifecycle.Machine
	Vault   *security.CardVault
	Store   ledger.Store
}

type ChargeRequest struct {
	PaymentRequestID string `json:"payment_request_id,omitempty"`
	Amount           int64  `json:"amount"` // Minor units
	Currency         string `json:"currency"`

	CardholderName string `json:"cardholder_name"`
	CardNumber     string `json:"card_number"`
	Expiry         string `json:"expiry"` // MM/YY
	CVC            string `json:"cvc"`
}

// ChargeCard accepts a card payment submission. Raw card data is sealed
// before anything else touches it; from here on only the ciphertext moves.
func (h *PaymentHandler) ChargeCard(c *fiber.Ctx) error {
	var req ChargeRequest
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
	if req.Amount <= 0 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Amount must be positive"})
	}

	isValid, brand := domain.ValidateCard(req.CardNumber)
	if !isValid {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid card. We only accept Visa and Mastercard.",
		})
	}
	if len(req.CVC) < 3 || len(req.Expiry) != 5 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid CVC or expiry"})
	}

	sealed, err := h.Vault.Seal(security.CardDetails{
		Number: req.CardNumber,
		Expiry: req.Expiry,
		CVC:    req.CVC,
	})
	if err != nil {
		slog.Error("Card sealing failed", "error", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Payment processing failed"})
	}

	params := lifecycle.SubmitParams{
		MerchantID:     merchantID,
		Amount:         domain.NewMoney(req.Amount, currency),
		Method:         domain.MethodCard,
		CardholderName: req.CardholderName,
		CardBrand:      brand,
		SealedCard:     sealed,
		IPAddress:      c.IP(),
		UserAgent:      c.Get("User-Agent"),
	}
	if req.PaymentRequestID != "" {
		prID, err := uuid.Parse(req.PaymentRequestID)
		if err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment request ID"})
		}
		params.PaymentRequestID = &prID
	}

	tx, sub, err := h.Machine.SubmitTransaction(c.Context(), params)
	if err != nil {
		return domainError(c, err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction":   tx,
		"submission_id": sub.ID,
		"brand":         brand,
	})
}

type BankWireRequest struct {
	PaymentRequestID string `json:"payment_request_id,omitempty"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
}

// SubmitBankWire records an announced incoming wire. It stays SUBMITTED
// until an operator confirms the money actually arrived.
func (h *PaymentHandler) SubmitBankWire(c *fiber.Ctx) error {
	var req BankWireRequest
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

	params := lifecycle.SubmitParams{
		MerchantID: merchantID,
		Amount:     domain.NewMoney(req.Amount, currency),
		Method:     domain.MethodBankWire,
		IPAddress:  c.IP(),
		UserAgent:  c.Get("User-Agent"),
	}
	if req.PaymentRequestID != "" {
		prID, err := uuid.Parse(req.PaymentRequestID)
		if err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment request ID"})
		}
		params.PaymentRequestID = &prID
	}

	tx, _, err := h.Machine.SubmitTransaction(c.Context(), params)
	if err != nil {
		return domainError(c, err)
	}

	return c.Status(http.StatusCreated).JSON(tx)
}

// GetTransaction returns one transaction with its full timeline. Merchants
// only see their own.
func (h *PaymentHandler) GetTransaction(c *fiber.Ctx) error {
	txID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid transaction ID"})
	}
	merchantID, err := callerMerchant(c)
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Unknown merchant"})
	}

	tx, err := h.Store.GetTransaction(c.Context(), txID)
	if err != nil {
		return domainError(c, err)
	}
	if tx.MerchantID != merchantID {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	}
	return c.JSON(tx)
}

// ListTransactions returns the merchant's history in one currency.
func (h *PaymentHandler) ListTransactions(c *fiber.Ctx) error {
	merchantID, err := callerMerchant(c)
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Unknown merchant"})
	}
	currency, ok := parseCurrency(c.Query("currency", string(domain.USD)))
	if !ok {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid currency"})
	}

	txs, err := h.Store.ListTransactions(c.Context(), merchantID, currency)
	if err != nil {
		slog.Error("Failed to list transactions", "error", err, "merchant_id", merchantID)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Could not fetch transactions"})
	}
	return c.JSON(fiber.Map{"transactions": txs})
}
