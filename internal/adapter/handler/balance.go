package handler

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/teamkurence-png/psp-platform-sub000/internal/core/balance"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/domain"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/ledger"
)

type BalanceHandler struct {
	Engine *balance.Engine
	Store  ledger.Store
}

// GetBalance recomputes pending and available balance from the ledger.
func (h *BalanceHandler) GetBalance(c *fiber.Ctx) error {
	merchantID, err := callerMerchant(c)
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Unknown merchant"})
	}
	currency, ok := parseCurrency(c.Query("currency", string(domain.USD)))
	if !ok {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid currency"})
	}

	bal, err := h.Engine.GetBalance(c.Context(), merchantID, currency)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Could not compute balance"})
	}
	return c.JSON(bal)
}

func (h *BalanceHandler) ListSettlements(c *fiber.Ctx) error {
	merchantID, err := callerMerchant(c)
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Unknown merchant"})
	}

	settlements, err := h.Store.ListSettlements(c.Context(), merchantID)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Could not fetch settlements"})
	}
	return c.JSON(fiber.Map{"settlements": settlements})
}
