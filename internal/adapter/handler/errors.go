package handler

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teamkurence-png/psp-platform-sub000/internal/core/domain"
)

// domainError maps ledger/engine errors onto HTTP responses so every
// handler answers failures the same way.
func domainError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	case errors.Is(err, domain.ErrConflict):
		return c.Status(http.StatusConflict).JSON(fiber.Map{"error": "Record changed underneath you, retry with fresh state"})
	case errors.Is(err, domain.ErrInvalidState):
		return c.Status(http.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, domain.ErrInsufficientBalance):
		return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Insufficient available balance"})
	case errors.Is(err, domain.ErrResendLimitExceeded):
		return c.Status(http.StatusTooManyRequests).JSON(fiber.Map{"error": "Resend limit exceeded"})
	case errors.Is(err, domain.ErrVerificationMismatch):
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Verification code does not match"})
	default:
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}

// callerMerchant reads the merchant identity the auth middleware stored.
func callerMerchant(c *fiber.Ctx) (uuid.UUID, error) {
	raw, _ := c.Locals("merchant_id").(string)
	return uuid.Parse(raw)
}

func parseCurrency(s string) (domain.Currency, bool) {
	switch domain.Currency(s) {
	case domain.USD, domain.EUR, domain.TZS:
		return domain.Currency(s), true
	}
	return "", false
}
