package handler

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teamkurence-png/psp-platform-sub000/internal/adapter/storage"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/security"
)

type MerchantHandler struct {
	Repo *storage.MerchantRepository
}

// CreateMerchantRequest defines what the onboarding caller sends us
type CreateMerchantRequest struct {
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

func (h *MerchantHandler) CreateMerchant(c *fiber.Ctx) error {
	var req CreateMerchantRequest
	if err := c.BodyParser(&req); err != nil {
		slog.Warn("Invalid merchant body", "error", err)
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.Name == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Merchant name is required"})
	}
	currency, ok := parseCurrency(req.Currency)
	if !ok {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid currency. Use USD, EUR or TZS"})
	}

	merchant, err := h.Repo.CreateMerchant(c.Context(), req.Name, currency)
	if err != nil {
		slog.Error("Failed to create merchant", "error", err, "name", req.Name)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Could not create merchant"})
	}

	slog.Info("✅ Merchant created", "id", merchant.ID, "name", req.Name)
	return c.Status(http.StatusCreated).JSON(merchant)
}

func (h *MerchantHandler) GenerateKey(c *fiber.Ctx) error {
	merchantID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid merchant ID format"})
	}

	if _, err := h.Repo.GetMerchantByID(c.Context(), merchantID); err != nil {
		return domainError(c, err)
	}

	realKey, keyHash, err := security.GenerateAPIKey()
	if err != nil {
		slog.Error("Crypto error generating key", "error", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Crypto error"})
	}

	if err := h.Repo.SaveAPIKey(c.Context(), merchantID, keyHash, "sk_live_"); err != nil {
		slog.Error("Failed to save API key", "error", err, "merchant_id", merchantID)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save key"})
	}

	slog.Info("🔑 API key generated", "merchant_id", merchantID)

	// Show the key to the caller ONCE; only the hash survives
	return c.JSON(fiber.Map{
		"api_key": realKey,
		"warning": "Save this now! We won't show it again.",
	})
}
