package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teamkurence-png/psp-platform-sub000/internal/core/security"
)

// Protected resolves the calling merchant from its API key. We never
// compare plain text; only the hash is stored and looked up.
func Protected(db *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization") // "Bearer sk_live_..."
		if authHeader == "" {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Missing API Key"})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid Header Format"})
		}

		hashedKey := security.HashAPIKey(parts[1])

		var merchantID string
		err := db.QueryRow(c.Context(), "SELECT merchant_id FROM api_keys WHERE key_hash = $1", hashedKey).Scan(&merchantID)
		if err != nil {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid API Key"})
		}

		// Handlers read the caller identity from context
		c.Locals("merchant_id", merchantID)

		return c.Next()
	}
}
