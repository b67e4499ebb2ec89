package middleware

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// ReportsAPIKeyAuth validates the API key for report endpoints against the
// configured bcrypt hash. Expects: Authorization: Bearer <api_key>
func ReportsAPIKeyAuth(keyHash string, logger *slog.Logger) fiber.Handler {
	keyHash = strings.TrimSpace(keyHash)

	return func(c *fiber.Ctx) error {
		if keyHash == "" {
			logger.Warn("Reports API key not configured", slog.String("path", c.Path()))
			return unauthorized(c, "Reports API key not configured. Set LEADPULSE_REPORTS_API_KEY_HASH.")
		}

		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return unauthorized(c, "Missing Authorization header")
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return unauthorized(c, "Invalid Authorization header format. Expected: Bearer <api_key>")
		}

		providedKey := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if providedKey == "" {
			return unauthorized(c, "API key is empty")
		}

		if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(providedKey)); err != nil {
			logger.Debug("Rejected reports API key", slog.String("path", c.Path()))
			return unauthorized(c, "Invalid API key")
		}

		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"error":   message,
		"code":    "UNAUTHORIZED",
	})
}
