package middleware

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestReportsAPIKeyAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-key"), bcrypt.MinCost)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	newApp := func(keyHash string) *fiber.App {
		app := fiber.New()
		app.Get("/reports", ReportsAPIKeyAuth(keyHash, logger), func(c *fiber.Ctx) error {
			return c.SendString("ok")
		})
		return app
	}

	tests := []struct {
		name           string
		keyHash        string
		authorization  string
		expectedStatus int
	}{
		{name: "valid key", keyHash: string(hash), authorization: "Bearer secret-key", expectedStatus: fiber.StatusOK},
		{name: "wrong key", keyHash: string(hash), authorization: "Bearer other-key", expectedStatus: fiber.StatusUnauthorized},
		{name: "missing header", keyHash: string(hash), expectedStatus: fiber.StatusUnauthorized},
		{name: "basic auth", keyHash: string(hash), authorization: "Basic c2VjcmV0LWtleQ==", expectedStatus: fiber.StatusUnauthorized},
		{name: "empty bearer", keyHash: string(hash), authorization: "Bearer ", expectedStatus: fiber.StatusUnauthorized},
		{name: "no hash configured", keyHash: "", authorization: "Bearer secret-key", expectedStatus: fiber.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/reports", nil)
			if tt.authorization != "" {
				req.Header.Set("Authorization", tt.authorization)
			}

			resp, err := newApp(tt.keyHash).Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
}
