package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/notemarket/notemarket/internal/pkg/usercontext"
)

// RequireAuth rejects requests that did not pass API key authentication.
func RequireAuth(c *fiber.Ctx) error {
	if !usercontext.IsAuthenticated(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Authentication required"})
	}
	return c.Next()
}
