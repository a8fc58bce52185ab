package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"galvan_backend/pkg/utils/jwt"
)

const claimsKey = "user"

// AuthMiddleware validates the bearer token and stores its claims in
// c.Locals("user").
func AuthMiddleware(tokens *jwt.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Authorization header is required",
			})
		}

		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(tokenString) == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Invalid authorization format",
			})
		}

		claims, err := tokens.ValidateToken(strings.TrimSpace(tokenString))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Invalid or expired token",
			})
		}

		c.Locals(claimsKey, claims)
		return c.Next()
	}
}

// Claims returns the claims stored by AuthMiddleware, or nil.
func Claims(c *fiber.Ctx) *jwt.Claims {
	claims, _ := c.Locals(claimsKey).(*jwt.Claims)
	return claims
}
