// Package middleware provides HTTP middleware components for the application.
// It includes authentication and authorization middleware for the fiber web framework.
package middleware

import (
	"log"
	"strings"

	"ventureflow/internal/models"
	"ventureflow/internal/utils"
	"ventureflow/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

// AuthMiddleware handles JWT token validation and user authentication.
// It extracts the JWT token from the Authorization header, validates it,
// and adds the user claims to the request context.
type AuthMiddleware struct {
	secret string
}

func NewAuthMiddleware(secret string) *AuthMiddleware {
	if secret == "" {
		panic("jwt secret is required")
	}
	return &AuthMiddleware{secret: secret}
}

// Handler validates the bearer token and stores its claims under "claims" and
// the caller id under "userID".
func (m *AuthMiddleware) Handler(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return response.Error(c, fiber.StatusUnauthorized, "missing authorization header")
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return response.Error(c, fiber.StatusUnauthorized, "invalid authorization format")
	}

	claims, err := utils.ParseToken(m.secret, strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		log.Printf("[auth] token rejected from %s: %v", c.IP(), err)
		return response.Error(c, fiber.StatusUnauthorized, "invalid token")
	}

	c.Locals("claims", claims)
	c.Locals("userID", claims.UserID)

	return c.Next()
}

// AdminAuthMiddleware verifies that the request has valid admin claims.
func AdminAuthMiddleware(c *fiber.Ctx) error {
	claims, ok := c.Locals("claims").(*models.UserClaims)
	if !ok {
		return response.Unauthorized(c)
	}

	if !claims.IsAdmin() {
		log.Printf("[auth] admin access denied for user %s with role %s", claims.UserID, claims.Role)
		return response.Error(c, fiber.StatusForbidden, "Insufficient permissions")
	}

	return c.Next()
}

// HasPermission returns a middleware that checks for a specific permission.
// Admins pass every check.
func HasPermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals("claims").(*models.UserClaims)
		if !ok {
			return response.Unauthorized(c)
		}

		if claims.IsAdmin() || claims.HasPermission(permission) {
			return c.Next()
		}

		return response.Error(c, fiber.StatusForbidden, "Insufficient permissions")
	}
}
