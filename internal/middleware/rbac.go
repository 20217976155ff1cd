package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-classroom/internal/authz"
	"github.com/noah-isme/gema-classroom/internal/utils"
)

// RequireCapability lets the request through only when the caller's role has the capability.
func RequireCapability(capability authz.Capability) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !capability(RoleFromContext(c)) {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}

// RoleFromContext returns the caller's role as stored by JWTProtected.
func RoleFromContext(c *fiber.Ctx) authz.Role {
	if value, ok := c.Locals(LocalUserRole).(string); ok {
		return authz.ParseRole(value)
	}
	return authz.RoleUnknown
}

// UserIDFromContext returns the caller's profile id as stored by JWTProtected.
func UserIDFromContext(c *fiber.Ctx) string {
	if value, ok := c.Locals(LocalUserID).(string); ok {
		return value
	}
	return ""
}
