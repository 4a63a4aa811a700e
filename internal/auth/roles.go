package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/locate-tracker/internal/domain"
	apperrors "github.com/spec-kit/locate-tracker/pkg/util/errorutil"
)

// RequireRole ensures the caller holds at least the given role.
func RequireRole(minimum domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !principal.Role.AtLeast(minimum) {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireAnyRole ensures caller is authenticated with a known role.
func RequireAnyRole() fiber.Handler {
	return RequireRole(domain.RoleViewer)
}
