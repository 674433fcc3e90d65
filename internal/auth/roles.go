package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/empowerfin/auth-service/internal/domain"
	apperrors "github.com/empowerfin/auth-service/pkg/util/errorutil"
)

// RequireRole ensures the principal has one of the allowed roles.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if _, exists := allowedSet[principal.Role()]; !exists {
			return apperrors.NewForbidden("access denied: insufficient role")
		}
		return c.Next()
	}
}

// RequireVerifiedEmail blocks principals whose email is not verified.
func RequireVerifiedEmail() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !principal.User.EmailVerified {
			return apperrors.NewForbidden("please verify your email first")
		}
		return c.Next()
	}
}
