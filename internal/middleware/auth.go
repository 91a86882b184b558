package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/autogift/internal/config"
	"github.com/localnerve/autogift/internal/services"
	"github.com/localnerve/autogift/internal/types"
)

// Locals keys set by the auth middleware
const (
	LocalUser   = "user"
	LocalUserID = "user_id"
)

// SessionValidator checks a session cookie against a set of roles
type SessionValidator func(cookie string, roles []string) (*services.SessionUser, error)

// AuthAdmin requires an admin session
func AuthAdmin(cfg *config.Config) fiber.Handler {
	return Authorize(cfg, []string{"admin"}, "autogift.authorization.admin", services.ValidateSession)
}

// AuthUser requires a user session
func AuthUser(cfg *config.Config) fiber.Handler {
	return Authorize(cfg, []string{"user"}, "autogift.authorization.user", services.ValidateSession)
}

// Authorize builds an auth handler. The Authorizer client is created on the first request
// because its redirect URL comes from the request host. A nil cfg skips initialization.
func Authorize(cfg *config.Config, roles []string, errorType string, validate SessionValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg != nil && !services.IsAuthorizerInitialized() {
			if err := services.InitAuthorizer(cfg, c.Protocol(), c.Hostname()); err != nil {
				return &types.CustomError{
					Code:    fiber.StatusServiceUnavailable,
					Message: fmt.Sprintf("Authorizer unavailable: %v", err),
					Type:    errorType,
				}
			}
		}

		// Get session cookie
		session := c.Cookies("cookie_session")
		if session == "" {
			return &types.CustomError{
				Code:    fiber.StatusForbidden,
				Message: "Authorizer cookie \"cookie_session\" not found",
				Type:    errorType,
			}
		}

		user, err := validate(session, roles)
		if err != nil {
			return &types.CustomError{
				Code:    fiber.StatusForbidden,
				Message: fmt.Sprintf("Invalid session: %v", err),
				Type:    errorType,
			}
		}

		c.Locals(LocalUser, user)
		c.Locals(LocalUserID, user.ID)

		return c.Next()
	}
}
