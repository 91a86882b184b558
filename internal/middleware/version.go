package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/autogift/internal/types"
)

// CurrentAPIVersion is assumed when the client sends no X-Api-Version header
const CurrentAPIVersion = "1.0.0"

// VersionMiddleware parses the X-Api-Version header, rejects unsupported majors and stores it in context
func VersionMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		version := strings.TrimPrefix(strings.TrimSpace(c.Get("X-Api-Version", CurrentAPIVersion)), "v")

		// Support version aliases
		switch version {
		case "1", "1.0":
			version = CurrentAPIVersion
		}

		major, _, _ := strings.Cut(version, ".")
		if major != "1" {
			return &types.CustomError{
				Code:    fiber.StatusBadRequest,
				Message: "Unsupported X-Api-Version " + version,
				Type:    "version",
			}
		}

		// Store version in context
		c.Locals("apiVersion", version)
		c.Set("X-Api-Version", CurrentAPIVersion)

		return c.Next()
	}
}
