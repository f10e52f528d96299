package auth

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/auth-core/pkg/util/errorutil"
)

// ServiceTokenHeader carries the shared credential of peer services.
const ServiceTokenHeader = "X-Service-Token"

// RequireServiceToken gates service-to-service routes. End-user tokens are never accepted here.
// An empty configured token rejects every call.
func RequireServiceToken(expected string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		presented := c.Get(ServiceTokenHeader)
		if expected == "" || presented == "" {
			return apperrors.NewUnauthorized("service credential required")
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) != 1 {
			return apperrors.NewForbidden("invalid service credential")
		}
		return c.Next()
	}
}
