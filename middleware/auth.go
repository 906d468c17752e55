// middleware/auth.go
package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const (
	localUserID   = "user_id"
	localCoupleID = "couple_id"
)

// UserContextMiddleware extracts the participant and couple identity set by
// the Gateway. Both are required: every game route is couple scoped.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		coupleID := c.Get("X-Couple-ID")

		if userID == "" || coupleID == "" {
			log.Warn().Str("path", c.Path()).Msg("❌ [USER_CTX] X-User-ID and X-Couple-ID required")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID or X-Couple-ID: request must come through gateway with auth context",
			})
		}

		c.Locals(localUserID, userID)
		c.Locals(localCoupleID, coupleID)

		log.Debug().Str("user_id", userID).Str("couple_id", coupleID).Str("path", c.Path()).Msg("👤 [USER_CTX]")
		return c.Next()
	}
}

// UserID returns the participant id stored by UserContextMiddleware.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(localUserID).(string)
	return id
}

// CoupleID returns the couple id stored by UserContextMiddleware.
func CoupleID(c *fiber.Ctx) string {
	id, _ := c.Locals(localCoupleID).(string)
	return id
}
