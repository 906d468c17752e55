// handlers/routes.go
package handlers

import (
	"couple-games/feed"
	"couple-games/middleware"
	"couple-games/services"
	"couple-games/storage"

	"github.com/gofiber/fiber/v2"
)

// SetupRoutes registers every route. /healthz comes first so it answers
// without user context.
func SetupRoutes(app *fiber.App, store storage.Store, sessions *services.SessionService, subscriber feed.Subscriber) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		if err := store.Ping(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	secured := app.Group("/", middleware.UserContextMiddleware())
	SetupSessionRoutes(secured, sessions)
	SetupProgressRoutes(secured, sessions)
	SetupStreamRoutes(secured, subscriber)
}
