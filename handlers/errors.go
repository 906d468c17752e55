// handlers/errors.go
package handlers

import (
	"errors"

	"couple-games/services"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// respondError maps service errors to HTTP statuses. Unknown errors are
// transient store failures: the client shows a message and the user retries.
func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, services.ErrNotParticipant):
		status = fiber.StatusForbidden
	case errors.Is(err, services.ErrSessionClosed),
		errors.Is(err, services.ErrSessionFull),
		errors.Is(err, services.ErrSessionNotReady):
		status = fiber.StatusConflict
	case errors.Is(err, services.ErrUnknownQuestion),
		errors.Is(err, services.ErrEmptyAnswer),
		errors.Is(err, services.ErrMissingGuess),
		errors.Is(err, services.ErrInvalidGameType),
		errors.Is(err, services.ErrUnknownCollection),
		errors.Is(err, services.ErrUnknownItem):
		status = fiber.StatusBadRequest
	}

	if status == fiber.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("[HTTP] request failed")
		return c.Status(status).JSON(fiber.Map{
			"error":     "temporary failure, please retry",
			"retryable": true,
		})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}
