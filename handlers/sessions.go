// handlers/sessions.go
package handlers

import (
	"couple-games/middleware"
	"couple-games/models"
	"couple-games/services"

	"github.com/gofiber/fiber/v2"
)

type startSessionBody struct {
	GameType  string `json:"game_type"`
	Locale    string `json:"locale"`
	PartnerID string `json:"partner_id"`
}

type submitAnswerBody struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
	Guess      string `json:"guess"`
	Skipped    bool   `json:"skipped"`
}

func SetupSessionRoutes(secured fiber.Router, sessions *services.SessionService) {
	secured.Get("/questions", func(c *fiber.Ctx) error {
		gt, err := services.ParseGameType(c.Query("game"))
		if err != nil {
			return respondError(c, err)
		}
		level := c.QueryInt("level", 0)
		if level <= 0 {
			prog, err := sessions.Progression.Current(c.UserContext(), middleware.CoupleID(c))
			if err != nil {
				return respondError(c, err)
			}
			level = prog.CurrentLevel
		}
		locale := c.Query("locale", "en")
		return c.JSON(fiber.Map{
			"game_type": gt,
			"level":     level,
			"tier":      services.TierForLevel(level),
			"locale":    services.ResolveLocale(locale).String(),
			"questions": services.GetQuestions(level, locale, gt),
		})
	})

	secured.Post("/sessions", func(c *fiber.Ctx) error {
		var body startSessionBody
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid request body")
		}
		gt, err := services.ParseGameType(body.GameType)
		if err != nil {
			return respondError(c, err)
		}
		sess, created, err := sessions.Start(c.UserContext(), services.StartRequest{
			CoupleID:    middleware.CoupleID(c),
			InitiatorID: middleware.UserID(c),
			PartnerID:   body.PartnerID,
			GameType:    gt,
			Locale:      body.Locale,
		})
		if err != nil {
			return respondError(c, err)
		}
		status := fiber.StatusOK
		if created {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(fiber.Map{"session": sess, "created": created})
	})

	secured.Get("/sessions/open", func(c *fiber.Ctx) error {
		gt, err := services.ParseGameType(c.Query("game"))
		if err != nil {
			return respondError(c, err)
		}
		sess, found, err := sessions.FindOpen(c.UserContext(), middleware.CoupleID(c), gt)
		if err != nil {
			return respondError(c, err)
		}
		if !found {
			return c.JSON(fiber.Map{"session": nil})
		}
		return c.JSON(fiber.Map{"session": sess})
	})

	secured.Get("/sessions/:id", withSession(sessions, func(c *fiber.Ctx, sess models.GameSession) error {
		view, completion, err := sessions.Refresh(c.UserContext(), sess.ID, middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"view": view, "completion": completion})
	}))

	secured.Post("/sessions/:id/join", withSession(sessions, func(c *fiber.Ctx, sess models.GameSession) error {
		joined, err := sessions.Join(c.UserContext(), sess.ID, middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"session": joined})
	}))

	secured.Post("/sessions/:id/responses", withSession(sessions, func(c *fiber.Ctx, sess models.GameSession) error {
		var body submitAnswerBody
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid request body")
		}
		res, err := sessions.SubmitAnswer(c.UserContext(), services.AnswerRequest{
			SessionID:     sess.ID,
			ParticipantID: middleware.UserID(c),
			QuestionID:    body.QuestionID,
			Answer:        body.Answer,
			Guess:         body.Guess,
			Skipped:       body.Skipped,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	}))

	secured.Get("/sessions/:id/responses", withSession(sessions, func(c *fiber.Ctx, sess models.GameSession) error {
		if !sess.IsParticipant(middleware.UserID(c)) {
			return respondError(c, services.ErrNotParticipant)
		}
		recs, err := sessions.Responses.ReadForSession(c.UserContext(), sess.ID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"responses": recs})
	}))
}

// withSession loads :id and rejects sessions of another couple as not found.
func withSession(sessions *services.SessionService, next func(*fiber.Ctx, models.GameSession) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := sessions.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		if sess.CoupleID != middleware.CoupleID(c) {
			return respondError(c, services.ErrSessionNotFound)
		}
		return next(c, sess)
	}
}
