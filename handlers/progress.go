// handlers/progress.go
package handlers

import (
	"strings"

	"couple-games/middleware"
	"couple-games/models"
	"couple-games/services"

	"github.com/gofiber/fiber/v2"
)

func SetupProgressRoutes(secured fiber.Router, sessions *services.SessionService) {
	progression := sessions.Progression
	rewards := sessions.Rewards

	secured.Get("/progress", func(c *fiber.Ctx) error {
		prog, err := progression.Current(c.UserContext(), middleware.CoupleID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"couple_id":         prog.CoupleID,
			"xp":                prog.TotalExperience,
			"level":             prog.CurrentLevel,
			"xp_for_next_level": prog.ExperienceForNextLevel,
			"tier":              services.TierForLevel(prog.CurrentLevel),
			"games_completed":   prog.GamesCompleted,
			"last_level_up_at":  prog.LastLevelUpAt,
		})
	})

	secured.Get("/history", func(c *fiber.Ctx) error {
		var gt models.GameType
		if raw := c.Query("game"); raw != "" {
			parsed, err := services.ParseGameType(raw)
			if err != nil {
				return respondError(c, err)
			}
			gt = parsed
		}
		history, err := rewards.History(c.UserContext(), middleware.CoupleID(c), gt)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"completions": history})
	})

	secured.Get("/wallet", func(c *fiber.Ctx) error {
		wallet, err := rewards.Balance(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(wallet)
	})

	secured.Post("/collections/:id/items", func(c *fiber.Ctx) error {
		var body struct {
			ItemID string `json:"item_id"`
		}
		if err := c.BodyParser(&body); err != nil || body.ItemID == "" {
			return badRequest(c, "item_id is required")
		}
		userID := middleware.UserID(c)
		added, err := rewards.CollectItem(c.UserContext(), userID, c.Params("id"), body.ItemID)
		if err != nil {
			return respondError(c, err)
		}
		// Completing a collection is checked right away; the check is repeatable.
		bonus, err := rewards.CheckCollectionBonus(c.UserContext(), userID, c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"added": added, "bonus_granted": bonus})
	})

	secured.Post("/collections/:id/bonus", func(c *fiber.Ctx) error {
		granted, err := rewards.CheckCollectionBonus(c.UserContext(), middleware.UserID(c), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"bonus_granted": granted})
	})

	// Admin: manual XP grant for support cases.
	secured.Post("/admin/xp/grant", func(c *fiber.Ctx) error {
		if !hasRole(c.Get("X-User-Roles"), "admin") {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin role required"})
		}
		var req struct {
			CoupleID string `json:"couple_id"`
			XP       int64  `json:"xp"`
		}
		if err := c.BodyParser(&req); err != nil || req.CoupleID == "" || req.XP <= 0 {
			return badRequest(c, "couple_id and a positive xp are required")
		}
		prog, err := progression.AddExperience(c.UserContext(), req.CoupleID, req.XP)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(prog)
	})
}

func hasRole(header, role string) bool {
	for _, r := range strings.Split(header, ",") {
		if strings.TrimSpace(r) == role {
			return true
		}
	}
	return false
}
