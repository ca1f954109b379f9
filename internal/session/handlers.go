package session

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Codeur974/sentiers-974-sub000/internal/activity"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req activity.Session
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		req.UserID = userID(c)

		sess, err := svc.Upsert(c.Context(), req)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(sess)
	})

	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		from, err := parseDate(c.Query("dateFrom"), 0)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid dateFrom")
		}
		to, err := parseDate(c.Query("dateTo"), time.Now().UnixMilli())
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid dateTo")
		}
		limit, _ := strconv.Atoi(c.Query("limit"))

		sessions, err := svc.Range(c.Context(), userID(c), from, to, limit)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if sessions == nil {
			sessions = []activity.Session{}
		}
		return c.JSON(sessions)
	})

	r.Get("/stats/daily", authMiddleware, func(c *fiber.Ctx) error {
		date := c.Query("date")
		if date == "" {
			return fiber.NewError(fiber.StatusBadRequest, "date required")
		}
		stats, err := svc.DailyStats(c.Context(), userID(c), date)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.JSON(stats)
	})

	r.Delete("/:id", authMiddleware, func(c *fiber.Ctx) error {
		found, err := svc.Delete(c.Context(), userID(c), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if !found {
			return fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

// parseDate accepts RFC3339 or epoch millis.
func parseDate(raw string, fallback int64) (int64, error) {
	if raw == "" {
		return fallback, nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}
