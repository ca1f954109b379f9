package poi

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/Codeur974/sentiers-974-sub000/internal/activity"
)

func RegisterRoutes(app *fiber.App, svc *Service, authMiddleware fiber.Handler) {
	// Multipart create: title, note, coordinates, optional photo.
	app.Post("/sessions/:id/poi", authMiddleware, func(c *fiber.Ctx) error {
		input := activity.PointOfInterest{
			Title:     c.FormValue("title"),
			Note:      c.FormValue("note"),
			Latitude:  parseFloat(c.FormValue("latitude")),
			Longitude: parseFloat(c.FormValue("longitude")),
			Altitude:  parseFloat(c.FormValue("altitude")),
			Distance:  parseFloat(c.FormValue("distance")),
			Time:      parseInt(c.FormValue("time")),
			CreatedAt: activity.Timestamp(parseInt(c.FormValue("created_at"))),
		}
		if input.Title == "" {
			return fiber.NewError(fiber.StatusBadRequest, "title required")
		}

		uid := userID(c)
		if file, err := c.FormFile("photo"); err == nil && file != nil {
			url, err := svc.SavePhoto(c.Context(), uid, file.Filename)
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, err.Error())
			}
			input.PhotoURL = url
		}

		created, err := svc.Create(c.Context(), uid, c.Params("id"), input)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(created)
	})

	app.Get("/pointofinterests", authMiddleware, func(c *fiber.Ctx) error {
		pois, err := svc.List(c.Context(), userID(c))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if pois == nil {
			pois = []activity.PointOfInterest{}
		}
		return c.JSON(pois)
	})

	app.Delete("/pointofinterests/:id", authMiddleware, func(c *fiber.Ctx) error {
		found, err := svc.Delete(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if !found {
			return fiber.NewError(fiber.StatusNotFound, "poi not found")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

func parseFloat(raw string) float64 {
	v, _ := strconv.ParseFloat(raw, 64)
	return v
}

func parseInt(raw string) int64 {
	v, _ := strconv.ParseInt(raw, 10, 64)
	return v
}
