package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/Codeur974/sentiers-974-sub000/internal/activity"
	"github.com/Codeur974/sentiers-974-sub000/internal/deletion"
	"github.com/Codeur974/sentiers-974-sub000/internal/reconcile"
)

func newApp(svc *reconcile.Service, coord *deletion.Coordinator, photoDir string) *fiber.App {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/feed", func(c *fiber.Ctx) error {
		feed := svc.Feed()
		if feed == nil {
			feed = []activity.DayGroup{}
		}
		return c.JSON(feed)
	})

	app.Post("/feed/refresh", func(c *fiber.Ctx) error {
		go func() {
			_ = svc.Refresh(context.Background())
		}()
		return c.SendStatus(fiber.StatusAccepted)
	})

	app.Get("/sync/status", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"syncing": svc.IsSyncing(),
			"state":   svc.State().String(),
			"pending": svc.PendingSync(),
		})
	})

	app.Post("/sync/drain", func(c *fiber.Ctx) error {
		succeeded, pending, err := svc.DrainQueue(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"succeeded": succeeded, "pending": pending})
	})

	app.Post("/sessions", func(c *fiber.Ctx) error {
		var req activity.Session
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		sess, err := svc.SaveSession(c.Context(), req)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(sess)
	})

	app.Post("/sessions/active", func(c *fiber.Ctx) error {
		var req struct {
			ID string `json:"id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		svc.SetActiveSession(req.ID)
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Post("/pois", func(c *fiber.Ctx) error {
		var req activity.PointOfInterest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		var photo io.Reader
		photoName := ""
		if f, name, ok := openPhoto(photoDir, req.PhotoURI); ok {
			defer f.Close()
			photo = f
			photoName = name
		}

		poi, err := svc.CreatePOI(c.Context(), req, photo, photoName)
		if err != nil {
			if errors.Is(err, reconcile.ErrNoSession) {
				return fiber.NewError(fiber.StatusConflict, err.Error())
			}
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(poi)
	})

	app.Delete("/photos/:id", func(c *fiber.Ctx) error {
		err := coord.DeletePhoto(c.Context(), c.Params("id"))
		if errors.Is(err, deletion.ErrRemotePhotoDelete) {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Delete("/sessions/:id", func(c *fiber.Ctx) error {
		if err := coord.DeleteSession(c.Context(), c.Params("id")); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	// Destructive; the UI confirms with the user before calling.
	app.Delete("/days/:date", func(c *fiber.Ctx) error {
		if c.Query("confirm") != "true" {
			return fiber.NewError(fiber.StatusBadRequest, "confirm=true required")
		}
		report, err := coord.DeleteDay(c.Context(), c.Params("date"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.JSON(report)
	})

	return app
}

// openPhoto resolves a device photo URI to a readable file. Bare relative
// paths are looked up under the configured photo directory.
func openPhoto(photoDir, uri string) (*os.File, string, bool) {
	if uri == "" {
		return nil, "", false
	}
	path := strings.TrimPrefix(uri, "file://")
	if strings.Contains(path, "://") {
		return nil, "", false
	}
	if !filepath.IsAbs(path) && photoDir != "" {
		path = filepath.Join(photoDir, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", false
	}
	return f, filepath.Base(path), true
}
