package session

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ronpik/area-calc-sub000/internal/shared/geo"
)

type savePayload struct {
	Name   string         `json:"name"`
	Points []TrackedPoint `json:"points"`
	Area   *float64       `json:"area"`
}

func RegisterRoutes(r fiber.Router, store *Store, authMiddleware fiber.Handler) {
	r.Use(authMiddleware)

	r.Get("/", func(c *fiber.Ctx) error {
		index, err := store.FetchIndex(c.Context(), userID(c))
		if err != nil {
			return respondStorageError(c, err)
		}
		if index == nil {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.JSON(index)
	})

	r.Post("/", func(c *fiber.Ctx) error {
		var req savePayload
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name required")
		}
		meta, err := store.SaveNewSession(c.Context(), userID(c), req.Name, req.Points, areaOf(req))
		if err != nil {
			return respondStorageError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(meta)
	})

	r.Post("/hash", func(c *fiber.Ctx) error {
		var req struct {
			Points []TrackedPoint `json:"points"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.JSON(fiber.Map{"hash": GeneratePointsHash(req.Points)})
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		data, err := store.LoadSession(c.Context(), userID(c), c.Params("id"))
		if err != nil {
			return respondStorageError(c, err)
		}
		return c.JSON(data)
	})

	r.Put("/:id", func(c *fiber.Ctx) error {
		var req savePayload
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		meta, err := store.UpdateSession(c.Context(), userID(c), c.Params("id"), req.Points, areaOf(req))
		if err != nil {
			return respondStorageError(c, err)
		}
		return c.JSON(meta)
	})

	r.Patch("/:id/name", func(c *fiber.Ctx) error {
		var req struct {
			Name string `json:"name"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := store.RenameSession(c.Context(), userID(c), c.Params("id"), req.Name); err != nil {
			return respondStorageError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Delete("/:id", func(c *fiber.Ctx) error {
		if err := store.DeleteSession(c.Context(), userID(c), c.Params("id")); err != nil {
			return respondStorageError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Delete("/:id/index", func(c *fiber.Ctx) error {
		if err := store.RemoveFromIndex(c.Context(), userID(c), c.Params("id")); err != nil {
			return respondStorageError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Delete("/", func(c *fiber.Ctx) error {
		if err := store.DeleteAllSessions(c.Context(), userID(c)); err != nil {
			return respondStorageError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

// areaOf falls back to the spherical polygon area when the client omits it.
func areaOf(req savePayload) float64 {
	if req.Area != nil {
		return *req.Area
	}
	lats := make([]float64, len(req.Points))
	lngs := make([]float64, len(req.Points))
	for i, p := range req.Points {
		lats[i] = p.Point.Lat
		lngs[i] = p.Point.Lng
	}
	return geo.PolygonAreaM2(lats, lngs)
}

// respondStorageError keeps the StorageError JSON as the response body so UI
// collaborators can key their messaging on code and retry.
func respondStorageError(c *fiber.Ctx, err error) error {
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.Status(statusFor(storageErr.Code)).JSON(storageErr)
}

func statusFor(code ErrorCode) int {
	switch code {
	case CodeNotAuthenticated:
		return fiber.StatusUnauthorized
	case CodePermissionDenied:
		return fiber.StatusForbidden
	case CodeSessionNotFound, CodeIndexNotFound:
		return fiber.StatusNotFound
	case CodeQuotaExceeded:
		return fiber.StatusInsufficientStorage
	case CodeNetworkError:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
