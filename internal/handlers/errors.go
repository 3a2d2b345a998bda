package handlers

import (
	"errors"

	"secondchance/internal/services"

	"github.com/gofiber/fiber/v2"
)

// errorResponse pairs a status code with the message shown to clients.
type errorResponse struct {
	status  int
	message string
}

var errorStatusMap = map[error]errorResponse{
	services.ErrEmailTaken:         {fiber.StatusBadRequest, "Email already in use"},
	services.ErrEmailRequired:      {fiber.StatusBadRequest, "Email is required"},
	services.ErrUserNotFound:       {fiber.StatusNotFound, "User not found"},
	services.ErrInvalidCredentials: {fiber.StatusUnauthorized, "Invalid credentials"},
	services.ErrForbidden:          {fiber.StatusForbidden, "Forbidden"},
	services.ErrItemNotFound:       {fiber.StatusNotFound, "Item not found"},
}

// respondError writes the client-facing response for a known domain error.
// Anything else is returned unchanged for the app's ErrorHandler.
func respondError(c *fiber.Ctx, err error) error {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": verr.Fields})
	}

	var uerr *services.UploadError
	if errors.As(err, &uerr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "File upload failed",
			"reason": uerr.Reason,
		})
	}

	for target, resp := range errorStatusMap {
		if errors.Is(err, target) {
			return c.Status(resp.status).JSON(fiber.Map{"error": resp.message})
		}
	}
	return err
}

func badRequestBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
}
