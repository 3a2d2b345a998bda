package handlers

import (
	"secondchance/internal/middleware"
	"secondchance/internal/services"

	"github.com/gofiber/fiber/v2"
)

// AuthHandler handles HTTP requests for authentication.
type AuthHandler struct {
	authService *services.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// RegisterRoutes registers the authentication routes. limiter guards the
// credential endpoints and protected guards profile updates.
func (h *AuthHandler) RegisterRoutes(router fiber.Router, limiter, protected fiber.Handler) {
	authRoutes := router.Group("/auth")
	authRoutes.Post("/register", limiter, h.HandleRegister)
	authRoutes.Post("/login", limiter, h.HandleLogin)
	authRoutes.Put("/update", protected, h.HandleUpdate)
}

// HandleRegister handles new user registration.
func (h *AuthHandler) HandleRegister(c *fiber.Ctx) error {
	var req services.RegisterInput
	if err := c.BodyParser(&req); err != nil {
		return badRequestBody(c)
	}

	res, err := h.authService.Register(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"authToken": res.Token,
		"email":     res.Email,
	})
}

// HandleLogin handles user login and issues a JWT token.
func (h *AuthHandler) HandleLogin(c *fiber.Ctx) error {
	var req services.LoginInput
	if err := c.BodyParser(&req); err != nil {
		return badRequestBody(c)
	}

	res, err := h.authService.Login(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"authToken": res.Token,
		"userName":  res.UserName,
		"userEmail": res.UserEmail,
	})
}

// HandleUpdate changes the caller's first name. The token names the user and
// the email header must agree with it.
func (h *AuthHandler) HandleUpdate(c *fiber.Ctx) error {
	var req services.UpdateProfileInput
	if err := c.BodyParser(&req); err != nil {
		return badRequestBody(c)
	}
	req.UserID = middleware.UserID(c)
	req.Email = c.Get("email")

	token, err := h.authService.UpdateProfile(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"authtoken": token})
}
