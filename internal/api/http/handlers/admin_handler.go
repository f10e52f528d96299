package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-core/internal/api/dto"
	"github.com/spec-kit/auth-core/internal/service"
	apperrors "github.com/spec-kit/auth-core/pkg/util/errorutil"
)

// AdminHandler exposes administrator auth endpoints.
type AdminHandler struct {
	auth *service.AuthService
}

// NewAdminHandler constructs handler.
func NewAdminHandler(authService *service.AuthService) *AdminHandler {
	return &AdminHandler{auth: authService}
}

// Register handles POST /auth/admin/register.
func (h *AdminHandler) Register(c *fiber.Ctx) error {
	req, err := parseAdminCredentials(c)
	if err != nil {
		return err
	}

	pair, err := h.auth.RegisterAdmin(c.UserContext(), req.Email, req.Password, c.Get(fiber.HeaderUserAgent))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewTokenPairResponse(pair))
}

// Login handles POST /auth/admin/login.
func (h *AdminHandler) Login(c *fiber.Ctx) error {
	req, err := parseAdminCredentials(c)
	if err != nil {
		return err
	}

	pair, err := h.auth.LoginAdmin(c.UserContext(), req.Email, req.Password, c.Get(fiber.HeaderUserAgent))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTokenPairResponse(pair))
}

func parseAdminCredentials(c *fiber.Ctx) (*dto.AdminCredentialsRequest, error) {
	var req dto.AdminCredentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return nil, apperrors.NewValidationError("email and password required", nil)
	}
	return &req, nil
}
