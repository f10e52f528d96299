package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-core/internal/api/dto"
	"github.com/spec-kit/auth-core/internal/service"
	apperrors "github.com/spec-kit/auth-core/pkg/util/errorutil"
)

// CustomerHandler exposes customer and guest auth endpoints.
type CustomerHandler struct {
	auth *service.AuthService
}

// NewCustomerHandler constructs handler.
func NewCustomerHandler(authService *service.AuthService) *CustomerHandler {
	return &CustomerHandler{auth: authService}
}

// Login handles POST /auth/customer/login.
func (h *CustomerHandler) Login(c *fiber.Ctx) error {
	var req dto.CustomerLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.AssertionToken == "" || req.DeviceID == "" {
		return apperrors.NewValidationError("assertionToken and deviceId required", nil)
	}

	pair, err := h.auth.AuthenticateCustomer(c.UserContext(), service.CustomerLogin{
		AssertionToken: req.AssertionToken,
		DeviceID:       req.DeviceID,
		GuestID:        req.GuestID,
		UserAgent:      c.Get(fiber.HeaderUserAgent),
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTokenPairResponse(pair))
}

// InitGuest handles POST /auth/guest/init.
func (h *CustomerHandler) InitGuest(c *fiber.Ctx) error {
	var req dto.GuestInitRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.DeviceID == "" {
		return apperrors.NewValidationError("deviceId required", nil)
	}

	guestID, pair, err := h.auth.InitializeGuest(c.UserContext(), req.DeviceID, req.GuestID, c.Get(fiber.HeaderUserAgent))
	if err != nil {
		return err
	}
	return c.JSON(dto.GuestInitResponse{GuestID: guestID, Tokens: dto.NewTokenPairResponse(pair)})
}
