package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-core/internal/api/dto"
	"github.com/spec-kit/auth-core/internal/auth"
	"github.com/spec-kit/auth-core/internal/domain"
	"github.com/spec-kit/auth-core/internal/service"
	apperrors "github.com/spec-kit/auth-core/pkg/util/errorutil"
)

// TokenHandler exposes refresh, logout, liveness and key discovery endpoints.
type TokenHandler struct {
	sessions *service.SessionManager
	tokens   *auth.TokenManager
}

// NewTokenHandler constructs handler.
func NewTokenHandler(sessions *service.SessionManager, tokens *auth.TokenManager) *TokenHandler {
	return &TokenHandler{sessions: sessions, tokens: tokens}
}

// Refresh handles POST /auth/token/refresh. Every rotation failure the caller can act on
// is reported as 401.
func (h *TokenHandler) Refresh(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.RefreshToken == "" {
		return apperrors.NewValidationError("refreshToken required", nil)
	}

	pair, err := h.sessions.Rotate(c.UserContext(), req.RefreshToken, req.DeviceID, c.Get(fiber.HeaderUserAgent))
	if err != nil {
		domainErr := apperrors.ToDomainError(err)
		if domainErr.HTTPStatus < fiber.StatusInternalServerError {
			return domainErr.WithStatus(fiber.StatusUnauthorized)
		}
		return err
	}
	return c.JSON(dto.NewTokenPairResponse(pair))
}

// Logout handles POST /auth/logout.
func (h *TokenHandler) Logout(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.LogoutRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	filter := domain.RevokeFilter{
		RefreshToken: req.RefreshToken,
		DeviceID:     req.DeviceID,
		AllDevices:   req.AllDevices,
	}
	if filter.Empty() {
		return apperrors.NewValidationError("one of refreshToken, deviceId or allDevices required", nil)
	}

	if _, err := h.sessions.Revoke(c.UserContext(), principal.SubjectID, filter); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// VerifySession handles GET /auth/session/verify. Liveness is enforced by the route middleware.
func (h *TokenHandler) VerifySession(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"valid": true})
}

// JWKS handles GET /.well-known/jwks.json.
func (h *TokenHandler) JWKS(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "public, max-age=300")
	return c.JSON(h.tokens.JWKS())
}
