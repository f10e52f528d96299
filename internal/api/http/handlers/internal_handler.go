package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-core/internal/api/dto"
	"github.com/spec-kit/auth-core/internal/domain"
	"github.com/spec-kit/auth-core/internal/service"
	apperrors "github.com/spec-kit/auth-core/pkg/util/errorutil"
)

// InternalHandler serves peer services behind the service credential.
type InternalHandler struct {
	auth     *service.AuthService
	sessions *service.SessionManager
}

// NewInternalHandler constructs handler.
func NewInternalHandler(authService *service.AuthService, sessions *service.SessionManager) *InternalHandler {
	return &InternalHandler{auth: authService, sessions: sessions}
}

// ValidateToken handles POST /internal/tokens/validate. Invalid or superseded tokens are a
// normal answer, not an error.
func (h *InternalHandler) ValidateToken(c *fiber.Ctx) error {
	var req dto.ValidateTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.AccessToken == "" {
		return apperrors.NewValidationError("accessToken required", nil)
	}

	claims, err := h.sessions.ValidateAccessToken(c.UserContext(), req.AccessToken)
	if errors.Is(err, domain.ErrInvalidToken) || errors.Is(err, domain.ErrSessionInactive) {
		return c.JSON(dto.ValidateTokenResponse{Valid: false})
	}
	if err != nil {
		return err
	}

	return c.JSON(dto.ValidateTokenResponse{
		Valid:     true,
		SubjectID: claims.Subject,
		UserType:  string(claims.UserType),
		Role:      string(claims.UserType),
		Roles:     claims.Roles,
	})
}

// GetSubject handles GET /internal/subjects/:id.
func (h *InternalHandler) GetSubject(c *fiber.Ctx) error {
	subject, err := h.auth.GetSubject(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewSubjectResponse(subject))
}
