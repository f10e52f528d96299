package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-core/internal/domain"
	apperrors "github.com/spec-kit/auth-core/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	SubjectID string
	UserType  domain.SubjectType
	SessionID string
	Claims    *Claims
}

// SessionChecker answers whether a session id is still the subject's live session.
type SessionChecker interface {
	VerifyActiveSession(ctx context.Context, subjectID, sessionID string) (bool, error)
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens   *TokenManager
	sessions SessionChecker
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, sessions SessionChecker) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, sessions: sessions}
}

// Handle enforces a signature-valid bearer token. Superseded sessions still pass.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	token, err := bearerToken(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return err
	}

	claims, err := m.tokens.Verify(token)
	if err != nil {
		return err
	}

	c.Locals(principalKey, &Principal{
		SubjectID: claims.Subject,
		UserType:  claims.UserType,
		SessionID: claims.SessionID,
		Claims:    claims,
	})
	return c.Next()
}

// RequireLiveSession rejects tokens whose session is no longer the subject's active one.
// It must run after Handle.
func (m *AuthMiddleware) RequireLiveSession(c *fiber.Ctx) error {
	principal, ok := PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	live, err := m.sessions.VerifyActiveSession(c.UserContext(), principal.SubjectID, principal.SessionID)
	if err != nil {
		return err
	}
	if !live {
		return domain.ErrSessionInactive
	}
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", apperrors.NewUnauthorized("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.NewUnauthorized("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
