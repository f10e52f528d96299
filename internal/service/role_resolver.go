package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/auth-core/internal/integration"
)

// RoleResolver fetches admin role names from the authorization service.
type RoleResolver struct {
	provider integration.RolesProvider
	failOpen bool
	logger   *zap.Logger
}

// NewRoleResolver builds a resolver. A nil provider means the integration is disabled.
func NewRoleResolver(provider integration.RolesProvider, failOpen bool, logger *zap.Logger) *RoleResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoleResolver{provider: provider, failOpen: failOpen, logger: logger}
}

// GetAdminRoles returns the subject's roles. Empty roles grant nothing downstream, so the
// disabled and fail-open paths still issue tokens.
func (r *RoleResolver) GetAdminRoles(ctx context.Context, subjectID string) ([]string, error) {
	if r.provider == nil {
		r.logger.Warn("roles integration disabled, issuing admin token without roles",
			zap.String("subject_id", subjectID))
		return []string{}, nil
	}

	roles, err := r.provider.GetRoles(ctx, subjectID)
	if err != nil {
		if r.failOpen {
			r.logger.Warn("roles lookup failed, issuing admin token without roles",
				zap.String("subject_id", subjectID), zap.Error(err))
			return []string{}, nil
		}
		return nil, fmt.Errorf("resolve admin roles: %w", err)
	}
	if roles == nil {
		roles = []string{}
	}
	return roles, nil
}
