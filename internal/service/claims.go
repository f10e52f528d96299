package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/spec-kit/auth-core/internal/domain"
	"github.com/spec-kit/auth-core/internal/repository"
)

// ClaimsResolver derives access token claims from the subject's current record.
type ClaimsResolver struct {
	subjects repository.SubjectRepository
	roles    *RoleResolver
}

// NewClaimsResolver builds the resolver.
func NewClaimsResolver(subjects repository.SubjectRepository, roles *RoleResolver) *ClaimsResolver {
	return &ClaimsResolver{subjects: subjects, roles: roles}
}

// BuildAccessPayload reloads the subject so that rotation never trusts claims minted at login.
// Missing subjects and disabled admins yield ErrUserDisabled, migrated guests ErrGuestMigrated.
func (r *ClaimsResolver) BuildAccessPayload(ctx context.Context, subjectID, deviceID string) (domain.AccessPayload, error) {
	subject, err := r.subjects.GetByID(ctx, subjectID)
	if errors.Is(err, domain.ErrSubjectNotFound) {
		return domain.AccessPayload{}, domain.ErrUserDisabled
	}
	if err != nil {
		return domain.AccessPayload{}, fmt.Errorf("load subject: %w", err)
	}
	return r.PayloadFor(ctx, subject, deviceID)
}

// PayloadFor builds the claims for an already loaded subject.
func (r *ClaimsResolver) PayloadFor(ctx context.Context, subject *domain.Subject, deviceID string) (domain.AccessPayload, error) {
	payload := domain.AccessPayload{
		SubjectID: subject.ID,
		UserType:  subject.Type,
	}

	switch identity := subject.Identity.(type) {
	case *domain.AdminCredential:
		if !identity.IsActive {
			return domain.AccessPayload{}, domain.ErrUserDisabled
		}
		roles, err := r.roles.GetAdminRoles(ctx, subject.ID)
		if err != nil {
			return domain.AccessPayload{}, err
		}
		payload.Roles = roles
	case *domain.CustomerIdentity:
		payload.ExternalUID = identity.ExternalUID
		payload.DeviceID = deviceID
	case *domain.GuestIdentity:
		if identity.Migrated() {
			return domain.AccessPayload{}, domain.ErrGuestMigrated
		}
		if deviceID == "" {
			deviceID = identity.DeviceID
		}
		payload.GuestID = identity.GuestID
		payload.DeviceID = deviceID
		payload.ExternalProfileID = identity.ExternalProfileID
	default:
		return domain.AccessPayload{}, fmt.Errorf("subject %s has no identity record", subject.ID)
	}
	return payload, nil
}
