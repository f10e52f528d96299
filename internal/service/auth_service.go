package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/auth-core/internal/auth"
	"github.com/spec-kit/auth-core/internal/config"
	"github.com/spec-kit/auth-core/internal/domain"
	"github.com/spec-kit/auth-core/internal/events"
	"github.com/spec-kit/auth-core/internal/integration"
	"github.com/spec-kit/auth-core/internal/repository"
)

// AuthService resolves admins, customers and guests to subjects and opens their sessions.
type AuthService struct {
	subjects          repository.SubjectRepository
	sessions          *SessionManager
	claims            *ClaimsResolver
	hasher            *auth.PasswordHasher
	assertions        integration.AssertionVerifier
	profiles          integration.ProfileService
	dispatcher        events.Dispatcher
	logger            *zap.Logger
	minPasswordLength int
	now               func() time.Time
}

// AuthDependencies encapsulates collaborators of the auth service.
type AuthDependencies struct {
	Subjects   repository.SubjectRepository
	Sessions   *SessionManager
	Claims     *ClaimsResolver
	Assertions integration.AssertionVerifier
	Profiles   integration.ProfileService
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	minLen := cfg.MinPasswordLength
	if minLen <= 0 {
		minLen = 8
	}
	return &AuthService{
		subjects:          deps.Subjects,
		sessions:          deps.Sessions,
		claims:            deps.Claims,
		hasher:            auth.NewPasswordHasher(cfg.BcryptCost),
		assertions:        deps.Assertions,
		profiles:          deps.Profiles,
		dispatcher:        deps.Dispatcher,
		logger:            logger,
		minPasswordLength: minLen,
		now:               time.Now,
	}
}

// LoginAdmin authenticates an administrator by email and password.
func (s *AuthService) LoginAdmin(ctx context.Context, email, password, userAgent string) (*domain.TokenPair, error) {
	subject, err := s.subjects.GetAdminByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, domain.ErrSubjectNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load admin: %w", err)
	}

	admin, ok := subject.Admin()
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}
	matched, err := s.hasher.Verify(password, admin.PasswordDigest)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !matched {
		return nil, domain.ErrInvalidCredentials
	}
	if !admin.IsActive {
		return nil, domain.ErrAccountDisabled
	}

	payload, err := s.claims.PayloadFor(ctx, subject, "")
	if err != nil {
		return nil, err
	}
	return s.sessions.Issue(ctx, payload, IssueOptions{UserAgent: userAgent})
}

// RegisterAdmin creates an administrator and opens its first session.
func (s *AuthService) RegisterAdmin(ctx context.Context, email, password, userAgent string) (*domain.TokenPair, error) {
	email = normalizeEmail(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, fmt.Errorf("%w: invalid email", domain.ErrInvalidInput)
	}
	if len(password) < s.minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidInput, s.minPasswordLength)
	}

	_, err := s.subjects.GetAdminByEmail(ctx, email)
	if err == nil {
		return nil, domain.ErrAdminEmailExists
	}
	if !errors.Is(err, domain.ErrSubjectNotFound) {
		return nil, fmt.Errorf("load admin: %w", err)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	subject, err := s.subjects.CreateAdmin(ctx, email, digest)
	if err != nil {
		if errors.Is(err, domain.ErrAdminEmailExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create admin: %w", err)
	}

	payload, err := s.claims.PayloadFor(ctx, subject, "")
	if err != nil {
		return nil, err
	}
	return s.sessions.Issue(ctx, payload, IssueOptions{UserAgent: userAgent})
}

// CustomerLogin is the input of AuthenticateCustomer.
type CustomerLogin struct {
	AssertionToken string
	DeviceID       string
	GuestID        string
	UserAgent      string
}

// AuthenticateCustomer exchanges an identity assertion for a customer session, migrating
// the caller's guest identity when the profile service asks for a merge.
func (s *AuthService) AuthenticateCustomer(ctx context.Context, req CustomerLogin) (*domain.TokenPair, error) {
	if strings.TrimSpace(req.AssertionToken) == "" || strings.TrimSpace(req.DeviceID) == "" {
		return nil, fmt.Errorf("%w: assertionToken and deviceId required", domain.ErrInvalidInput)
	}

	assertion, err := s.assertions.VerifyIdentityAssertion(ctx, req.AssertionToken)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidToken) {
			return nil, err
		}
		return nil, fmt.Errorf("verify identity assertion: %w", err)
	}

	profile, err := s.profiles.EnsureCustomerProfile(ctx, integration.EnsureCustomerRequest{
		ExternalUID: assertion.ExternalUID,
		PhoneNumber: assertion.PhoneNumber,
		GuestID:     req.GuestID,
		DeviceID:    req.DeviceID,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure customer profile: %w", err)
	}

	subject, err := s.subjects.UpsertCustomer(ctx, assertion.ExternalUID, profile.ExternalCustomerID, s.now())
	if err != nil {
		return nil, fmt.Errorf("upsert customer: %w", err)
	}

	if profile.MergeGuestProfileID != "" {
		if err := s.migrateGuest(ctx, profile.MergeGuestProfileID, subject.ID, req.DeviceID); err != nil {
			return nil, err
		}
	}

	payload, err := s.claims.PayloadFor(ctx, subject, req.DeviceID)
	if err != nil {
		return nil, err
	}
	return s.sessions.Issue(ctx, payload, IssueOptions{DeviceID: req.DeviceID, UserAgent: req.UserAgent})
}

func (s *AuthService) migrateGuest(ctx context.Context, externalProfileID, customerSubjectID, deviceID string) error {
	guest, err := s.subjects.GetGuestByProfileID(ctx, externalProfileID)
	if errors.Is(err, domain.ErrSubjectNotFound) {
		s.logger.Warn("merge requested for unknown guest profile",
			zap.String("external_profile_id", externalProfileID),
			zap.String("customer_subject_id", customerSubjectID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load guest: %w", err)
	}
	if identity, _ := guest.Guest(); !identity.Migrated() && identity.DeviceID != deviceID {
		s.logger.Warn("merge requested from a device the guest is not bound to",
			zap.String("guest_subject_id", guest.ID),
			zap.String("customer_subject_id", customerSubjectID))
		return nil
	}

	err = s.subjects.MarkGuestMigrated(ctx, guest.ID, customerSubjectID, s.now())
	alreadyMigrated := errors.Is(err, domain.ErrGuestMigrated)
	if err != nil && !alreadyMigrated {
		return fmt.Errorf("migrate guest: %w", err)
	}

	// Sessions are dropped even for an already migrated guest in case a previous attempt
	// stopped between the two writes.
	removed, err := s.sessions.Evict(ctx, guest.ID)
	if err != nil {
		return fmt.Errorf("evict guest sessions: %w", err)
	}
	if alreadyMigrated {
		return nil
	}

	if s.dispatcher != nil {
		event := events.Event{
			ID:          uuid.NewString(),
			Type:        events.EventGuestMigrated,
			SubjectID:   guest.ID,
			SubjectType: domain.SubjectTypeGuest,
			Timestamp:   s.now(),
			Payload: events.GuestMigratedPayload{
				CustomerSubjectID: customerSubjectID,
				SessionsRemoved:   removed,
			},
		}
		if err := s.dispatcher.Publish(ctx, event); err != nil {
			s.logger.Warn("guest migration event handler failed", zap.String("subject_id", guest.ID), zap.Error(err))
		}
	}
	return nil
}

// InitializeGuest opens a device-bound guest session, minting a guest id when none is given.
func (s *AuthService) InitializeGuest(ctx context.Context, deviceID, guestID, userAgent string) (string, *domain.TokenPair, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return "", nil, fmt.Errorf("%w: deviceId required", domain.ErrInvalidInput)
	}
	guestID = strings.TrimSpace(guestID)
	if guestID == "" {
		guestID = uuid.NewString()
	} else if err := s.checkGuestDevice(ctx, guestID, deviceID); err != nil {
		return "", nil, err
	}

	profile, err := s.profiles.RegisterGuest(ctx, guestID, deviceID)
	if err != nil {
		return "", nil, fmt.Errorf("register guest: %w", err)
	}
	if profile.Status == domain.GuestStatusMigrated {
		return "", nil, domain.ErrGuestMigrated
	}

	subject, err := s.subjects.UpsertGuest(ctx, guestID, deviceID, profile.ExternalProfileID)
	if err != nil {
		if errors.Is(err, domain.ErrGuestMigrated) || errors.Is(err, domain.ErrDeviceMismatch) {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("upsert guest: %w", err)
	}

	payload, err := s.claims.PayloadFor(ctx, subject, deviceID)
	if err != nil {
		return "", nil, err
	}
	tokens, err := s.sessions.Issue(ctx, payload, IssueOptions{DeviceID: deviceID, UserAgent: userAgent})
	if err != nil {
		return "", nil, err
	}
	return guestID, tokens, nil
}

// checkGuestDevice rejects a known ACTIVE guest presented from another device before the
// profile service is contacted. UpsertGuest repeats the check under the row lock.
func (s *AuthService) checkGuestDevice(ctx context.Context, guestID, deviceID string) error {
	subject, err := s.subjects.GetGuestByGuestID(ctx, guestID)
	if errors.Is(err, domain.ErrSubjectNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load guest: %w", err)
	}
	if guest, _ := subject.Guest(); !guest.Migrated() && guest.DeviceID != deviceID {
		return domain.ErrDeviceMismatch
	}
	return nil
}

// GetSubject loads a subject for peer services.
func (s *AuthService) GetSubject(ctx context.Context, subjectID string) (*domain.Subject, error) {
	if _, err := uuid.Parse(subjectID); err != nil {
		return nil, domain.ErrSubjectNotFound
	}
	return s.subjects.GetByID(ctx, subjectID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
