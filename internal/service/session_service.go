package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/auth-core/internal/auth"
	"github.com/spec-kit/auth-core/internal/domain"
	"github.com/spec-kit/auth-core/internal/events"
	"github.com/spec-kit/auth-core/internal/repository"
)

// SessionManager issues, rotates and revokes sessions. The Postgres store holds the durable
// row and the Redis index holds the liveness pointer; both are written on every issuance.
type SessionManager struct {
	sessions   repository.SessionRepository
	index      repository.ActiveSessionIndex
	tokens     *auth.TokenManager
	claims     *ClaimsResolver
	dispatcher events.Dispatcher
	logger     *zap.Logger
	refreshTTL time.Duration
	now        func() time.Time
}

// SessionDependencies bundles collaborators of the session manager.
type SessionDependencies struct {
	Sessions   repository.SessionRepository
	Index      repository.ActiveSessionIndex
	Tokens     *auth.TokenManager
	Claims     *ClaimsResolver
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	RefreshTTL time.Duration
}

// NewSessionManager builds the manager.
func NewSessionManager(deps SessionDependencies) *SessionManager {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := deps.RefreshTTL
	if ttl <= 0 {
		ttl = 720 * time.Hour
	}
	return &SessionManager{
		sessions:   deps.Sessions,
		index:      deps.Index,
		tokens:     deps.Tokens,
		claims:     deps.Claims,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		refreshTTL: ttl,
		now:        time.Now,
	}
}

// IssueOptions carries the optional device binding of a new session.
type IssueOptions struct {
	DeviceID  string
	UserAgent string
}

// Issue replaces whatever session the subject holds with a new one and mints its token pair.
func (m *SessionManager) Issue(ctx context.Context, payload domain.AccessPayload, opts IssueOptions) (*domain.TokenPair, error) {
	return m.issue(ctx, payload, opts, events.EventSessionIssued)
}

func (m *SessionManager) issue(ctx context.Context, payload domain.AccessPayload, opts IssueOptions, eventType events.EventType) (*domain.TokenPair, error) {
	refreshToken, digest, err := auth.NewRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	now := m.now()
	session := &domain.Session{
		ID:                 ulid.Make().String(),
		SubjectID:          payload.SubjectID,
		RefreshTokenDigest: digest,
		DeviceID:           optional(opts.DeviceID),
		UserAgent:          optional(opts.UserAgent),
		ExpiresAt:          now.Add(m.refreshTTL),
		CreatedAt:          now,
	}

	payload.SessionID = session.ID
	accessToken, accessExpiresAt, err := m.tokens.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	// The pointer is written while the subject's row is locked so it always names the last
	// committed session.
	err = m.sessions.ReplaceForSubject(ctx, session, func(ctx context.Context) error {
		return m.index.Set(ctx, session.SubjectID, session.ID, m.refreshTTL)
	})
	if err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	m.publish(ctx, events.Event{
		Type:        eventType,
		SubjectID:   session.SubjectID,
		SubjectType: payload.UserType,
		SessionID:   session.ID,
	})

	return &domain.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		ExpiresIn:        int64(m.tokens.AccessTTL().Seconds()),
		RefreshExpiresIn: int64(m.refreshTTL.Seconds()),
		TokenType:        domain.TokenTypeBearer,
		SessionID:        session.ID,
		AccessExpiresAt:  accessExpiresAt,
	}, nil
}

// Rotate exchanges a refresh token for a new pair. The presented token is consumed first, so
// it is single-use even when the rest of the rotation fails.
func (m *SessionManager) Rotate(ctx context.Context, refreshToken, deviceID, userAgent string) (*domain.TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, domain.ErrInvalidRefreshToken
	}

	session, err := m.sessions.ConsumeByDigest(ctx, auth.DigestRefreshToken(refreshToken))
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, domain.ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, fmt.Errorf("consume session: %w", err)
	}
	if session.Expired(m.now()) {
		return nil, domain.ErrExpiredRefreshToken
	}

	storedDevice := deref(session.DeviceID)
	if deviceID == "" {
		deviceID = storedDevice
	}

	payload, err := m.claims.BuildAccessPayload(ctx, session.SubjectID, deviceID)
	if err != nil {
		return nil, err
	}
	if payload.UserType != domain.SubjectTypeAdmin && (storedDevice == "" || storedDevice != deviceID) {
		return nil, domain.ErrDeviceMismatch
	}

	if userAgent == "" {
		userAgent = deref(session.UserAgent)
	}
	return m.issue(ctx, payload, IssueOptions{DeviceID: deviceID, UserAgent: userAgent}, events.EventSessionRotated)
}

// Revoke deletes the subject's sessions selected by filter. The liveness pointer is left to
// expire or be overwritten.
func (m *SessionManager) Revoke(ctx context.Context, subjectID string, filter domain.RevokeFilter) (int64, error) {
	if filter.Empty() {
		return 0, fmt.Errorf("%w: refreshToken, deviceId or allDevices required", domain.ErrInvalidInput)
	}

	var (
		removed int64
		err     error
	)
	if filter.AllDevices {
		removed, err = m.sessions.DeleteBySubject(ctx, subjectID)
	} else {
		digest := ""
		if filter.RefreshToken != "" {
			digest = auth.DigestRefreshToken(filter.RefreshToken)
		}
		removed, err = m.sessions.DeleteMatching(ctx, subjectID, digest, filter.DeviceID)
	}
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}

	m.publish(ctx, events.Event{
		Type:      events.EventSessionRevoked,
		SubjectID: subjectID,
		Payload:   events.SessionRevokedPayload{Removed: removed, AllDevices: filter.AllDevices},
	})
	return removed, nil
}

// Evict removes every session of a subject and clears its liveness pointer.
func (m *SessionManager) Evict(ctx context.Context, subjectID string) (int64, error) {
	removed, err := m.sessions.DeleteBySubject(ctx, subjectID)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	if err := m.index.Clear(ctx, subjectID); err != nil {
		return removed, fmt.Errorf("clear active session: %w", err)
	}
	return removed, nil
}

// VerifyActiveSession reports whether sessionID is the subject's current session.
func (m *SessionManager) VerifyActiveSession(ctx context.Context, subjectID, sessionID string) (bool, error) {
	if subjectID == "" || sessionID == "" {
		return false, nil
	}
	current, found, err := m.index.Get(ctx, subjectID)
	if err != nil {
		return false, fmt.Errorf("read active session: %w", err)
	}
	return found && current == sessionID, nil
}

// ValidateAccessToken checks signature and liveness of an access token.
func (m *SessionManager) ValidateAccessToken(ctx context.Context, token string) (*auth.Claims, error) {
	claims, err := m.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	live, err := m.VerifyActiveSession(ctx, claims.Subject, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if !live {
		return nil, domain.ErrSessionInactive
	}
	return claims, nil
}

// PurgeExpired deletes rows whose refresh token expired before now.
func (m *SessionManager) PurgeExpired(ctx context.Context) (int64, error) {
	return m.sessions.DeleteExpired(ctx, m.now())
}

func (m *SessionManager) publish(ctx context.Context, event events.Event) {
	if m.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = m.now()
	if err := m.dispatcher.Publish(ctx, event); err != nil {
		m.logger.Warn("session event handler failed",
			zap.String("event", string(event.Type)),
			zap.String("subject_id", event.SubjectID),
			zap.Error(err))
	}
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
