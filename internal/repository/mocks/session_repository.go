package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spec-kit/auth-core/internal/domain"
	"github.com/spec-kit/auth-core/internal/repository"
)

var _ repository.SessionRepository = (*MockSessionRepository)(nil)

// MockSessionRepository is an in-memory session store with the same one-row-per-subject
// and atomic-consume guarantees as the Postgres implementation.
type MockSessionRepository struct {
	mu        sync.Mutex
	bySubject map[string]*domain.Session
	// FailReplace makes ReplaceForSubject fail before anything is written.
	FailReplace error
}

// NewMockSessionRepository creates an empty store.
func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{bySubject: make(map[string]*domain.Session)}
}

func (m *MockSessionRepository) ReplaceForSubject(ctx context.Context, session *domain.Session, beforeCommit func(context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReplace != nil {
		return m.FailReplace
	}
	if beforeCommit != nil {
		if err := beforeCommit(ctx); err != nil {
			return err
		}
	}
	cp := *session
	m.bySubject[session.SubjectID] = &cp
	return nil
}

func (m *MockSessionRepository) ConsumeByDigest(_ context.Context, digest string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for subjectID, s := range m.bySubject {
		if s.RefreshTokenDigest == digest {
			delete(m.bySubject, subjectID)
			return s, nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

func (m *MockSessionRepository) DeleteBySubject(_ context.Context, subjectID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bySubject[subjectID]; !ok {
		return 0, nil
	}
	delete(m.bySubject, subjectID)
	return 1, nil
}

func (m *MockSessionRepository) DeleteMatching(_ context.Context, subjectID, refreshDigest, deviceID string) (int64, error) {
	if refreshDigest == "" && deviceID == "" {
		return 0, fmt.Errorf("%w: session selector required", domain.ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.bySubject[subjectID]
	if !ok {
		return 0, nil
	}
	if refreshDigest != "" && s.RefreshTokenDigest != refreshDigest {
		return 0, nil
	}
	if deviceID != "" && (s.DeviceID == nil || *s.DeviceID != deviceID) {
		return 0, nil
	}
	delete(m.bySubject, subjectID)
	return 1, nil
}

func (m *MockSessionRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for subjectID, s := range m.bySubject {
		if !s.ExpiresAt.After(before) {
			delete(m.bySubject, subjectID)
			n++
		}
	}
	return n, nil
}

// Get returns a copy of the subject's session, if any.
func (m *MockSessionRepository) Get(subjectID string) (*domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.bySubject[subjectID]
	if !ok {
		return nil, false
	}
	cp := *s
	return &cp, true
}

// Expire moves the subject's session expiry to at.
func (m *MockSessionRepository) Expire(subjectID string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.bySubject[subjectID]; ok {
		s.ExpiresAt = at
	}
}

// Len returns the total number of stored sessions.
func (m *MockSessionRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bySubject)
}
