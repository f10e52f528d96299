package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/auth-core/internal/domain"
	"github.com/spec-kit/auth-core/internal/repository"
)

var _ repository.SubjectRepository = (*MockSubjectRepository)(nil)

// MockSubjectRepository is an in-memory subject store.
type MockSubjectRepository struct {
	mu       sync.RWMutex
	subjects map[string]*domain.Subject
	// Err, when set, is returned by every call.
	Err error
}

// NewMockSubjectRepository creates an empty store.
func NewMockSubjectRepository() *MockSubjectRepository {
	return &MockSubjectRepository{subjects: make(map[string]*domain.Subject)}
}

func (m *MockSubjectRepository) GetByID(_ context.Context, id string) (*domain.Subject, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subjects[id]
	if !ok {
		return nil, domain.ErrSubjectNotFound
	}
	return clone(s), nil
}

func (m *MockSubjectRepository) GetAdminByEmail(_ context.Context, email string) (*domain.Subject, error) {
	return m.find(func(s *domain.Subject) bool {
		a, ok := s.Admin()
		return ok && a.Email == email
	})
}

func (m *MockSubjectRepository) CreateAdmin(_ context.Context, email, passwordDigest string) (*domain.Subject, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subjects {
		if a, ok := s.Admin(); ok && a.Email == email {
			return nil, domain.ErrAdminEmailExists
		}
	}
	id := uuid.NewString()
	now := time.Now()
	s := domain.NewSubject(id, &domain.AdminCredential{
		SubjectID:      id,
		Email:          email,
		PasswordDigest: passwordDigest,
		IsActive:       true,
	}, now, now)
	m.subjects[id] = s
	return clone(s), nil
}

func (m *MockSubjectRepository) GetCustomerByExternalUID(_ context.Context, externalUID string) (*domain.Subject, error) {
	return m.find(func(s *domain.Subject) bool {
		c, ok := s.Customer()
		return ok && c.ExternalUID == externalUID
	})
}

func (m *MockSubjectRepository) UpsertCustomer(_ context.Context, externalUID, externalCustomerID string, loginAt time.Time) (*domain.Subject, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	at := loginAt
	for _, s := range m.subjects {
		if c, ok := s.Customer(); ok && c.ExternalUID == externalUID {
			c.LastLoginAt = &at
			c.ExternalCustomerID = externalCustomerID
			s.UpdatedAt = loginAt
			return clone(s), nil
		}
	}
	id := uuid.NewString()
	s := domain.NewSubject(id, &domain.CustomerIdentity{
		SubjectID:          id,
		ExternalUID:        externalUID,
		ExternalCustomerID: externalCustomerID,
		LastLoginAt:        &at,
	}, loginAt, loginAt)
	m.subjects[id] = s
	return clone(s), nil
}

func (m *MockSubjectRepository) GetGuestByGuestID(_ context.Context, guestID string) (*domain.Subject, error) {
	return m.find(func(s *domain.Subject) bool {
		g, ok := s.Guest()
		return ok && g.GuestID == guestID
	})
}

func (m *MockSubjectRepository) GetGuestByProfileID(_ context.Context, externalProfileID string) (*domain.Subject, error) {
	return m.find(func(s *domain.Subject) bool {
		g, ok := s.Guest()
		return ok && g.ExternalProfileID == externalProfileID
	})
}

func (m *MockSubjectRepository) UpsertGuest(_ context.Context, guestID, deviceID, externalProfileID string) (*domain.Subject, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subjects {
		if g, ok := s.Guest(); ok && g.GuestID == guestID {
			if g.Migrated() {
				return nil, domain.ErrGuestMigrated
			}
			if g.DeviceID != deviceID {
				return nil, domain.ErrDeviceMismatch
			}
			s.UpdatedAt = time.Now()
			return clone(s), nil
		}
	}
	id := uuid.NewString()
	now := time.Now()
	s := domain.NewSubject(id, &domain.GuestIdentity{
		SubjectID:         id,
		GuestID:           guestID,
		DeviceID:          deviceID,
		ExternalProfileID: externalProfileID,
		Status:            domain.GuestStatusActive,
	}, now, now)
	m.subjects[id] = s
	return clone(s), nil
}

func (m *MockSubjectRepository) MarkGuestMigrated(_ context.Context, guestSubjectID, customerSubjectID string, at time.Time) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subjects[guestSubjectID]
	if !ok {
		return domain.ErrSubjectNotFound
	}
	g, ok := s.Guest()
	if !ok || g.Migrated() {
		return domain.ErrGuestMigrated
	}
	target := customerSubjectID
	migratedAt := at
	g.Status = domain.GuestStatusMigrated
	g.MigratedToSubjectID = &target
	g.MigratedAt = &migratedAt
	return nil
}

// SetAdminActive flips the admin's active flag.
func (m *MockSubjectRepository) SetAdminActive(subjectID string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.subjects[subjectID]; ok {
		if a, ok := s.Admin(); ok {
			a.IsActive = active
		}
	}
}

func (m *MockSubjectRepository) find(match func(*domain.Subject) bool) (*domain.Subject, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.subjects {
		if match(s) {
			return clone(s), nil
		}
	}
	return nil, domain.ErrSubjectNotFound
}

func clone(s *domain.Subject) *domain.Subject {
	var identity domain.Identity
	switch v := s.Identity.(type) {
	case *domain.AdminCredential:
		cp := *v
		identity = &cp
	case *domain.CustomerIdentity:
		cp := *v
		identity = &cp
	case *domain.GuestIdentity:
		cp := *v
		identity = &cp
	}
	return domain.NewSubject(s.ID, identity, s.CreatedAt, s.UpdatedAt)
}
