package domain

import "time"

// Subject is the identity anchor for any authenticated principal.
// Identity holds exactly one of *AdminCredential, *CustomerIdentity or *GuestIdentity,
// matching Type.
type Subject struct {
	ID        string
	Type      SubjectType
	Identity  Identity
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity is the type-specific record owned by a Subject.
type Identity interface {
	subjectType() SubjectType
}

// AdminCredential is the password credential of an administrator.
type AdminCredential struct {
	SubjectID      string
	Email          string
	PasswordDigest string
	IsActive       bool
}

func (*AdminCredential) subjectType() SubjectType { return SubjectTypeAdmin }

// CustomerIdentity links a subject to an identity-assertion provider account.
type CustomerIdentity struct {
	SubjectID          string
	ExternalUID        string
	ExternalCustomerID string
	LastLoginAt        *time.Time
}

func (*CustomerIdentity) subjectType() SubjectType { return SubjectTypeCustomer }

// GuestStatus represents lifecycle states for a guest identity.
type GuestStatus string

const (
	GuestStatusActive   GuestStatus = "ACTIVE"
	GuestStatusMigrated GuestStatus = "MIGRATED"
)

// GuestIdentity is an anonymous, device-bound identity. MIGRATED is terminal.
type GuestIdentity struct {
	SubjectID           string
	GuestID             string
	DeviceID            string
	ExternalProfileID   string
	Status              GuestStatus
	MigratedToSubjectID *string
	MigratedAt          *time.Time
}

func (*GuestIdentity) subjectType() SubjectType { return SubjectTypeGuest }

// Migrated reports whether the guest has been merged into a customer.
func (g *GuestIdentity) Migrated() bool {
	return g.Status == GuestStatusMigrated
}

// NewSubject builds a subject whose Type is derived from its identity record.
func NewSubject(id string, identity Identity, createdAt, updatedAt time.Time) *Subject {
	return &Subject{
		ID:        id,
		Type:      identity.subjectType(),
		Identity:  identity,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

// Admin returns the admin credential when the subject is an administrator.
func (s *Subject) Admin() (*AdminCredential, bool) {
	v, ok := s.Identity.(*AdminCredential)
	return v, ok
}

// Customer returns the customer identity when the subject is a customer.
func (s *Subject) Customer() (*CustomerIdentity, bool) {
	v, ok := s.Identity.(*CustomerIdentity)
	return v, ok
}

// Guest returns the guest identity when the subject is a guest.
func (s *Subject) Guest() (*GuestIdentity, bool) {
	v, ok := s.Identity.(*GuestIdentity)
	return v, ok
}
