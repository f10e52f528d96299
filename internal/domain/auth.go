package domain

import "time"

// SubjectType differentiates administrator, customer and guest tokens.
type SubjectType string

const (
	SubjectTypeAdmin    SubjectType = "ADMIN"
	SubjectTypeCustomer SubjectType = "CUSTOMER"
	SubjectTypeGuest    SubjectType = "GUEST"
)

// Valid reports whether t is a known subject type.
func (t SubjectType) Valid() bool {
	switch t {
	case SubjectTypeAdmin, SubjectTypeCustomer, SubjectTypeGuest:
		return true
	}
	return false
}

// AccessPayload is the claim set carried by an access token. It is never persisted.
type AccessPayload struct {
	SubjectID         string
	UserType          SubjectType
	Roles             []string
	ExternalUID       string
	DeviceID          string
	GuestID           string
	ExternalProfileID string
	SessionID         string
}

// TokenPair is returned by every issuance and rotation.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        int64
	RefreshExpiresIn int64
	TokenType        string
	SessionID        string
	AccessExpiresAt  time.Time
}

// TokenTypeBearer is the only token type handed out.
const TokenTypeBearer = "Bearer"
