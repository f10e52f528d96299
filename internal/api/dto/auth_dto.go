package dto

import "github.com/spec-kit/auth-core/internal/domain"

// AdminCredentialsRequest payload for admin register and login.
type AdminCredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CustomerLoginRequest payload for customer login.
type CustomerLoginRequest struct {
	AssertionToken string `json:"assertionToken"`
	DeviceID       string `json:"deviceId"`
	GuestID        string `json:"guestId,omitempty"`
}

// GuestInitRequest payload for guest initialization.
type GuestInitRequest struct {
	DeviceID string `json:"deviceId"`
	GuestID  string `json:"guestId,omitempty"`
}

// RefreshRequest payload for token rotation.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	DeviceID     string `json:"deviceId,omitempty"`
}

// LogoutRequest payload; at least one field must be set.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
	DeviceID     string `json:"deviceId,omitempty"`
	AllDevices   bool   `json:"allDevices,omitempty"`
}

// ValidateTokenRequest payload for the service-to-service validator.
type ValidateTokenRequest struct {
	AccessToken string `json:"accessToken"`
}

// TokenPairResponse standard response for every issuance.
type TokenPairResponse struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	ExpiresIn        int64  `json:"expiresIn"`
	RefreshExpiresIn int64  `json:"refreshExpiresIn"`
	TokenType        string `json:"tokenType"`
}

// NewTokenPairResponse converts a token pair.
func NewTokenPairResponse(pair *domain.TokenPair) TokenPairResponse {
	return TokenPairResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		ExpiresIn:        pair.ExpiresIn,
		RefreshExpiresIn: pair.RefreshExpiresIn,
		TokenType:        pair.TokenType,
	}
}

// GuestInitResponse is returned by guest initialization.
type GuestInitResponse struct {
	GuestID string            `json:"guestId"`
	Tokens  TokenPairResponse `json:"tokens"`
}

// ValidateTokenResponse answers peer services.
type ValidateTokenResponse struct {
	Valid     bool     `json:"valid"`
	SubjectID string   `json:"subjectId,omitempty"`
	UserType  string   `json:"userType,omitempty"`
	Role      string   `json:"role,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

// SubjectResponse answers GetUserById lookups.
type SubjectResponse struct {
	SubjectID string `json:"subjectId"`
	UserType  string `json:"userType"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role"`
	Active    bool   `json:"active"`
}

// NewSubjectResponse flattens a subject for peer services. Admins report their activation
// flag, guests report whether they are still ACTIVE.
func NewSubjectResponse(subject *domain.Subject) SubjectResponse {
	resp := SubjectResponse{
		SubjectID: subject.ID,
		UserType:  string(subject.Type),
		Role:      string(subject.Type),
		Active:    true,
	}
	switch identity := subject.Identity.(type) {
	case *domain.AdminCredential:
		resp.Email = identity.Email
		resp.Active = identity.IsActive
	case *domain.GuestIdentity:
		resp.Active = !identity.Migrated()
	}
	return resp
}
