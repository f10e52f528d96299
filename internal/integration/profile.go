package integration

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/auth-core/internal/domain"
)

// EnsureCustomerRequest asks the profile service for the customer record of a provider uid.
type EnsureCustomerRequest struct {
	ExternalUID string `json:"externalUid"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	GuestID     string `json:"guestId,omitempty"`
	// DeviceID is the login device; a guest merges only from the device it is bound to.
	DeviceID string `json:"deviceId,omitempty"`
}

// CustomerProfile is the profile service answer. MergeGuestProfileID is set when a guest
// profile must be merged into this customer.
type CustomerProfile struct {
	ExternalCustomerID  string `json:"externalCustomerId"`
	MergeGuestProfileID string `json:"mergeGuestProfileId,omitempty"`
}

// GuestProfile is the profile service view of a guest.
type GuestProfile struct {
	ExternalProfileID string             `json:"externalProfileId"`
	Status            domain.GuestStatus `json:"status"`
}

// ProfileService is the external customer/guest profile collaborator.
type ProfileService interface {
	EnsureCustomerProfile(ctx context.Context, req EnsureCustomerRequest) (*CustomerProfile, error)
	RegisterGuest(ctx context.Context, guestID, deviceID string) (*GuestProfile, error)
}

// ProfileClient calls a remote profile service.
type ProfileClient struct {
	client serviceClient
}

// NewProfileClient builds a client against baseURL.
func NewProfileClient(baseURL, serviceToken string, timeout time.Duration) *ProfileClient {
	return &ProfileClient{client: newServiceClient(baseURL, serviceToken, timeout)}
}

// EnsureCustomerProfile handles POST /v1/customers/ensure.
func (c *ProfileClient) EnsureCustomerProfile(ctx context.Context, req EnsureCustomerRequest) (*CustomerProfile, error) {
	var resp CustomerProfile
	if err := c.client.call(ctx, fiber.MethodPost, "/v1/customers/ensure", req, &resp); err != nil {
		return nil, err
	}
	if resp.ExternalCustomerID == "" {
		return nil, errors.New("profile service returned empty customer id")
	}
	return &resp, nil
}

type registerGuestRequest struct {
	GuestID  string `json:"guestId"`
	DeviceID string `json:"deviceId"`
}

// RegisterGuest handles POST /v1/guests/register.
func (c *ProfileClient) RegisterGuest(ctx context.Context, guestID, deviceID string) (*GuestProfile, error) {
	var resp GuestProfile
	if err := c.client.call(ctx, fiber.MethodPost, "/v1/guests/register", registerGuestRequest{GuestID: guestID, DeviceID: deviceID}, &resp); err != nil {
		return nil, err
	}
	if resp.ExternalProfileID == "" {
		return nil, errors.New("profile service returned empty profile id")
	}
	if resp.Status == "" {
		resp.Status = domain.GuestStatusActive
	}
	return &resp, nil
}

// SubjectLookup is the read access StandaloneProfiles needs.
type SubjectLookup interface {
	GetCustomerByExternalUID(ctx context.Context, externalUID string) (*domain.Subject, error)
	GetGuestByGuestID(ctx context.Context, guestID string) (*domain.Subject, error)
}

// StandaloneProfiles answers profile requests from local records when no profile service
// is deployed. Profile ids are minted locally and a known ACTIVE guest is merge-eligible
// when the customer logs in from the guest's device.
type StandaloneProfiles struct {
	subjects SubjectLookup
}

// NewStandaloneProfiles builds the local profile service.
func NewStandaloneProfiles(subjects SubjectLookup) *StandaloneProfiles {
	return &StandaloneProfiles{subjects: subjects}
}

func (s *StandaloneProfiles) EnsureCustomerProfile(ctx context.Context, req EnsureCustomerRequest) (*CustomerProfile, error) {
	profile := &CustomerProfile{}

	subject, err := s.subjects.GetCustomerByExternalUID(ctx, req.ExternalUID)
	switch {
	case err == nil:
		customer, _ := subject.Customer()
		profile.ExternalCustomerID = customer.ExternalCustomerID
	case errors.Is(err, domain.ErrSubjectNotFound):
		profile.ExternalCustomerID = uuid.NewString()
	default:
		return nil, err
	}

	if req.GuestID == "" {
		return profile, nil
	}
	guestSubject, err := s.subjects.GetGuestByGuestID(ctx, req.GuestID)
	switch {
	case err == nil:
		if guest, _ := guestSubject.Guest(); !guest.Migrated() && guest.DeviceID == req.DeviceID {
			profile.MergeGuestProfileID = guest.ExternalProfileID
		}
	case !errors.Is(err, domain.ErrSubjectNotFound):
		return nil, err
	}
	return profile, nil
}

func (s *StandaloneProfiles) RegisterGuest(ctx context.Context, guestID, _ string) (*GuestProfile, error) {
	subject, err := s.subjects.GetGuestByGuestID(ctx, guestID)
	if errors.Is(err, domain.ErrSubjectNotFound) {
		return &GuestProfile{ExternalProfileID: uuid.NewString(), Status: domain.GuestStatusActive}, nil
	}
	if err != nil {
		return nil, err
	}
	guest, _ := subject.Guest()
	return &GuestProfile{ExternalProfileID: guest.ExternalProfileID, Status: guest.Status}, nil
}
