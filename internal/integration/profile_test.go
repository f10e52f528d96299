package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/auth-core/internal/domain"
	"github.com/spec-kit/auth-core/internal/repository/mocks"
)

func TestStandaloneProfiles(t *testing.T) {
	subjects := mocks.NewMockSubjectRepository()
	profiles := NewStandaloneProfiles(subjects)
	ctx := context.Background()

	guest, err := profiles.RegisterGuest(ctx, "guest-1", "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.GuestStatusActive, guest.Status)
	require.NotEmpty(t, guest.ExternalProfileID)

	guestSubject, err := subjects.UpsertGuest(ctx, "guest-1", "d1", guest.ExternalProfileID)
	require.NoError(t, err)

	again, err := profiles.RegisterGuest(ctx, "guest-1", "d1")
	require.NoError(t, err)
	assert.Equal(t, guest.ExternalProfileID, again.ExternalProfileID)

	elsewhere, err := profiles.EnsureCustomerProfile(ctx, EnsureCustomerRequest{ExternalUID: "uid-9", GuestID: "guest-1", DeviceID: "d9"})
	require.NoError(t, err)
	assert.Empty(t, elsewhere.MergeGuestProfileID)

	customer, err := profiles.EnsureCustomerProfile(ctx, EnsureCustomerRequest{ExternalUID: "uid-1", GuestID: "guest-1", DeviceID: "d1"})
	require.NoError(t, err)
	assert.NotEmpty(t, customer.ExternalCustomerID)
	assert.Equal(t, guest.ExternalProfileID, customer.MergeGuestProfileID)

	customerSubject, err := subjects.UpsertCustomer(ctx, "uid-1", customer.ExternalCustomerID, time.Now())
	require.NoError(t, err)
	require.NoError(t, subjects.MarkGuestMigrated(ctx, guestSubject.ID, customerSubject.ID, time.Now()))

	repeat, err := profiles.EnsureCustomerProfile(ctx, EnsureCustomerRequest{ExternalUID: "uid-1", GuestID: "guest-1", DeviceID: "d1"})
	require.NoError(t, err)
	assert.Equal(t, customer.ExternalCustomerID, repeat.ExternalCustomerID)
	assert.Empty(t, repeat.MergeGuestProfileID)

	migrated, err := profiles.RegisterGuest(ctx, "guest-1", "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.GuestStatusMigrated, migrated.Status)

	unknown, err := profiles.EnsureCustomerProfile(ctx, EnsureCustomerRequest{ExternalUID: "uid-2", GuestID: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, unknown.MergeGuestProfileID)
}
