package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/auth-core/internal/domain"
	"github.com/spec-kit/auth-core/internal/events"
)

func TestRegisterThenLoginEvictsRegistrationSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	registered, err := h.auth.RegisterAdmin(ctx, "a@x.com", "pw12345678", "")
	require.NoError(t, err)
	loggedIn, err := h.auth.LoginAdmin(ctx, "a@x.com", "pw12345678", "")
	require.NoError(t, err)
	assert.NotEqual(t, registered.SessionID, loggedIn.SessionID)

	_, err = h.sessions.Rotate(ctx, registered.RefreshToken, "", "")
	requireErrorIs(t, err, domain.ErrInvalidRefreshToken)
	assert.Equal(t, 1, h.store.Len())
}

func TestRegisterAdmin_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.auth.RegisterAdmin(ctx, "not-an-email", "pw12345678", "")
	requireErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.auth.RegisterAdmin(ctx, "a@x.com", "short", "")
	requireErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRegisterAdmin_DuplicateEmail(t *testing.T) {
	h := newHarness(t)
	h.registerAdmin(t, "a@x.com")

	_, err := h.auth.RegisterAdmin(context.Background(), " A@X.com ", "pw12345678", "")
	requireErrorIs(t, err, domain.ErrAdminEmailExists)
}

func TestLoginAdmin_Failures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pair := h.registerAdmin(t, "a@x.com")

	_, err := h.auth.LoginAdmin(ctx, "nobody@x.com", "pw12345678", "")
	requireErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = h.auth.LoginAdmin(ctx, "a@x.com", "wrong-password", "")
	requireErrorIs(t, err, domain.ErrInvalidCredentials)

	h.subjects.SetAdminActive(h.claimsOf(t, pair).Subject, false)
	_, err = h.auth.LoginAdmin(ctx, "a@x.com", "wrong-password", "")
	requireErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = h.auth.LoginAdmin(ctx, "a@x.com", "pw12345678", "")
	requireErrorIs(t, err, domain.ErrAccountDisabled)
}

func TestLoginAdmin_RepositoryFailureIsNotTyped(t *testing.T) {
	h := newHarness(t)
	h.subjects.Err = errors.New("connection refused")

	_, err := h.auth.LoginAdmin(context.Background(), "a@x.com", "pw12345678", "")
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrInvalidCredentials))
}

func TestAuthenticateCustomer_UpsertsByExternalUID(t *testing.T) {
	h := newHarness(t)

	first := h.customerLogin(t, "uid-1", "d1", "")
	second := h.customerLogin(t, "uid-1", "d1", "")

	firstClaims := h.claimsOf(t, first)
	secondClaims := h.claimsOf(t, second)
	assert.Equal(t, firstClaims.Subject, secondClaims.Subject)
	assert.Equal(t, domain.SubjectTypeCustomer, secondClaims.UserType)
	assert.Equal(t, "uid-1", secondClaims.ExternalUID)
	assert.Equal(t, "d1", secondClaims.DeviceID)

	subject, err := h.subjects.GetByID(context.Background(), firstClaims.Subject)
	require.NoError(t, err)
	customer, ok := subject.Customer()
	require.True(t, ok)
	assert.NotEmpty(t, customer.ExternalCustomerID)
	assert.NotNil(t, customer.LastLoginAt)
}

func TestAuthenticateCustomer_RejectsBadAssertion(t *testing.T) {
	h := newHarness(t)

	_, err := h.auth.AuthenticateCustomer(context.Background(), CustomerLogin{AssertionToken: "forged", DeviceID: "d1"})
	requireErrorIs(t, err, domain.ErrInvalidToken)

	_, err = h.auth.AuthenticateCustomer(context.Background(), CustomerLogin{AssertionToken: "forged"})
	requireErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGuestMigrationIsTerminal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	guestID, guestPair, err := h.auth.InitializeGuest(ctx, "dG", "", "")
	require.NoError(t, err)
	require.NotEmpty(t, guestID)
	guestClaims := h.claimsOf(t, guestPair)
	assert.Equal(t, domain.SubjectTypeGuest, guestClaims.UserType)
	assert.Equal(t, guestID, guestClaims.GuestID)
	assert.NotEmpty(t, guestClaims.ExternalProfileID)

	customerPair := h.customerLogin(t, "uid-1", "dG", guestID)
	customerID := h.claimsOf(t, customerPair).Subject

	_, _, err = h.auth.InitializeGuest(ctx, "dG", guestID, "")
	requireErrorIs(t, err, domain.ErrGuestMigrated)

	_, err = h.sessions.Rotate(ctx, guestPair.RefreshToken, "dG", "")
	requireErrorIs(t, err, domain.ErrInvalidRefreshToken)

	live, err := h.sessions.VerifyActiveSession(ctx, guestClaims.Subject, guestClaims.SessionID)
	require.NoError(t, err)
	assert.False(t, live)

	subject, err := h.subjects.GetByID(ctx, guestClaims.Subject)
	require.NoError(t, err)
	guest, ok := subject.Guest()
	require.True(t, ok)
	assert.Equal(t, domain.GuestStatusMigrated, guest.Status)
	require.NotNil(t, guest.MigratedToSubjectID)
	assert.Equal(t, customerID, *guest.MigratedToSubjectID)

	assert.Contains(t, h.recorded.types(), events.EventGuestMigrated)
}

func TestGuestMigration_SecondLoginDoesNotRemigrate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	guestID, _, err := h.auth.InitializeGuest(ctx, "dG", "", "")
	require.NoError(t, err)
	h.customerLogin(t, "uid-1", "dG", guestID)
	second := h.customerLogin(t, "uid-1", "dG", guestID)

	_, err = h.sessions.Rotate(ctx, second.RefreshToken, "dG", "")
	require.NoError(t, err)

	migrations := 0
	for _, et := range h.recorded.types() {
		if et == events.EventGuestMigrated {
			migrations++
		}
	}
	assert.Equal(t, 1, migrations)
}

func TestRotate_MigratedGuestRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	guestID, guestPair, err := h.auth.InitializeGuest(ctx, "dG", "", "")
	require.NoError(t, err)
	guestSubjectID := h.claimsOf(t, guestPair).Subject

	require.NoError(t, h.subjects.MarkGuestMigrated(ctx, guestSubjectID, "customer-1", h.auth.now()))

	_, err = h.sessions.Rotate(ctx, guestPair.RefreshToken, "dG", "")
	requireErrorIs(t, err, domain.ErrGuestMigrated)
	assert.NotEmpty(t, guestID)
}

func TestInitializeGuest_ReusesGuestID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	guestID, first, err := h.auth.InitializeGuest(ctx, "d1", "", "")
	require.NoError(t, err)
	sameID, second, err := h.auth.InitializeGuest(ctx, "d1", guestID, "")
	require.NoError(t, err)

	assert.Equal(t, guestID, sameID)
	assert.Equal(t, h.claimsOf(t, first).Subject, h.claimsOf(t, second).Subject)
	assert.Equal(t, h.claimsOf(t, first).ExternalProfileID, h.claimsOf(t, second).ExternalProfileID)
	assert.Equal(t, "d1", h.claimsOf(t, second).DeviceID)

	_, err = h.sessions.Rotate(ctx, first.RefreshToken, "d1", "")
	requireErrorIs(t, err, domain.ErrInvalidRefreshToken)
}

func TestInitializeGuest_OtherDeviceRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	guestID, owner, err := h.auth.InitializeGuest(ctx, "owner-device", "", "")
	require.NoError(t, err)

	_, stolen, err := h.auth.InitializeGuest(ctx, "other-device", guestID, "")
	requireErrorIs(t, err, domain.ErrDeviceMismatch)
	assert.Nil(t, stolen)

	claims := h.claimsOf(t, owner)
	live, err := h.sessions.VerifyActiveSession(ctx, claims.Subject, claims.SessionID)
	require.NoError(t, err)
	assert.True(t, live)

	subject, err := h.subjects.GetGuestByGuestID(ctx, guestID)
	require.NoError(t, err)
	guest, _ := subject.Guest()
	assert.Equal(t, "owner-device", guest.DeviceID)

	_, err = h.sessions.Rotate(ctx, owner.RefreshToken, "owner-device", "")
	require.NoError(t, err)
}

func TestAuthenticateCustomer_GuestFromOtherDeviceNotMerged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	guestID, guestPair, err := h.auth.InitializeGuest(ctx, "owner-device", "", "")
	require.NoError(t, err)

	h.customerLogin(t, "uid-1", "other-device", guestID)

	subject, err := h.subjects.GetGuestByGuestID(ctx, guestID)
	require.NoError(t, err)
	guest, _ := subject.Guest()
	assert.False(t, guest.Migrated())
	assert.NotContains(t, h.recorded.types(), events.EventGuestMigrated)

	sameID, _, err := h.auth.InitializeGuest(ctx, "owner-device", guestID, "")
	require.NoError(t, err)
	assert.Equal(t, guestID, sameID)
	_, err = h.sessions.Rotate(ctx, guestPair.RefreshToken, "owner-device", "")
	requireErrorIs(t, err, domain.ErrInvalidRefreshToken)
}

func TestInitializeGuest_RequiresDevice(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.auth.InitializeGuest(context.Background(), " ", "", "")
	requireErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGetSubject(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pair := h.registerAdmin(t, "a@x.com")
	subjectID := h.claimsOf(t, pair).Subject

	subject, err := h.auth.GetSubject(ctx, subjectID)
	require.NoError(t, err)
	admin, ok := subject.Admin()
	require.True(t, ok)
	assert.Equal(t, "a@x.com", admin.Email)

	_, err = h.auth.GetSubject(ctx, "not-a-uuid")
	requireErrorIs(t, err, domain.ErrSubjectNotFound)
}
