package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/auth-core/internal/auth"
	"github.com/spec-kit/auth-core/internal/config"
	"github.com/spec-kit/auth-core/internal/domain"
	"github.com/spec-kit/auth-core/internal/events"
	"github.com/spec-kit/auth-core/internal/integration"
	"github.com/spec-kit/auth-core/internal/repository"
	"github.com/spec-kit/auth-core/internal/repository/mocks"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = key
	})
	return testKey
}

type stubAssertions struct {
	byToken map[string]*integration.Assertion
}

func (s *stubAssertions) VerifyIdentityAssertion(_ context.Context, token string) (*integration.Assertion, error) {
	if a, ok := s.byToken[token]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: unknown assertion", domain.ErrInvalidToken)
}

type stubRoles struct {
	mu    sync.Mutex
	roles map[string][]string
	err   error
}

func (s *stubRoles) GetRoles(_ context.Context, subjectID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.roles[subjectID], nil
}

type recordedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordedEvents) handle(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordedEvents) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	auth       *AuthService
	sessions   *SessionManager
	tokens     *auth.TokenManager
	subjects   *mocks.MockSubjectRepository
	store      *mocks.MockSessionRepository
	index      repository.ActiveSessionIndex
	redis      *miniredis.Miniredis
	assertions *stubAssertions
	roles      *stubRoles
	recorded   *recordedEvents
}

type harnessOption func(*harnessOptions)

type harnessOptions struct {
	rolesDisabled bool
	failOpen      bool
}

func withRolesDisabled() harnessOption {
	return func(o *harnessOptions) { o.rolesDisabled = true }
}

func withFailClosedRoles() harnessOption {
	return func(o *harnessOptions) { o.failOpen = false }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	o := harnessOptions{failOpen: true}
	for _, opt := range opts {
		opt(&o)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		PrivateKey: signingKey(t),
		KeyID:      "test-key",
		Issuer:     "auth-core",
		Audience:   "platform",
		AccessTTL:  15 * time.Minute,
	})
	require.NoError(t, err)

	h := &harness{
		tokens:     tokens,
		subjects:   mocks.NewMockSubjectRepository(),
		store:      mocks.NewMockSessionRepository(),
		index:      repository.NewActiveSessionIndex(client, "test"),
		redis:      mr,
		assertions: &stubAssertions{byToken: map[string]*integration.Assertion{}},
		roles:      &stubRoles{roles: map[string][]string{}},
		recorded:   &recordedEvents{},
	}

	dispatcher := events.NewInMemoryDispatcher()
	for _, et := range []events.EventType{
		events.EventSessionIssued, events.EventSessionRotated,
		events.EventSessionRevoked, events.EventGuestMigrated,
	} {
		dispatcher.Subscribe(et, h.recorded.handle)
	}

	var provider integration.RolesProvider = h.roles
	if o.rolesDisabled {
		provider = nil
	}
	claims := NewClaimsResolver(h.subjects, NewRoleResolver(provider, o.failOpen, nil))
	h.sessions = NewSessionManager(SessionDependencies{
		Sessions:   h.store,
		Index:      h.index,
		Tokens:     tokens,
		Claims:     claims,
		Dispatcher: dispatcher,
		RefreshTTL: 24 * time.Hour,
	})
	h.auth = NewAuthService(config.AuthConfig{BcryptCost: bcrypt.MinCost, MinPasswordLength: 8}, AuthDependencies{
		Subjects:   h.subjects,
		Sessions:   h.sessions,
		Claims:     claims,
		Assertions: h.assertions,
		Profiles:   integration.NewStandaloneProfiles(h.subjects),
		Dispatcher: dispatcher,
	})
	return h
}

func (h *harness) registerAdmin(t *testing.T, email string) *domain.TokenPair {
	t.Helper()
	pair, err := h.auth.RegisterAdmin(context.Background(), email, "pw12345678", "test-agent")
	require.NoError(t, err)
	return pair
}

func (h *harness) customerLogin(t *testing.T, uid, deviceID, guestID string) *domain.TokenPair {
	t.Helper()
	token := "assertion-" + uid
	h.assertions.byToken[token] = &integration.Assertion{ExternalUID: uid, PhoneNumber: "+15550100"}
	pair, err := h.auth.AuthenticateCustomer(context.Background(), CustomerLogin{
		AssertionToken: token,
		DeviceID:       deviceID,
		GuestID:        guestID,
	})
	require.NoError(t, err)
	return pair
}

func (h *harness) claimsOf(t *testing.T, pair *domain.TokenPair) *auth.Claims {
	t.Helper()
	claims, err := h.tokens.Verify(pair.AccessToken)
	require.NoError(t, err)
	return claims
}

func requireErrorIs(t *testing.T, err, target error) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, errors.Is(err, target), "expected %v, got %v", target, err)
}
