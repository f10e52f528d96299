package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/auth-core/internal/domain"
	"github.com/spec-kit/auth-core/internal/persistence"
)

// Integration tests run when TEST_POSTGRES_DSN is set.

func mustPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN is not set; skipping Postgres integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, persistence.RunMigrations(ctx, pool, zap.NewNop()))
	return pool
}

func mustSubjects(t *testing.T, pool *pgxpool.Pool) SubjectRepository {
	t.Helper()
	repo, err := NewSubjectRepository(pool)
	require.NoError(t, err)
	return repo
}

func mustSessions(t *testing.T, pool *pgxpool.Pool) SessionRepository {
	t.Helper()
	repo, err := NewSessionRepository(pool)
	require.NoError(t, err)
	return repo
}

func newSession(subjectID, digest, deviceID string, expiresAt time.Time) *domain.Session {
	device := deviceID
	return &domain.Session{
		ID:                 ulid.Make().String(),
		SubjectID:          subjectID,
		RefreshTokenDigest: digest,
		DeviceID:           &device,
		ExpiresAt:          expiresAt,
		CreatedAt:          time.Now(),
	}
}

func TestPostgresSubjects_AdminLifecycle(t *testing.T) {
	pool := mustPool(t)
	ctx := context.Background()
	repo := mustSubjects(t, pool)

	email := uuid.NewString() + "@x.com"
	created, err := repo.CreateAdmin(ctx, email, "digest")
	require.NoError(t, err)
	assert.Equal(t, domain.SubjectTypeAdmin, created.Type)

	_, err = repo.CreateAdmin(ctx, email, "digest")
	assert.ErrorIs(t, err, domain.ErrAdminEmailExists)

	loaded, err := repo.GetAdminByEmail(ctx, email)
	require.NoError(t, err)
	admin, ok := loaded.Admin()
	require.True(t, ok)
	assert.True(t, admin.IsActive)
	assert.Equal(t, created.ID, loaded.ID)

	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrSubjectNotFound)
}

func TestPostgresSubjects_CustomerAndGuest(t *testing.T) {
	pool := mustPool(t)
	ctx := context.Background()
	repo := mustSubjects(t, pool)

	uid := uuid.NewString()
	first, err := repo.UpsertCustomer(ctx, uid, "cust-1", time.Now())
	require.NoError(t, err)
	second, err := repo.UpsertCustomer(ctx, uid, "cust-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	guestID := uuid.NewString()
	profileID := uuid.NewString()
	guest, err := repo.UpsertGuest(ctx, guestID, "d1", profileID)
	require.NoError(t, err)
	again, err := repo.UpsertGuest(ctx, guestID, "d1", profileID)
	require.NoError(t, err)
	assert.Equal(t, guest.ID, again.ID)

	_, err = repo.UpsertGuest(ctx, guestID, "d2", profileID)
	assert.ErrorIs(t, err, domain.ErrDeviceMismatch)
	kept, err := repo.GetGuestByGuestID(ctx, guestID)
	require.NoError(t, err)
	g, _ := kept.Guest()
	assert.Equal(t, "d1", g.DeviceID)

	byProfile, err := repo.GetGuestByProfileID(ctx, profileID)
	require.NoError(t, err)
	assert.Equal(t, guest.ID, byProfile.ID)

	require.NoError(t, repo.MarkGuestMigrated(ctx, guest.ID, first.ID, time.Now()))
	assert.ErrorIs(t, repo.MarkGuestMigrated(ctx, guest.ID, first.ID, time.Now()), domain.ErrGuestMigrated)

	_, err = repo.UpsertGuest(ctx, guestID, "d3", profileID)
	assert.ErrorIs(t, err, domain.ErrGuestMigrated)

	migrated, err := repo.GetGuestByGuestID(ctx, guestID)
	require.NoError(t, err)
	g, _ = migrated.Guest()
	assert.True(t, g.Migrated())
	require.NotNil(t, g.MigratedToSubjectID)
	assert.Equal(t, first.ID, *g.MigratedToSubjectID)
}

func TestPostgresSessions_ReplaceConsumeDelete(t *testing.T) {
	pool := mustPool(t)
	ctx := context.Background()
	subjects := mustSubjects(t, pool)
	sessions := mustSessions(t, pool)

	subject, err := subjects.UpsertCustomer(ctx, uuid.NewString(), "cust", time.Now())
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = sessions.DeleteBySubject(ctx, subject.ID) })

	first := newSession(subject.ID, uuid.NewString(), "d1", time.Now().Add(time.Hour))
	require.NoError(t, sessions.ReplaceForSubject(ctx, first, nil))
	second := newSession(subject.ID, uuid.NewString(), "d2", time.Now().Add(time.Hour))
	require.NoError(t, sessions.ReplaceForSubject(ctx, second, nil))

	var rows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM sessions WHERE subject_id=$1`, subject.ID).Scan(&rows))
	assert.Equal(t, 1, rows)

	_, err = sessions.ConsumeByDigest(ctx, first.RefreshTokenDigest)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	consumed, err := sessions.ConsumeByDigest(ctx, second.RefreshTokenDigest)
	require.NoError(t, err)
	assert.Equal(t, second.ID, consumed.ID)
	require.NotNil(t, consumed.DeviceID)
	assert.Equal(t, "d2", *consumed.DeviceID)

	third := newSession(subject.ID, uuid.NewString(), "d3", time.Now().Add(time.Hour))
	require.NoError(t, sessions.ReplaceForSubject(ctx, third, nil))

	removed, err := sessions.DeleteMatching(ctx, subject.ID, "", "other-device")
	require.NoError(t, err)
	assert.Zero(t, removed)
	removed, err = sessions.DeleteMatching(ctx, subject.ID, third.RefreshTokenDigest, "d3")
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	_, err = sessions.DeleteMatching(ctx, subject.ID, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPostgresSessions_BeforeCommitFailureRollsBack(t *testing.T) {
	pool := mustPool(t)
	ctx := context.Background()
	subjects := mustSubjects(t, pool)
	sessions := mustSessions(t, pool)

	subject, err := subjects.UpsertCustomer(ctx, uuid.NewString(), "cust", time.Now())
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = sessions.DeleteBySubject(ctx, subject.ID) })

	kept := newSession(subject.ID, uuid.NewString(), "d1", time.Now().Add(time.Hour))
	require.NoError(t, sessions.ReplaceForSubject(ctx, kept, nil))

	failing := newSession(subject.ID, uuid.NewString(), "d2", time.Now().Add(time.Hour))
	err = sessions.ReplaceForSubject(ctx, failing, func(context.Context) error { return errors.New("redis down") })
	require.Error(t, err)

	consumed, err := sessions.ConsumeByDigest(ctx, kept.RefreshTokenDigest)
	require.NoError(t, err)
	assert.Equal(t, kept.ID, consumed.ID)
}

func TestPostgresSessions_ConcurrentConsumeSingleWinner(t *testing.T) {
	pool := mustPool(t)
	ctx := context.Background()
	subjects := mustSubjects(t, pool)
	sessions := mustSessions(t, pool)

	subject, err := subjects.UpsertCustomer(ctx, uuid.NewString(), "cust", time.Now())
	require.NoError(t, err)
	session := newSession(subject.ID, uuid.NewString(), "d1", time.Now().Add(time.Hour))
	require.NoError(t, sessions.ReplaceForSubject(ctx, session, nil))

	const n = 8
	var wg sync.WaitGroup
	results := make(chan error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := sessions.ConsumeByDigest(ctx, session.RefreshTokenDigest)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for err := range results {
		if err == nil {
			winners++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	}
	assert.Equal(t, 1, winners)
}

func TestPostgresSessions_DeleteExpired(t *testing.T) {
	pool := mustPool(t)
	ctx := context.Background()
	subjects := mustSubjects(t, pool)
	sessions := mustSessions(t, pool)

	subject, err := subjects.UpsertCustomer(ctx, uuid.NewString(), "cust", time.Now())
	require.NoError(t, err)
	expired := newSession(subject.ID, uuid.NewString(), "d1", time.Now().Add(-time.Minute))
	require.NoError(t, sessions.ReplaceForSubject(ctx, expired, nil))

	removed, err := sessions.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, removed, int64(1))

	_, err = sessions.ConsumeByDigest(ctx, expired.RefreshTokenDigest)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestPostgresSessions_ConcurrentReplaceLeavesLastCommitted(t *testing.T) {
	pool := mustPool(t)
	ctx := context.Background()
	subjects := mustSubjects(t, pool)
	sessions := mustSessions(t, pool)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	index := NewActiveSessionIndex(client, "itest")

	for _, existing := range []bool{false, true} {
		subject, err := subjects.UpsertCustomer(ctx, uuid.NewString(), "cust", time.Now())
		require.NoError(t, err)
		t.Cleanup(func() { _, _ = sessions.DeleteBySubject(ctx, subject.ID) })
		if existing {
			require.NoError(t, sessions.ReplaceForSubject(ctx, newSession(subject.ID, uuid.NewString(), "d0", time.Now().Add(time.Hour)), nil))
		}

		const n = 8
		var wg sync.WaitGroup
		errs := make(chan error, n)
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				session := newSession(subject.ID, uuid.NewString(), "d1", time.Now().Add(time.Hour))
				errs <- sessions.ReplaceForSubject(ctx, session, func(ctx context.Context) error {
					return index.Set(ctx, subject.ID, session.ID, time.Hour)
				})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		var (
			rows  int
			rowID string
		)
		require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*), MAX(id) FROM sessions WHERE subject_id=$1`, subject.ID).Scan(&rows, &rowID))
		assert.Equal(t, 1, rows)

		pointer, found, err := index.Get(ctx, subject.ID)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, rowID, pointer, "existing row: %v", existing)
	}
}
