package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/auth-core/internal/domain"
)

// SessionRepository is the durable session store. It holds at most one row per subject.
type SessionRepository interface {
	// ReplaceForSubject installs session as the subject's only row. beforeCommit runs inside
	// the transaction while the subject's row is locked; if it fails nothing is committed.
	ReplaceForSubject(ctx context.Context, session *domain.Session, beforeCommit func(context.Context) error) error
	// ConsumeByDigest deletes and returns the row holding digest. Concurrent callers
	// presenting the same digest see exactly one success; the rest get ErrSessionNotFound.
	ConsumeByDigest(ctx context.Context, digest string) (*domain.Session, error)
	DeleteBySubject(ctx context.Context, subjectID string) (int64, error)
	// DeleteMatching deletes the subject's rows matching every non-empty selector.
	DeleteMatching(ctx context.Context, subjectID, refreshDigest, deviceID string) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type sessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository returns a Postgres-backed implementation.
func NewSessionRepository(pool *pgxpool.Pool) (SessionRepository, error) {
	if pool == nil {
		return nil, ErrPoolRequired
	}
	return &sessionRepository{pool: pool}, nil
}

func (r *sessionRepository) ReplaceForSubject(ctx context.Context, session *domain.Session, beforeCommit func(context.Context) error) error {
	const query = `
        INSERT INTO sessions (id, subject_id, refresh_token_digest, device_id, user_agent, expires_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (subject_id) DO UPDATE SET
            id = EXCLUDED.id,
            refresh_token_digest = EXCLUDED.refresh_token_digest,
            device_id = EXCLUDED.device_id,
            user_agent = EXCLUDED.user_agent,
            expires_at = EXCLUDED.expires_at,
            created_at = EXCLUDED.created_at`

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query,
			session.ID,
			session.SubjectID,
			session.RefreshTokenDigest,
			session.DeviceID,
			session.UserAgent,
			session.ExpiresAt,
			session.CreatedAt,
		); err != nil {
			return fmt.Errorf("replace session: %w", err)
		}
		if beforeCommit != nil {
			return beforeCommit(ctx)
		}
		return nil
	})
}

func (r *sessionRepository) ConsumeByDigest(ctx context.Context, digest string) (*domain.Session, error) {
	const query = `
        DELETE FROM sessions WHERE refresh_token_digest=$1
        RETURNING id, subject_id, refresh_token_digest, device_id, user_agent, expires_at, created_at`

	var session domain.Session
	err := r.pool.QueryRow(ctx, query, digest).Scan(
		&session.ID,
		&session.SubjectID,
		&session.RefreshTokenDigest,
		&session.DeviceID,
		&session.UserAgent,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) DeleteBySubject(ctx context.Context, subjectID string) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE subject_id=$1`, subjectID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *sessionRepository) DeleteMatching(ctx context.Context, subjectID, refreshDigest, deviceID string) (int64, error) {
	if refreshDigest == "" && deviceID == "" {
		return 0, fmt.Errorf("%w: session selector required", domain.ErrInvalidInput)
	}
	const query = `
        DELETE FROM sessions
        WHERE subject_id=$1
          AND ($2::text = '' OR refresh_token_digest=$2::text)
          AND ($3::text = '' OR device_id=$3::text)`

	cmd, err := r.pool.Exec(ctx, query, subjectID, refreshDigest, deviceID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *sessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
