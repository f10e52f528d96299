package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/auth-core/internal/domain"
)

// SubjectRepository defines persistence access for subjects and their identity records.
type SubjectRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Subject, error)
	GetAdminByEmail(ctx context.Context, email string) (*domain.Subject, error)
	CreateAdmin(ctx context.Context, email, passwordDigest string) (*domain.Subject, error)
	GetCustomerByExternalUID(ctx context.Context, externalUID string) (*domain.Subject, error)
	// UpsertCustomer refreshes last_login_at for a known externalUID or creates the subject.
	UpsertCustomer(ctx context.Context, externalUID, externalCustomerID string, loginAt time.Time) (*domain.Subject, error)
	GetGuestByGuestID(ctx context.Context, guestID string) (*domain.Subject, error)
	GetGuestByProfileID(ctx context.Context, externalProfileID string) (*domain.Subject, error)
	// UpsertGuest reactivates an ACTIVE guest on the device it is bound to, or creates it.
	// Another device yields ErrDeviceMismatch; migrated guests yield ErrGuestMigrated.
	UpsertGuest(ctx context.Context, guestID, deviceID, externalProfileID string) (*domain.Subject, error)
	// MarkGuestMigrated moves an ACTIVE guest to MIGRATED. Already migrated guests yield ErrGuestMigrated.
	MarkGuestMigrated(ctx context.Context, guestSubjectID, customerSubjectID string, at time.Time) error
}

type subjectRepository struct {
	pool *pgxpool.Pool
}

// ErrPoolRequired is returned by the Postgres repositories when built without a pool.
var ErrPoolRequired = errors.New("postgres pool required")

// NewSubjectRepository returns a Postgres-backed implementation.
func NewSubjectRepository(pool *pgxpool.Pool) (SubjectRepository, error) {
	if pool == nil {
		return nil, ErrPoolRequired
	}
	return &subjectRepository{pool: pool}, nil
}

const selectSubject = `
        SELECT s.id, s.subject_type, s.created_at, s.updated_at,
               a.email, a.password_digest, a.is_active,
               c.external_uid, c.external_customer_id, c.last_login_at,
               g.guest_id, g.device_id, g.external_profile_id, g.status, g.migrated_to_subject_id, g.migrated_at
        FROM subjects s
        LEFT JOIN admin_credentials a ON a.subject_id = s.id
        LEFT JOIN customer_identities c ON c.subject_id = s.id
        LEFT JOIN guest_identities g ON g.subject_id = s.id`

// maxUpsertAttempts bounds retries after losing a first-insert race on a unique key.
const maxUpsertAttempts = 2

func (r *subjectRepository) GetByID(ctx context.Context, id string) (*domain.Subject, error) {
	return r.getOne(ctx, selectSubject+` WHERE s.id=$1`, id)
}

func (r *subjectRepository) GetAdminByEmail(ctx context.Context, email string) (*domain.Subject, error) {
	return r.getOne(ctx, selectSubject+` WHERE a.email=$1`, email)
}

func (r *subjectRepository) GetCustomerByExternalUID(ctx context.Context, externalUID string) (*domain.Subject, error) {
	return r.getOne(ctx, selectSubject+` WHERE c.external_uid=$1`, externalUID)
}

func (r *subjectRepository) GetGuestByGuestID(ctx context.Context, guestID string) (*domain.Subject, error) {
	return r.getOne(ctx, selectSubject+` WHERE g.guest_id=$1`, guestID)
}

func (r *subjectRepository) GetGuestByProfileID(ctx context.Context, externalProfileID string) (*domain.Subject, error) {
	return r.getOne(ctx, selectSubject+` WHERE g.external_profile_id=$1`, externalProfileID)
}

func (r *subjectRepository) CreateAdmin(ctx context.Context, email, passwordDigest string) (*domain.Subject, error) {
	var subjectID string
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		id, err := insertSubject(ctx, tx, domain.SubjectTypeAdmin)
		if err != nil {
			return err
		}
		subjectID = id
		_, err = tx.Exec(ctx, `
            INSERT INTO admin_credentials (subject_id, email, password_digest, is_active)
            VALUES ($1, $2, $3, TRUE)`, id, email, passwordDigest)
		return err
	})
	if isUniqueViolation(err) {
		return nil, domain.ErrAdminEmailExists
	}
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, subjectID)
}

func (r *subjectRepository) UpsertCustomer(ctx context.Context, externalUID, externalCustomerID string, loginAt time.Time) (*domain.Subject, error) {
	var subjectID string
	var err error
	for attempt := 0; attempt < maxUpsertAttempts; attempt++ {
		err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
			updateErr := tx.QueryRow(ctx, `
                UPDATE customer_identities SET last_login_at=$2, external_customer_id=$3
                WHERE external_uid=$1
                RETURNING subject_id`, externalUID, loginAt, externalCustomerID).Scan(&subjectID)
			if updateErr == nil {
				return touchSubject(ctx, tx, subjectID)
			}
			if !errors.Is(updateErr, pgx.ErrNoRows) {
				return updateErr
			}

			id, insertErr := insertSubject(ctx, tx, domain.SubjectTypeCustomer)
			if insertErr != nil {
				return insertErr
			}
			subjectID = id
			_, insertErr = tx.Exec(ctx, `
                INSERT INTO customer_identities (subject_id, external_uid, external_customer_id, last_login_at)
                VALUES ($1, $2, $3, $4)`, id, externalUID, externalCustomerID, loginAt)
			return insertErr
		})
		if !isUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, subjectID)
}

func (r *subjectRepository) UpsertGuest(ctx context.Context, guestID, deviceID, externalProfileID string) (*domain.Subject, error) {
	var subjectID string
	var err error
	for attempt := 0; attempt < maxUpsertAttempts; attempt++ {
		err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
			var (
				status        domain.GuestStatus
				boundDeviceID string
			)
			lookupErr := tx.QueryRow(ctx, `
                SELECT subject_id, status, device_id FROM guest_identities
                WHERE guest_id=$1 FOR UPDATE`, guestID).Scan(&subjectID, &status, &boundDeviceID)
			switch {
			case lookupErr == nil:
				if status == domain.GuestStatusMigrated {
					return domain.ErrGuestMigrated
				}
				if boundDeviceID != deviceID {
					return domain.ErrDeviceMismatch
				}
				return touchSubject(ctx, tx, subjectID)
			case !errors.Is(lookupErr, pgx.ErrNoRows):
				return lookupErr
			}

			id, insertErr := insertSubject(ctx, tx, domain.SubjectTypeGuest)
			if insertErr != nil {
				return insertErr
			}
			subjectID = id
			_, insertErr = tx.Exec(ctx, `
                INSERT INTO guest_identities (subject_id, guest_id, device_id, external_profile_id, status)
                VALUES ($1, $2, $3, $4, $5)`, id, guestID, deviceID, externalProfileID, domain.GuestStatusActive)
			return insertErr
		})
		if !isUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, subjectID)
}

func (r *subjectRepository) MarkGuestMigrated(ctx context.Context, guestSubjectID, customerSubjectID string, at time.Time) error {
	const query = `
        UPDATE guest_identities
        SET status=$2, migrated_to_subject_id=$3, migrated_at=$4
        WHERE subject_id=$1 AND status=$5`

	cmd, err := r.pool.Exec(ctx, query,
		guestSubjectID,
		domain.GuestStatusMigrated,
		customerSubjectID,
		at,
		domain.GuestStatusActive,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, guestSubjectID); err != nil {
			return err
		}
		return domain.ErrGuestMigrated
	}
	return nil
}

func (r *subjectRepository) getOne(ctx context.Context, query string, arg any) (*domain.Subject, error) {
	var (
		id, subjectType                      string
		createdAt, updatedAt                 time.Time
		email, passwordDigest                *string
		isActive                             *bool
		externalUID, externalCustomerID      *string
		lastLoginAt                          *time.Time
		guestID, deviceID, externalProfileID *string
		guestStatus, migratedTo              *string
		migratedAt                           *time.Time
	)
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&id, &subjectType, &createdAt, &updatedAt,
		&email, &passwordDigest, &isActive,
		&externalUID, &externalCustomerID, &lastLoginAt,
		&guestID, &deviceID, &externalProfileID, &guestStatus, &migratedTo, &migratedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSubjectNotFound
	}
	if err != nil {
		return nil, err
	}

	var identity domain.Identity
	switch domain.SubjectType(subjectType) {
	case domain.SubjectTypeAdmin:
		if email == nil {
			return nil, errors.New("admin subject without credential: " + id)
		}
		identity = &domain.AdminCredential{
			SubjectID:      id,
			Email:          *email,
			PasswordDigest: deref(passwordDigest),
			IsActive:       isActive != nil && *isActive,
		}
	case domain.SubjectTypeCustomer:
		if externalUID == nil {
			return nil, errors.New("customer subject without identity: " + id)
		}
		identity = &domain.CustomerIdentity{
			SubjectID:          id,
			ExternalUID:        *externalUID,
			ExternalCustomerID: deref(externalCustomerID),
			LastLoginAt:        lastLoginAt,
		}
	case domain.SubjectTypeGuest:
		if guestID == nil {
			return nil, errors.New("guest subject without identity: " + id)
		}
		identity = &domain.GuestIdentity{
			SubjectID:           id,
			GuestID:             *guestID,
			DeviceID:            deref(deviceID),
			ExternalProfileID:   deref(externalProfileID),
			Status:              domain.GuestStatus(deref(guestStatus)),
			MigratedToSubjectID: migratedTo,
			MigratedAt:          migratedAt,
		}
	default:
		return nil, errors.New("unknown subject type: " + subjectType)
	}

	return domain.NewSubject(id, identity, createdAt, updatedAt), nil
}

func insertSubject(ctx context.Context, tx pgx.Tx, subjectType domain.SubjectType) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
        INSERT INTO subjects (subject_type) VALUES ($1)
        RETURNING id`, subjectType).Scan(&id)
	return id, err
}

func touchSubject(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `UPDATE subjects SET updated_at=NOW() WHERE id=$1`, id)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
