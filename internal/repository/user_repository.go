package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/empowerfin/auth-service/internal/domain"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

const uniqueViolation = "23505"

// UserRepository defines persistence access for credential records.
//
// The Consume methods apply their effect and clear the token in one
// conditional write; a token that no longer matches yields ErrNotFound.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByResetTokenHash(ctx context.Context, hash string, now time.Time) (*domain.User, error)
	GetByVerificationTokenHash(ctx context.Context, hash string, now time.Time) (*domain.User, error)
	SetResetToken(ctx context.Context, userID, hash string, expiresAt time.Time) error
	SetVerificationToken(ctx context.Context, userID, hash string, expiresAt time.Time) error
	ConsumeResetToken(ctx context.Context, hash string, now time.Time, passwordHash string) (*domain.User, error)
	ConsumeVerificationToken(ctx context.Context, hash string, now time.Time) (user *domain.User, alreadyVerified bool, err error)
	UpdateProfile(ctx context.Context, id, name string) (*domain.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*domain.UserStats, error)
}

// DBTX is the subset of pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, name, email, password_hash, role, email_verified,
        email_verification_token_hash, email_verification_expires_at,
        reset_password_token_hash, reset_password_expires_at, created_at, updated_at`

type userRepository struct {
	db DBTX
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (name, email, password_hash, role, email_verified)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.EmailVerified,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return r.getOne(ctx, query, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	return r.getOne(ctx, query, email)
}

func (r *userRepository) GetByResetTokenHash(ctx context.Context, hash string, now time.Time) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
        WHERE reset_password_token_hash=$1 AND reset_password_expires_at > $2`
	return r.getOne(ctx, query, hash, now)
}

func (r *userRepository) GetByVerificationTokenHash(ctx context.Context, hash string, now time.Time) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
        WHERE email_verification_token_hash=$1 AND email_verification_expires_at > $2`
	return r.getOne(ctx, query, hash, now)
}

func (r *userRepository) SetResetToken(ctx context.Context, userID, hash string, expiresAt time.Time) error {
	const query = `
        UPDATE users SET reset_password_token_hash=$2, reset_password_expires_at=$3, updated_at=NOW()
        WHERE id=$1`
	return r.execOne(ctx, query, userID, hash, expiresAt)
}

func (r *userRepository) SetVerificationToken(ctx context.Context, userID, hash string, expiresAt time.Time) error {
	const query = `
        UPDATE users SET email_verification_token_hash=$2, email_verification_expires_at=$3, updated_at=NOW()
        WHERE id=$1`
	return r.execOne(ctx, query, userID, hash, expiresAt)
}

func (r *userRepository) ConsumeResetToken(ctx context.Context, hash string, now time.Time, passwordHash string) (*domain.User, error) {
	query := `
        UPDATE users SET password_hash=$3, reset_password_token_hash=NULL,
            reset_password_expires_at=NULL, updated_at=$2
        WHERE reset_password_token_hash=$1 AND reset_password_expires_at > $2
        RETURNING ` + userColumns
	return r.getOne(ctx, query, hash, now, passwordHash)
}

func (r *userRepository) ConsumeVerificationToken(ctx context.Context, hash string, now time.Time) (*domain.User, bool, error) {
	const query = `
        WITH prev AS (
            SELECT id, email_verified FROM users
            WHERE email_verification_token_hash=$1 AND email_verification_expires_at > $2
            FOR UPDATE
        )
        UPDATE users u SET email_verified=TRUE, email_verification_token_hash=NULL,
            email_verification_expires_at=NULL, updated_at=$2
        FROM prev WHERE u.id = prev.id
        RETURNING u.id, u.name, u.email, u.password_hash, u.role, u.email_verified,
            u.email_verification_token_hash, u.email_verification_expires_at,
            u.reset_password_token_hash, u.reset_password_expires_at, u.created_at, u.updated_at,
            prev.email_verified`

	var (
		user            domain.User
		alreadyVerified bool
	)
	err := r.db.QueryRow(ctx, query, hash, now).Scan(append(userScanDest(&user), &alreadyVerified)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrNotFound
		}
		return nil, false, fmt.Errorf("consume verification token: %w", err)
	}
	return &user, alreadyVerified, nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, id, name string) (*domain.User, error) {
	query := `
        UPDATE users SET name=$2, updated_at=NOW()
        WHERE id=$1
        RETURNING ` + userColumns
	return r.getOne(ctx, query, id, name)
}

// UpdatePassword also drops any outstanding reset token.
func (r *userRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const query = `
        UPDATE users SET password_hash=$2, reset_password_token_hash=NULL,
            reset_password_expires_at=NULL, updated_at=NOW()
        WHERE id=$1`
	return r.execOne(ctx, query, id, passwordHash)
}

func (r *userRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id=$1`
	return r.execOne(ctx, query, id)
}

func (r *userRepository) Stats(ctx context.Context) (*domain.UserStats, error) {
	const query = `
        SELECT role, COUNT(*), COUNT(*) FILTER (WHERE email_verified)
        FROM users GROUP BY role`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}
	defer rows.Close()

	stats := &domain.UserStats{ByRole: map[domain.Role]int64{}}
	for rows.Next() {
		var (
			role            domain.Role
			total, verified int64
		)
		if err := rows.Scan(&role, &total, &verified); err != nil {
			return nil, fmt.Errorf("user stats: %w", err)
		}
		stats.ByRole[role] = total
		stats.TotalUsers += total
		stats.VerifiedUsers += verified
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}
	return stats, nil
}

func (r *userRepository) getOne(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var user domain.User
	if err := r.db.QueryRow(ctx, query, args...).Scan(userScanDest(&user)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

func (r *userRepository) execOne(ctx context.Context, query string, args ...any) error {
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("exec user: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func userScanDest(user *domain.User) []any {
	return []any{
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.EmailVerified,
		&user.EmailVerificationTokenHash,
		&user.EmailVerificationExpiresAt,
		&user.ResetPasswordTokenHash,
		&user.ResetPasswordExpiresAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	}
}
