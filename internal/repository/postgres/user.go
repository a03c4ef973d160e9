package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/srivardhan-kondu/EmpathyAI/internal/domain"
	"github.com/srivardhan-kondu/EmpathyAI/pkg/database"
)

// DB is the subset of pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, username, email, password_hash, recovery_token, recovery_token_expires_at, created_at, updated_at`

const (
	insertUserSQL = `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	selectUserByIDSQL = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	selectUserByEmailSQL = `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	setRecoveryTokenSQL = `
		UPDATE users
		SET recovery_token = $1, recovery_token_expires_at = $2, updated_at = $3
		WHERE id = $4`

	resetPasswordSQL = `
		UPDATE users
		SET password_hash = $1, recovery_token = NULL, recovery_token_expires_at = NULL, updated_at = $2
		WHERE id = $3 AND recovery_token = $4 AND recovery_token_expires_at >= $5`

	updatePasswordSQL = `
		UPDATE users
		SET password_hash = $1, updated_at = $2
		WHERE id = $3`
)

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user into the database.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (err error) {
	ctx, end := database.TraceQuery(ctx, "users.create", insertUserSQL)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, insertUserSQL,
		u.ID,
		u.Username,
		u.Email,
		u.PasswordHash,
		u.RecoveryToken,
		u.RecoveryTokenExpiresAt,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (u *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, "users.get_by_id", selectUserByIDSQL)
	defer func() { end(err) }()

	return r.scanUser(ctx, selectUserByIDSQL, id)
}

// GetByEmail retrieves a user by their email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (u *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, "users.get_by_email", selectUserByEmailSQL)
	defer func() { end(err) }()

	return r.scanUser(ctx, selectUserByEmailSQL, email)
}

// SetRecoveryToken stores the outstanding recovery token and its expiry.
func (r *UserRepository) SetRecoveryToken(ctx context.Context, userID, token string, expiresAt time.Time) (err error) {
	ctx, end := database.TraceQuery(ctx, "users.set_recovery_token", setRecoveryTokenSQL)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, setRecoveryTokenSQL, token, expiresAt, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("set recovery token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// ResetPassword swaps the password hash and clears the recovery token. The
// WHERE clause makes it a compare-and-swap on the stored token, so of two
// concurrent resets with one token only the first updates a row.
func (r *UserRepository) ResetPassword(ctx context.Context, userID, token, passwordHash string, now time.Time) (err error) {
	ctx, end := database.TraceQuery(ctx, "users.reset_password", resetPasswordSQL)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, resetPasswordSQL, passwordHash, time.Now().UTC(), userID, token, now)
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrTokenMismatch
	}
	return nil
}

// UpdatePassword replaces the password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) (err error) {
	ctx, end := database.TraceQuery(ctx, "users.update_password", updatePasswordSQL)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, updatePasswordSQL, passwordHash, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// scanUser is a helper that executes a query expected to return a single user row.
func (r *UserRepository) scanUser(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var u domain.User

	err := r.db.QueryRow(ctx, query, args...).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.RecoveryToken,
		&u.RecoveryTokenExpiresAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
