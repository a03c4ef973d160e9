package repository

import (
	"context"
	"time"

	"github.com/srivardhan-kondu/EmpathyAI/internal/domain"
)

// UserRepository is the credential store. It is the arbiter of email
// uniqueness and of single-use recovery tokens.
type UserRepository interface {
	// Create inserts a new user. A taken email returns domain.ErrDuplicateEmail.
	Create(ctx context.Context, user *domain.User) error

	// GetByID returns domain.ErrUserNotFound when no user has the id.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail matches the email exactly and returns domain.ErrUserNotFound
	// when no user has it.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// SetRecoveryToken records an outstanding recovery token, replacing any
	// earlier one.
	SetRecoveryToken(ctx context.Context, userID, token string, expiresAt time.Time) error

	// ResetPassword replaces the password hash and clears the recovery token
	// in one step, but only while token is still the outstanding, unexpired
	// token. Otherwise it returns domain.ErrTokenMismatch and changes nothing.
	ResetPassword(ctx context.Context, userID, token, passwordHash string, now time.Time) error

	// UpdatePassword replaces the password hash.
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}
