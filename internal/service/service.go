package service

import (
	"context"
	"time"

	"github.com/srivardhan-kondu/EmpathyAI/internal/domain"
)

// maxPasswordLength is in bytes. bcrypt ignores everything past 72 bytes, so
// longer passwords are refused rather than silently truncated. Any non-empty
// password up to that length is accepted.
const maxPasswordLength = 72

// Defaults for Config fields left zero.
const (
	DefaultSessionTTL   = time.Hour
	DefaultRecoveryTTL  = 15 * time.Minute
	DefaultStoreTimeout = 5 * time.Second
)

// Config holds the settings shared by the identity services.
type Config struct {
	SessionTTL   time.Duration
	RecoveryTTL  time.Duration
	StoreTimeout time.Duration

	// ClientURL is the frontend origin recovery links point at.
	ClientURL string
	// ConcealUnknownEmail makes RequestReset succeed for unknown addresses
	// instead of reporting them.
	ConcealUnknownEmail bool

	// Now replaces time.Now; it must agree with the token manager's clock.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.RecoveryTTL <= 0 {
		c.RecoveryTTL = DefaultRecoveryTTL
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = DefaultStoreTimeout
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// EventPublisher announces identity changes to other services.
// *event.Producer satisfies it.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, user *domain.User, method string) error
	PublishUserPasswordReset(ctx context.Context, userID, email string) error
}

func validatePassword(password string) error {
	if len(password) > maxPasswordLength {
		return domain.ErrPasswordTooLong
	}
	return nil
}

// fail converts err into the AppError the HTTP layer renders. Domain
// sentinels keep their contract; anything else becomes a 500.
func fail(err error) error {
	if err == nil {
		return nil
	}
	return domain.AppError(err)
}
