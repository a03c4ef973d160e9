package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/srivardhan-kondu/EmpathyAI/internal/auth"
	"github.com/srivardhan-kondu/EmpathyAI/internal/domain"
	"github.com/srivardhan-kondu/EmpathyAI/internal/notifier"
	"github.com/srivardhan-kondu/EmpathyAI/internal/repository"
)

const resetSubject = "Password Reset"

// RecoveryService runs the forgot-password flow: it mints single-use
// recovery tokens, mails them as links and redeems them for a new password.
type RecoveryService struct {
	users    repository.UserRepository
	hasher   auth.PasswordHasher
	tokens   *auth.TokenManager
	notifier notifier.Notifier
	events   EventPublisher
	cfg      Config
	logger   *slog.Logger
}

// NewRecoveryService creates a new password recovery service.
func NewRecoveryService(
	users repository.UserRepository,
	hasher auth.PasswordHasher,
	tokens *auth.TokenManager,
	n notifier.Notifier,
	events EventPublisher,
	cfg Config,
	logger *slog.Logger,
) *RecoveryService {
	return &RecoveryService{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		notifier: n,
		events:   events,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// RequestReset issues a recovery token for email and mails the reset link.
// A new request replaces any token issued before it. If delivery fails the
// stored token is kept and domain.ErrDeliveryFailed is returned.
func (s *RecoveryService) RequestReset(ctx context.Context, email string) error {
	if email == "" {
		return fail(domain.ErrMissingField)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	user, err := s.users.GetByEmail(storeCtx, email)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.logger.InfoContext(ctx, "password reset requested for unknown email")
			if s.cfg.ConcealUnknownEmail {
				return nil
			}
			return fail(err)
		}
		return fail(fmt.Errorf("get user by email: %w", err))
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, auth.PurposeRecovery, s.cfg.RecoveryTTL)
	if err != nil {
		return fail(fmt.Errorf("issue recovery token: %w", err))
	}

	storeCtx, cancel = context.WithTimeout(ctx, s.cfg.StoreTimeout)
	err = s.users.SetRecoveryToken(storeCtx, user.ID, token, expiresAt)
	cancel()
	if err != nil {
		return fail(fmt.Errorf("store recovery token: %w", err))
	}

	msg := notifier.Message{
		To:      user.Email,
		Subject: resetSubject,
		Body:    "Click the link to reset your password: " + s.resetLink(token),
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		return fail(fmt.Errorf("%w via %s: %v", domain.ErrDeliveryFailed, s.notifier.Name(), err))
	}

	s.logger.InfoContext(ctx, "password reset requested",
		slog.String("user_id", user.ID),
		slog.Time("expires_at", expiresAt),
	)
	return nil
}

// ResetPassword redeems a recovery token. The token must carry a valid
// signature, be unexpired and still be the user's outstanding token; the
// store then swaps the password and clears the token in one step.
func (s *RecoveryService) ResetPassword(ctx context.Context, token, newPassword string) error {
	userID, err := s.tokens.Verify(token, auth.PurposeRecovery)
	if err != nil {
		return fail(err)
	}

	if newPassword == "" {
		return fail(domain.ErrMissingField)
	}
	if err := validatePassword(newPassword); err != nil {
		return fail(err)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	user, err := s.users.GetByID(storeCtx, userID)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return fail(fmt.Errorf("%w: subject has no account", domain.ErrTokenMismatch))
		}
		return fail(fmt.Errorf("get user by id: %w", err))
	}

	if !user.HasPendingRecovery() || subtle.ConstantTimeCompare([]byte(*user.RecoveryToken), []byte(token)) != 1 {
		return fail(domain.ErrTokenMismatch)
	}
	now := s.cfg.Now().UTC()
	if now.After(*user.RecoveryTokenExpiresAt) {
		return fail(domain.ErrTokenExpired)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fail(fmt.Errorf("hash password: %w", err))
	}

	storeCtx, cancel = context.WithTimeout(ctx, s.cfg.StoreTimeout)
	err = s.users.ResetPassword(storeCtx, user.ID, token, hash, now)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrTokenMismatch) {
			return fail(err)
		}
		return fail(fmt.Errorf("reset password: %w", err))
	}

	if s.events != nil {
		if err := s.events.PublishUserPasswordReset(ctx, user.ID, user.Email); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish user.password_reset event",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "password reset", slog.String("user_id", user.ID))
	return nil
}

func (s *RecoveryService) resetLink(token string) string {
	return strings.TrimRight(s.cfg.ClientURL, "/") + "/reset-password/" + token
}
