package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/srivardhan-kondu/EmpathyAI/internal/auth"
	"github.com/srivardhan-kondu/EmpathyAI/internal/domain"
	"github.com/srivardhan-kondu/EmpathyAI/internal/event"
	"github.com/srivardhan-kondu/EmpathyAI/internal/identity"
	"github.com/srivardhan-kondu/EmpathyAI/internal/repository"
)

// Authenticator is the login surface. Decorators such as a rate limiter
// wrap it without changing AuthService.
type Authenticator interface {
	LoginWithPassword(ctx context.Context, input LoginInput) (*LoginResult, error)
	LoginWithIdentityAssertion(ctx context.Context, assertion string) (*LoginResult, error)
}

// SignupInput holds the parameters for creating an account.
type SignupInput struct {
	Username string
	Email    string
	Password string
}

// LoginInput holds the parameters for password login.
type LoginInput struct {
	Email    string
	Password string
}

// LoginResult is a freshly issued session.
type LoginResult struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// AuthService implements signup, both login paths, profile lookup and
// password change.
type AuthService struct {
	users    repository.UserRepository
	hasher   auth.PasswordHasher
	tokens   *auth.TokenManager
	verifier identity.Verifier
	events   EventPublisher
	cfg      Config
	logger   *slog.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(
	users repository.UserRepository,
	hasher auth.PasswordHasher,
	tokens *auth.TokenManager,
	verifier identity.Verifier,
	events EventPublisher,
	cfg Config,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		verifier: verifier,
		events:   events,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// Signup creates a password account.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*domain.User, error) {
	if input.Username == "" || input.Email == "" || input.Password == "" {
		return nil, fail(domain.ErrMissingField)
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, fail(err)
	}

	// The store's unique index is the arbiter; this lookup only avoids
	// hashing for an email that is plainly taken.
	if _, err := s.getByEmail(ctx, input.Email); err == nil {
		return nil, fail(domain.ErrDuplicateEmail)
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fail(fmt.Errorf("check existing user: %w", err))
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fail(fmt.Errorf("hash password: %w", err))
	}

	now := s.cfg.Now().UTC()
	user := &domain.User{
		ID:           uuid.New().String(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.create(ctx, user); err != nil {
		return nil, fail(err)
	}

	s.publishRegistered(ctx, user, event.SignupMethodPassword)

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("method", event.SignupMethodPassword),
	)
	return user, nil
}

// LoginWithPassword checks an email and password and issues a session token.
func (s *AuthService) LoginWithPassword(ctx context.Context, input LoginInput) (*LoginResult, error) {
	if input.Email == "" || input.Password == "" {
		return nil, fail(domain.ErrMissingField)
	}

	user, err := s.getByEmail(ctx, input.Email)
	if err != nil {
		return nil, fail(err)
	}

	// Accounts provisioned by a third-party login have no password.
	if !user.HasPassword() {
		return nil, fail(domain.ErrBadCredentials)
	}
	ok, err := s.hasher.Verify(input.Password, user.PasswordHash)
	if err != nil {
		return nil, fail(fmt.Errorf("verify password for user %s: %w", user.ID, err))
	}
	if !ok {
		return nil, fail(domain.ErrBadCredentials)
	}

	result, err := s.issueSession(user.ID)
	if err != nil {
		return nil, fail(err)
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
		slog.String("method", "password"),
	)
	return result, nil
}

// LoginWithIdentityAssertion verifies a third-party assertion, provisions an
// account for a new email and issues a session token. Repeated calls for one
// email always resolve to the same account.
func (s *AuthService) LoginWithIdentityAssertion(ctx context.Context, assertion string) (*LoginResult, error) {
	id, err := s.verifier.Verify(ctx, assertion)
	if err != nil {
		if errors.Is(err, domain.ErrAssertionInvalid) {
			s.logger.InfoContext(ctx, "identity assertion rejected", slog.String("reason", err.Error()))
		}
		return nil, fail(err)
	}

	user, err := s.getByEmail(ctx, id.Email)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		user, err = s.provision(ctx, id)
		if err != nil {
			return nil, fail(err)
		}
	case err != nil:
		return nil, fail(err)
	}

	result, err := s.issueSession(user.ID)
	if err != nil {
		return nil, fail(err)
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
		slog.String("method", event.SignupMethodGoogle),
	)
	return result, nil
}

// provision creates the account for a verified identity. If a concurrent
// login created it first, the winner's record is returned.
func (s *AuthService) provision(ctx context.Context, id *identity.Identity) (*domain.User, error) {
	now := s.cfg.Now().UTC()
	user := &domain.User{
		ID:        uuid.New().String(),
		Username:  domain.DisplayNameOrEmail(id.DisplayName, id.Email),
		Email:     id.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.create(ctx, user)
	if errors.Is(err, domain.ErrDuplicateEmail) {
		return s.getByEmail(ctx, id.Email)
	}
	if err != nil {
		return nil, err
	}

	s.publishRegistered(ctx, user, event.SignupMethodGoogle)
	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("method", event.SignupMethodGoogle),
	)
	return user, nil
}

// Profile returns the client-safe view of the authenticated user.
func (s *AuthService) Profile(ctx context.Context, userID string) (*domain.Profile, error) {
	user, err := s.getByID(ctx, userID)
	if err != nil {
		// A valid session for an account that no longer exists.
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, fail(fmt.Errorf("%w: subject has no account", domain.ErrBadToken))
		}
		return nil, fail(err)
	}
	return user.Profile(), nil
}

// ChangePassword replaces the password of an authenticated user after
// checking the current one. Accounts without a password set one through
// the recovery flow instead.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return fail(domain.ErrMissingField)
	}
	if err := validatePassword(newPassword); err != nil {
		return fail(err)
	}

	user, err := s.getByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return fail(fmt.Errorf("%w: subject has no account", domain.ErrBadToken))
		}
		return fail(err)
	}
	if !user.HasPassword() {
		return fail(domain.ErrBadCredentials)
	}
	ok, err := s.hasher.Verify(currentPassword, user.PasswordHash)
	if err != nil {
		return fail(fmt.Errorf("verify password for user %s: %w", user.ID, err))
	}
	if !ok {
		return fail(domain.ErrBadCredentials)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fail(fmt.Errorf("hash password: %w", err))
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.users.UpdatePassword(storeCtx, user.ID, hash); err != nil {
		return fail(fmt.Errorf("update password: %w", err))
	}

	s.logger.InfoContext(ctx, "password changed", slog.String("user_id", user.ID))
	return nil
}

func (s *AuthService) issueSession(userID string) (*LoginResult, error) {
	token, expiresAt, err := s.tokens.Issue(userID, auth.PurposeSession, s.cfg.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}
	return &LoginResult{Token: token, UserID: userID, ExpiresAt: expiresAt}, nil
}

func (s *AuthService) publishRegistered(ctx context.Context, user *domain.User, method string) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishUserRegistered(ctx, user, method); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *AuthService) getByEmail(ctx context.Context, email string) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, err
}

func (s *AuthService) getByID(ctx context.Context, id string) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	user, err := s.users.GetByID(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return user, err
}

func (s *AuthService) create(ctx context.Context, user *domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	err := s.users.Create(ctx, user)
	if err != nil && !errors.Is(err, domain.ErrDuplicateEmail) {
		return fmt.Errorf("create user: %w", err)
	}
	return err
}
