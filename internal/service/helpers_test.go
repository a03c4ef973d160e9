package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/srivardhan-kondu/EmpathyAI/internal/auth"
	"github.com/srivardhan-kondu/EmpathyAI/internal/domain"
	"github.com/srivardhan-kondu/EmpathyAI/internal/identity"
	"github.com/srivardhan-kondu/EmpathyAI/internal/notifier"
	"github.com/srivardhan-kondu/EmpathyAI/internal/repository"
	"github.com/srivardhan-kondu/EmpathyAI/internal/repository/memory"
	apperrors "github.com/srivardhan-kondu/EmpathyAI/pkg/errors"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

type stubVerifier struct {
	id  *identity.Identity
	err error
}

func (v *stubVerifier) Verify(context.Context, string) (*identity.Identity, error) {
	if v.err != nil {
		return nil, v.err
	}
	id := *v.id
	return &id, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notifier.Message
	err  error
}

func (n *recordingNotifier) Name() string { return "recording" }

func (n *recordingNotifier) Send(_ context.Context, msg notifier.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *recordingNotifier) last(t *testing.T) notifier.Message {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.msgs, "no message sent")
	return n.msgs[len(n.msgs)-1]
}

type recordingEvents struct {
	mu         sync.Mutex
	registered []string
	resets     []string
	err        error
}

func (e *recordingEvents) PublishUserRegistered(_ context.Context, user *domain.User, method string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registered = append(e.registered, user.ID+":"+method)
	return e.err
}

func (e *recordingEvents) PublishUserPasswordReset(_ context.Context, userID, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resets = append(e.resets, userID)
	return e.err
}

// mockUserRepository is a testify mock of repository.UserRepository for
// store failure paths the in-memory store cannot produce.
type mockUserRepository struct {
	mock.Mock
}

var _ repository.UserRepository = (*mockUserRepository)(nil)

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) SetRecoveryToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	args := m.Called(ctx, userID, token, expiresAt)
	return args.Error(0)
}

func (m *mockUserRepository) ResetPassword(ctx context.Context, userID, token, passwordHash string, now time.Time) error {
	args := m.Called(ctx, userID, token, passwordHash, now)
	return args.Error(0)
}

func (m *mockUserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	args := m.Called(ctx, userID, passwordHash)
	return args.Error(0)
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

const testClientURL = "http://localhost:3000/"

type fixture struct {
	clock    *fakeClock
	users    repository.UserRepository
	tokens   *auth.TokenManager
	verifier *stubVerifier
	notifier *recordingNotifier
	events   *recordingEvents
	auth     *AuthService
	recovery *RecoveryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithRepo(t, memory.NewUserRepository(), Config{})
}

func newFixtureWithRepo(t *testing.T, users repository.UserRepository, cfg Config) *fixture {
	t.Helper()
	clock := newClock()

	tokens, err := auth.NewTokenManager("test-secret-at-least-32-bytes-long!!", "identity", auth.WithClock(clock.Now))
	require.NoError(t, err)

	cfg.ClientURL = testClientURL
	cfg.Now = clock.Now

	f := &fixture{
		clock:    clock,
		users:    users,
		tokens:   tokens,
		verifier: &stubVerifier{id: &identity.Identity{Email: "bob@example.com", DisplayName: "Bob Builder"}},
		notifier: &recordingNotifier{},
		events:   &recordingEvents{},
	}
	// bcrypt.MinCost keeps the suite fast.
	hasher := auth.NewBcryptHasher(4)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f.auth = NewAuthService(users, hasher, tokens, f.verifier, f.events, cfg, logger)
	f.recovery = NewRecoveryService(users, hasher, tokens, f.notifier, f.events, cfg, logger)
	return f
}

func (f *fixture) signup(t *testing.T, email, password string) *domain.User {
	t.Helper()
	user, err := f.auth.Signup(context.Background(), SignupInput{Username: "alice", Email: email, Password: password})
	require.NoError(t, err)
	return user
}

// tokenFromLink extracts the recovery token from the last reset email.
func (f *fixture) tokenFromLink(t *testing.T) string {
	t.Helper()
	body := f.notifier.last(t).Body
	const marker = "/reset-password/"
	i := strings.LastIndex(body, marker)
	require.GreaterOrEqual(t, i, 0, "no reset link in %q", body)
	return strings.TrimSpace(body[i+len(marker):])
}

// requireAppError asserts err is an AppError with the given status and code.
func requireAppError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr), "want AppError, got %v", err)
	require.Equal(t, status, appErr.Status)
	require.Equal(t, code, appErr.Code)
}
