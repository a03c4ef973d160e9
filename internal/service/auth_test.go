package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/srivardhan-kondu/EmpathyAI/internal/auth"
	"github.com/srivardhan-kondu/EmpathyAI/internal/domain"
	"github.com/srivardhan-kondu/EmpathyAI/internal/identity"
	"github.com/srivardhan-kondu/EmpathyAI/internal/repository/memory"
)

// ---------------------------------------------------------------------------
// Signup
// ---------------------------------------------------------------------------

func TestSignup_ThenLogin_SubjectIsUserID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := f.signup(t, "alice@example.com", "correct horse")
	assert.NotEmpty(t, user.ID)
	assert.NotEqual(t, "correct horse", user.PasswordHash)

	result, err := f.auth.LoginWithPassword(ctx, LoginInput{Email: "alice@example.com", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, result.UserID)
	assert.Equal(t, f.clock.Now().Add(time.Hour), result.ExpiresAt)

	subject, err := f.tokens.Verify(result.Token, auth.PurposeSession)
	require.NoError(t, err)
	assert.Equal(t, user.ID, subject)

	assert.Equal(t, []string{user.ID + ":password"}, f.events.registered)
}

func TestSignup_MissingField(t *testing.T) {
	tests := []struct {
		name  string
		input SignupInput
	}{
		{"username", SignupInput{Email: "a@example.com", Password: "password1"}},
		{"email", SignupInput{Username: "a", Password: "password1"}},
		{"password", SignupInput{Username: "a", Email: "a@example.com"}},
		{"all", SignupInput{}},
	}

	f := newFixture(t)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.auth.Signup(context.Background(), tc.input)
			assert.ErrorIs(t, err, domain.ErrMissingField)
			requireAppError(t, err, http.StatusBadRequest, "MISSING_FIELD")
		})
	}
}

func TestSignup_PasswordLength(t *testing.T) {
	f := newFixture(t)

	_, err := f.auth.Signup(context.Background(), SignupInput{Username: "a", Email: "a@example.com", Password: strings.Repeat("x", 73)})
	assert.ErrorIs(t, err, domain.ErrPasswordTooLong)
	requireAppError(t, err, http.StatusBadRequest, "INVALID_PASSWORD")

	for i, pw := range []string{"pw", "x", strings.Repeat("x", 72)} {
		email := fmt.Sprintf("user%d@example.com", i)
		_, err := f.auth.Signup(context.Background(), SignupInput{Username: "bob", Email: email, Password: pw})
		require.NoError(t, err, "password of %d bytes", len(pw))

		_, err = f.auth.LoginWithPassword(context.Background(), LoginInput{Email: email, Password: pw})
		assert.NoError(t, err)
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "alice@example.com", "correct horse")

	_, err := f.auth.Signup(context.Background(), SignupInput{
		Username: "someone-else",
		Email:    "alice@example.com",
		Password: "another password",
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)
	requireAppError(t, err, http.StatusBadRequest, "USER_EXISTS")
}

func TestSignup_ConcurrentSameEmailHasOneWinner(t *testing.T) {
	f := newFixture(t)

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.auth.Signup(context.Background(), SignupInput{
				Username: "racer",
				Email:    "race@example.com",
				Password: "password1",
			})
		}()
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrDuplicateEmail)
	}
	assert.Equal(t, 1, ok)
}

func TestSignup_StoreRaceReportsDuplicate(t *testing.T) {
	repo := &mockUserRepository{}
	f := newFixtureWithRepo(t, repo, Config{})

	repo.On("GetByEmail", mock.Anything, "alice@example.com").Return(nil, domain.ErrUserNotFound)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.User")).Return(domain.ErrDuplicateEmail)

	_, err := f.auth.Signup(context.Background(), SignupInput{Username: "a", Email: "alice@example.com", Password: "password1"})
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)
	assert.Empty(t, f.events.registered)
	repo.AssertExpectations(t)
}

func TestSignup_StoreFailureIsInternal(t *testing.T) {
	repo := &mockUserRepository{}
	f := newFixtureWithRepo(t, repo, Config{})

	repo.On("GetByEmail", mock.Anything, "alice@example.com").Return(nil, errors.New("dial tcp: connection refused"))

	_, err := f.auth.Signup(context.Background(), SignupInput{Username: "a", Email: "alice@example.com", Password: "password1"})
	requireAppError(t, err, http.StatusInternalServerError, "INTERNAL_ERROR")
	assert.NotContains(t, domain.AppError(err).Message, "connection refused")
}

func TestSignup_AppliesStoreTimeout(t *testing.T) {
	repo := &mockUserRepository{}
	f := newFixtureWithRepo(t, repo, Config{StoreTimeout: 50 * time.Millisecond})

	repo.On("GetByEmail", mock.Anything, "alice@example.com").
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			deadline, ok := ctx.Deadline()
			require.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 50*time.Millisecond)
		}).
		Return(nil, context.DeadlineExceeded)

	_, err := f.auth.Signup(context.Background(), SignupInput{Username: "a", Email: "alice@example.com", Password: "password1"})
	requireAppError(t, err, http.StatusInternalServerError, "INTERNAL_ERROR")
}

// ---------------------------------------------------------------------------
// Password login
// ---------------------------------------------------------------------------

func TestLoginWithPassword_Failures(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "alice@example.com", "correct horse")
	_, err := f.auth.LoginWithIdentityAssertion(context.Background(), "google-id-token")
	require.NoError(t, err)

	tests := []struct {
		name   string
		input  LoginInput
		target error
		code   string
	}{
		{"unknown email", LoginInput{Email: "nobody@example.com", Password: "whatever1"}, domain.ErrUserNotFound, "USER_NOT_FOUND"},
		{"wrong password", LoginInput{Email: "alice@example.com", Password: "wrong horse"}, domain.ErrBadCredentials, "INVALID_CREDENTIALS"},
		{"email is case sensitive", LoginInput{Email: "Alice@example.com", Password: "correct horse"}, domain.ErrUserNotFound, "USER_NOT_FOUND"},
		{"provisioned without password", LoginInput{Email: "bob@example.com", Password: ""}, domain.ErrMissingField, "MISSING_FIELD"},
		{"provisioned account rejects any password", LoginInput{Email: "bob@example.com", Password: "anything1"}, domain.ErrBadCredentials, "INVALID_CREDENTIALS"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := f.auth.LoginWithPassword(context.Background(), tc.input)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, tc.target)
			requireAppError(t, err, http.StatusBadRequest, tc.code)
		})
	}
}

func TestLoginWithPassword_CorruptStoredHash(t *testing.T) {
	repo := memory.NewUserRepository()
	require.NoError(t, repo.Create(context.Background(), &domain.User{ID: "u-1", Username: "a", Email: "a@example.com", PasswordHash: "not-a-hash"}))
	f := newFixtureWithRepo(t, repo, Config{})

	_, err := f.auth.LoginWithPassword(context.Background(), LoginInput{Email: "a@example.com", Password: "password1"})
	assert.ErrorIs(t, err, domain.ErrCorruptCredential)
	requireAppError(t, err, http.StatusInternalServerError, "INTERNAL_ERROR")
}

// ---------------------------------------------------------------------------
// Identity-assertion login
// ---------------------------------------------------------------------------

func TestLoginWithIdentityAssertion_ProvisionsOnceThenReuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.auth.LoginWithIdentityAssertion(ctx, "google-id-token")
	require.NoError(t, err)
	second, err := f.auth.LoginWithIdentityAssertion(ctx, "google-id-token")
	require.NoError(t, err)

	assert.Equal(t, first.UserID, second.UserID)
	assert.NotEqual(t, first.Token, second.Token)

	user, err := f.users.GetByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.UserID, user.ID)
	assert.Equal(t, "Bob Builder", user.Username)
	assert.False(t, user.HasPassword())

	subject, err := f.tokens.Verify(second.Token, auth.PurposeSession)
	require.NoError(t, err)
	assert.Equal(t, user.ID, subject)

	assert.Equal(t, []string{user.ID + ":google"}, f.events.registered)
}

func TestLoginWithIdentityAssertion_ReusesPasswordAccount(t *testing.T) {
	f := newFixture(t)
	user := f.signup(t, "bob@example.com", "correct horse")

	result, err := f.auth.LoginWithIdentityAssertion(context.Background(), "google-id-token")
	require.NoError(t, err)
	assert.Equal(t, user.ID, result.UserID)
}

func TestLoginWithIdentityAssertion_UsernameFallsBackToEmail(t *testing.T) {
	f := newFixture(t)
	f.verifier.id = &identity.Identity{Email: "carol@example.com"}

	result, err := f.auth.LoginWithIdentityAssertion(context.Background(), "google-id-token")
	require.NoError(t, err)

	user, err := f.users.GetByID(context.Background(), result.UserID)
	require.NoError(t, err)
	assert.Equal(t, "carol", user.Username)
}

func TestLoginWithIdentityAssertion_Invalid(t *testing.T) {
	f := newFixture(t)
	f.verifier.err = errors.Join(domain.ErrAssertionInvalid, errors.New("token is expired"))

	_, err := f.auth.LoginWithIdentityAssertion(context.Background(), "stale")
	assert.ErrorIs(t, err, domain.ErrAssertionInvalid)
	requireAppError(t, err, http.StatusBadRequest, "INVALID_ASSERTION")

	_, err = f.users.GetByEmail(context.Background(), "bob@example.com")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestLoginWithIdentityAssertion_VerifierOutageIsInternal(t *testing.T) {
	f := newFixture(t)
	f.verifier.err = errors.New("fetch jwks: circuit breaker is open")

	_, err := f.auth.LoginWithIdentityAssertion(context.Background(), "google-id-token")
	requireAppError(t, err, http.StatusInternalServerError, "INTERNAL_ERROR")
}

func TestLoginWithIdentityAssertion_ProvisioningRaceReturnsWinner(t *testing.T) {
	repo := &mockUserRepository{}
	f := newFixtureWithRepo(t, repo, Config{})
	winner := &domain.User{ID: "winner-id", Username: "Bob", Email: "bob@example.com"}

	repo.On("GetByEmail", mock.Anything, "bob@example.com").Return(nil, domain.ErrUserNotFound).Once()
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.User")).Return(domain.ErrDuplicateEmail).Once()
	repo.On("GetByEmail", mock.Anything, "bob@example.com").Return(winner, nil).Once()

	result, err := f.auth.LoginWithIdentityAssertion(context.Background(), "google-id-token")
	require.NoError(t, err)
	assert.Equal(t, "winner-id", result.UserID)
	assert.Empty(t, f.events.registered)
	repo.AssertExpectations(t)
}

func TestLoginWithIdentityAssertion_ConcurrentProvisioning(t *testing.T) {
	f := newFixture(t)

	const attempts = 8
	ids := make([]string, attempts)
	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.auth.LoginWithIdentityAssertion(context.Background(), "google-id-token")
			if assert.NoError(t, err) {
				ids[i] = result.UserID
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Len(t, f.events.registered, 1)
}

// ---------------------------------------------------------------------------
// Profile and password change
// ---------------------------------------------------------------------------

func TestProfile(t *testing.T) {
	f := newFixture(t)
	user := f.signup(t, "alice@example.com", "correct horse")

	profile, err := f.auth.Profile(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, &domain.Profile{ID: user.ID, Username: "alice", Email: "alice@example.com", CreatedAt: user.CreatedAt}, profile)

	_, err = f.auth.Profile(context.Background(), "deleted-user")
	assert.ErrorIs(t, err, domain.ErrBadToken)
	requireAppError(t, err, http.StatusUnauthorized, "UNAUTHENTICATED")
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.signup(t, "alice@example.com", "correct horse")

	err := f.auth.ChangePassword(ctx, user.ID, "wrong horse", "battery staple")
	assert.ErrorIs(t, err, domain.ErrBadCredentials)

	err = f.auth.ChangePassword(ctx, user.ID, "correct horse", strings.Repeat("x", 73))
	assert.ErrorIs(t, err, domain.ErrPasswordTooLong)

	require.NoError(t, f.auth.ChangePassword(ctx, user.ID, "correct horse", "battery staple"))

	_, err = f.auth.LoginWithPassword(ctx, LoginInput{Email: "alice@example.com", Password: "correct horse"})
	assert.ErrorIs(t, err, domain.ErrBadCredentials)
	_, err = f.auth.LoginWithPassword(ctx, LoginInput{Email: "alice@example.com", Password: "battery staple"})
	assert.NoError(t, err)
}

func TestChangePassword_ProvisionedAccountMustUseRecovery(t *testing.T) {
	f := newFixture(t)
	result, err := f.auth.LoginWithIdentityAssertion(context.Background(), "google-id-token")
	require.NoError(t, err)

	err = f.auth.ChangePassword(context.Background(), result.UserID, "anything1", "battery staple")
	assert.ErrorIs(t, err, domain.ErrBadCredentials)
}
