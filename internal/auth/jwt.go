package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/srivardhan-kondu/EmpathyAI/internal/domain"
)

// Purpose separates session tokens from recovery tokens so one can never be
// replayed as the other.
type Purpose string

const (
	PurposeSession  Purpose = "session"
	PurposeRecovery Purpose = "recovery"
)

// Claims are the claims carried by every token this package issues.
type Claims struct {
	Purpose Purpose `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 tokens bound to a subject and a
// purpose. The signing key is fixed for the life of the manager.
type TokenManager struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// TokenOption configures a TokenManager.
type TokenOption func(*TokenManager)

// WithClock replaces time.Now, for tests that need to cross an expiry.
func WithClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) { m.now = now }
}

// NewTokenManager creates a token manager. An empty secret is rejected.
func NewTokenManager(secret, issuer string, opts ...TokenOption) (*TokenManager, error) {
	if secret == "" {
		return nil, errors.New("token signing secret is empty")
	}
	m := &TokenManager{secret: []byte(secret), issuer: issuer, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Issue signs a token for subjectID that is valid for at least lifetime. The
// exp claim has whole-second precision, so the expiry is rounded up to the
// next second; the returned time is exactly the signed exp.
func (m *TokenManager) Issue(subjectID string, purpose Purpose, lifetime time.Duration) (string, time.Time, error) {
	now := m.now().UTC()
	expiresAt := ceilSecond(now.Add(lifetime))

	claims := &Claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subjectID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", purpose, err)
	}
	return signed, expiresAt, nil
}

func ceilSecond(t time.Time) time.Time {
	if whole := t.Truncate(time.Second); !whole.Equal(t) {
		return whole.Add(time.Second)
	}
	return t
}

// Verify checks signature, algorithm, issuer, expiry and purpose and returns
// the subject. Errors wrap domain.ErrTokenMissing, domain.ErrTokenExpired or
// domain.ErrTokenInvalid.
func (m *TokenManager) Verify(token string, purpose Purpose) (string, error) {
	if token == "" {
		return "", domain.ErrTokenMissing
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", fmt.Errorf("%w: %v", domain.ErrTokenExpired, err)
	case err != nil:
		return "", fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}

	if claims.Purpose != purpose {
		return "", fmt.Errorf("%w: purpose %q, want %q", domain.ErrTokenInvalid, claims.Purpose, purpose)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", domain.ErrTokenInvalid)
	}
	return claims.Subject, nil
}
