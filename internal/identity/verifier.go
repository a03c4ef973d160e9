package identity

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/srivardhan-kondu/EmpathyAI/internal/domain"
)

// GoogleJWKSURL is where Google publishes the keys that sign its ID tokens.
const GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

var googleIssuers = map[string]bool{
	"accounts.google.com":         true,
	"https://accounts.google.com": true,
}

// Identity is what a verified third-party assertion tells us about the user.
type Identity struct {
	Email       string
	DisplayName string
}

// Verifier checks an identity assertion issued by a third party.
// Assertions that fail any check return an error wrapping
// domain.ErrAssertionInvalid. Any other error means the verifier could not
// reach a dependency and the assertion was not judged.
type Verifier interface {
	Verify(ctx context.Context, assertion string) (*Identity, error)
}

// KeySource resolves the public key for a key id.
type KeySource interface {
	PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"`
	Name          string `json:"name"`
	jwt.RegisteredClaims
}

// GoogleVerifier verifies Google ID tokens issued for one OAuth client.
type GoogleVerifier struct {
	keys     KeySource
	audience string
	now      func() time.Time
}

// VerifierOption configures a GoogleVerifier.
type VerifierOption func(*GoogleVerifier)

// WithVerifierClock replaces time.Now when checking expiry.
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *GoogleVerifier) { v.now = now }
}

// NewGoogleVerifier creates a verifier that accepts tokens whose audience is
// clientID.
func NewGoogleVerifier(keys KeySource, clientID string, opts ...VerifierOption) (*GoogleVerifier, error) {
	if clientID == "" {
		return nil, errors.New("google client id is empty")
	}
	v := &GoogleVerifier{keys: keys, audience: clientID, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify checks signature, algorithm, issuer, audience, expiry and the email
// claims of a Google ID token.
func (v *GoogleVerifier) Verify(ctx context.Context, assertion string) (*Identity, error) {
	if assertion == "" {
		return nil, fmt.Errorf("%w: empty assertion", domain.ErrAssertionInvalid)
	}

	// A key source failure is a dependency error and must not be reported as
	// a bad assertion, so it is captured outside the parser's error chain.
	var sourceErr error
	claims := &googleClaims{}
	_, err := jwt.ParseWithClaims(assertion, claims,
		func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid header")
			}
			key, err := v.keys.PublicKey(ctx, kid)
			if err != nil {
				if !errors.Is(err, ErrUnknownKey) {
					sourceErr = err
				}
				return nil, err
			}
			return key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if sourceErr != nil {
		return nil, fmt.Errorf("resolve google signing key: %w", sourceErr)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAssertionInvalid, err)
	}

	if !googleIssuers[claims.Issuer] {
		return nil, fmt.Errorf("%w: issuer %q", domain.ErrAssertionInvalid, claims.Issuer)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: no email claim", domain.ErrAssertionInvalid)
	}
	if !emailVerified(claims.EmailVerified) {
		return nil, fmt.Errorf("%w: email not verified", domain.ErrAssertionInvalid)
	}

	return &Identity{Email: claims.Email, DisplayName: claims.Name}, nil
}

// emailVerified reads the email_verified claim, which Google has sent both as
// a boolean and as a string. An absent claim is accepted.
func emailVerified(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case bool:
		return val
	case string:
		ok, err := strconv.ParseBool(strings.TrimSpace(val))
		return err == nil && ok
	default:
		return false
	}
}

// DisabledVerifier rejects every assertion. Development setups without a
// Google client id use it so the rest of the service still starts.
type DisabledVerifier struct{}

func (DisabledVerifier) Verify(context.Context, string) (*Identity, error) {
	return nil, fmt.Errorf("%w: google sign-in is not configured", domain.ErrAssertionInvalid)
}
