package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/srivardhan-kondu/EmpathyAI/internal/domain"
)

const bearerPrefix = "Bearer "

// SessionAuthenticator validates "Authorization: Bearer <token>" headers
// against session tokens. It satisfies middleware.Authenticator.
type SessionAuthenticator struct {
	tokens *TokenManager
}

// NewSessionAuthenticator creates an authenticator backed by tokens.
func NewSessionAuthenticator(tokens *TokenManager) *SessionAuthenticator {
	return &SessionAuthenticator{tokens: tokens}
}

// Authenticate returns the verified user ID. The scheme match is exact and
// case-sensitive. A missing header, another scheme or an empty token yields
// domain.ErrNoToken; a token that fails verification yields
// domain.ErrBadToken. Both are returned as AppErrors ready to render.
func (a *SessionAuthenticator) Authenticate(_ context.Context, header string) (string, error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", domain.AppError(domain.ErrNoToken)
	}
	token := strings.TrimPrefix(header, bearerPrefix)
	if token == "" {
		return "", domain.AppError(domain.ErrNoToken)
	}

	userID, err := a.tokens.Verify(token, PurposeSession)
	if err != nil {
		return "", domain.AppError(fmt.Errorf("%w: %v", domain.ErrBadToken, err))
	}
	return userID, nil
}
