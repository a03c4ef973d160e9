package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/srivardhan-kondu/EmpathyAI/pkg/errors"
	"github.com/srivardhan-kondu/EmpathyAI/pkg/httputil"
	"github.com/srivardhan-kondu/EmpathyAI/pkg/logger"
)

type contextKeyType string

const userIDKey contextKeyType = "user_id"

// Authenticator turns a raw Authorization header into a verified user ID.
// Implementations return an *apperrors.AppError describing why the header was
// rejected; the middleware renders it as-is. Wrapping an Authenticator (for
// throttling, caching, metrics) requires no change to the middleware.
type Authenticator interface {
	Authenticate(ctx context.Context, authorization string) (userID string, err error)
}

// AuthenticatorFunc adapts a plain function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, authorization string) (string, error)

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, authorization string) (string, error) {
	return f(ctx, authorization)
}

// Auth gates a handler on a verified identity. On success the user ID is bound
// to the request context; downstream handlers read it with UserIDFromContext
// and must never trust a client-supplied user ID for ownership checks.
func Auth(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := a.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				var appErr *apperrors.AppError
				if !errors.As(err, &appErr) {
					appErr = apperrors.Unauthorized("authentication failed")
					err = appErr
				}
				recordAuthDecision(appErr.Code)
				httputil.WriteError(w, r, err, nil)
				return
			}

			recordAuthDecision("accepted")
			ctx := WithUserID(r.Context(), userID)
			ctx = logger.WithUserID(ctx, userID)
			ctx = logger.NewContext(ctx, logger.FromContext(ctx).With(slog.String("user_id", userID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithUserID binds a verified user ID to ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext extracts the verified user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}
