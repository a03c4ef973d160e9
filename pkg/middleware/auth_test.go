package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/srivardhan-kondu/EmpathyAI/pkg/errors"
	"github.com/srivardhan-kondu/EmpathyAI/pkg/logger"
)

func chiRouterWith(mw func(http.Handler) http.Handler, method, pattern string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(mw)
	r.MethodFunc(method, pattern, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestAuth_RejectsWithAuthenticatorError(t *testing.T) {
	gate := Auth(AuthenticatorFunc(func(_ context.Context, header string) (string, error) {
		if header == "" {
			return "", apperrors.New(http.StatusUnauthorized, "NO_TOKEN", "authentication failed: no token provided", apperrors.ErrUnauthorized)
		}
		return "", apperrors.New(http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token", apperrors.ErrUnauthorized)
	}))

	called := false
	handler := gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	tests := []struct {
		name    string
		header  string
		code    string
		message string
	}{
		{"missing header", "", "NO_TOKEN", "authentication failed: no token provided"},
		{"garbage token", "Bearer nope", "INVALID_TOKEN", "Invalid token"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Error.Code)
			assert.Equal(t, tc.message, body.Error.Message)
		})
	}
	assert.False(t, called)
}

func TestAuth_HidesUnexpectedErrors(t *testing.T) {
	gate := Auth(AuthenticatorFunc(func(_ context.Context, _ string) (string, error) {
		return "", errors.New("redis: connection refused")
	}))

	rec := httptest.NewRecorder()
	gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), "redis")
}

func TestAuth_BindsUserID(t *testing.T) {
	var buf bytes.Buffer
	base := newTestLogger(&buf)

	gate := Auth(AuthenticatorFunc(func(_ context.Context, header string) (string, error) {
		assert.Equal(t, "Bearer good", header)
		return "u-42", nil
	}))

	var gotID string
	handler := RequestLogger(base)(gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = UserIDFromContext(r.Context())
		logger.FromContext(r.Context()).Info("inside")
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u-42", gotID)

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "u-42", out["user_id"])
}

func TestUserIDFromContext_Empty(t *testing.T) {
	assert.Empty(t, UserIDFromContext(context.Background()))
}
