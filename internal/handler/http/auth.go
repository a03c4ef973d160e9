package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/srivardhan-kondu/EmpathyAI/internal/domain"
	"github.com/srivardhan-kondu/EmpathyAI/internal/service"
	"github.com/srivardhan-kondu/EmpathyAI/pkg/httputil"
	"github.com/srivardhan-kondu/EmpathyAI/pkg/middleware"
	"github.com/srivardhan-kondu/EmpathyAI/pkg/validator"
)

// AuthHandler handles HTTP requests for the identity endpoints.
type AuthHandler struct {
	accounts *service.AuthService
	logins   service.Authenticator
	recovery *service.RecoveryService
	logger   *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler. logins serves both login
// endpoints; when nil, accounts is used directly.
func NewAuthHandler(accounts *service.AuthService, logins service.Authenticator, recovery *service.RecoveryService, logger *slog.Logger) *AuthHandler {
	if logins == nil {
		logins = accounts
	}
	return &AuthHandler{accounts: accounts, logins: logins, recovery: recovery, logger: logger}
}

// --- Request DTOs ---
//
// Presence is checked by the services so every missing field yields the same
// "All fields are required" error; tags here only bound sizes.

// SignupRequest is the JSON request body for signup.
type SignupRequest struct {
	Username string `json:"username" validate:"max=100"`
	Email    string `json:"email" validate:"max=254"`
	Password string `json:"password" validate:"max=1024"`
}

// LoginRequest is the JSON request body for password login.
type LoginRequest struct {
	Email    string `json:"email" validate:"max=254"`
	Password string `json:"password" validate:"max=1024"`
}

// GoogleLoginRequest carries the Google ID token from the browser.
type GoogleLoginRequest struct {
	Token string `json:"token" validate:"max=8192"`
}

// ForgotPasswordRequest is the JSON request body for forgot password.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"max=254"`
}

// ResetPasswordRequest is the JSON request body for password reset. The
// recovery token travels in the path.
type ResetPasswordRequest struct {
	NewPassword string `json:"newPassword" validate:"max=1024"`
}

// ChangePasswordRequest is the JSON request body for an authenticated
// password change.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"max=1024"`
	NewPassword     string `json:"newPassword" validate:"max=1024"`
}

// --- Response types ---

// MessageResponse is the body of endpoints that only confirm an action.
type MessageResponse struct {
	Message string `json:"message"`
}

// LoginResponse is returned by password login.
type LoginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	UserID  string `json:"userId"`
}

// TokenResponse is returned by Google login.
type TokenResponse struct {
	Token string `json:"token"`
}

// --- Handlers ---

// Signup handles POST /auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteRequestError(w, r, err)
		return
	}

	_, err := h.accounts.Signup(r.Context(), service.SignupInput{
		Username: strings.TrimSpace(req.Username),
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{
		Data: MessageResponse{Message: "User registered successfully"},
	})
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteRequestError(w, r, err)
		return
	}

	result, err := h.logins.LoginWithPassword(r.Context(), service.LoginInput{
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: LoginResponse{Message: "Login successful", Token: result.Token, UserID: result.UserID},
	})
}

// GoogleLogin handles POST /auth/google
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req GoogleLoginRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteRequestError(w, r, err)
		return
	}

	result, err := h.logins.LoginWithIdentityAssertion(r.Context(), req.Token)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: TokenResponse{Token: result.Token}})
}

// Profile handles GET /auth/profile
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, r, domain.AppError(domain.ErrNoToken), h.logger)
		return
	}

	profile, err := h.accounts.Profile(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: profile})
}

// ForgotPassword handles POST /auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteRequestError(w, r, err)
		return
	}

	if err := h.recovery.RequestReset(r.Context(), strings.TrimSpace(req.Email)); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: MessageResponse{Message: "Password reset email sent"},
	})
}

// ResetPassword handles POST /auth/reset-password/{token}
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteRequestError(w, r, err)
		return
	}

	if err := h.recovery.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.NewPassword); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: MessageResponse{Message: "Password reset successfully"},
	})
}

// ChangePassword handles POST /auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, r, domain.AppError(domain.ErrNoToken), h.logger)
		return
	}

	var req ChangePasswordRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteRequestError(w, r, err)
		return
	}

	if err := h.accounts.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: MessageResponse{Message: "Password changed successfully"},
	})
}
