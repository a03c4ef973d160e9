package domain

import (
	"strings"
	"time"
)

// User is an account known to the credential store.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string

	// RecoveryToken and RecoveryTokenExpiresAt are set and cleared together.
	RecoveryToken          *string
	RecoveryTokenExpiresAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPassword reports whether the account can sign in on the password path.
// Accounts provisioned from a third-party login have no password until one is
// set through recovery.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// HasPendingRecovery reports whether a recovery token is outstanding.
func (u *User) HasPendingRecovery() bool {
	return u.RecoveryToken != nil && u.RecoveryTokenExpiresAt != nil
}

// Profile returns the client-safe view of the user.
func (u *User) Profile() *Profile {
	return &Profile{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

// Profile is what clients may see of a user. It never carries the password
// hash or recovery state.
type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayNameOrEmail picks the username for an account provisioned from a
// third-party identity: the display name when present, otherwise the local
// part of the email address.
func DisplayNameOrEmail(displayName, email string) string {
	if name := strings.TrimSpace(displayName); name != "" {
		return name
	}
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}
