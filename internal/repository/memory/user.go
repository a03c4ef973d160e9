package memory

import (
	"context"
	"sync"
	"time"

	"github.com/srivardhan-kondu/EmpathyAI/internal/domain"
)

// UserRepository is an in-process credential store for development and
// tests. It keeps the same uniqueness and compare-and-swap guarantees as the
// Postgres store.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	byEmail map[string]string
}

// NewUserRepository creates an empty store.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
	}
}

func (r *UserRepository) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[u.Email]; taken {
		return domain.ErrDuplicateEmail
	}
	r.byID[u.ID] = clone(u)
	r.byEmail[u.Email] = u.ID
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return clone(u), nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return clone(r.byID[id]), nil
}

func (r *UserRepository) SetRecoveryToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.RecoveryToken = &token
	u.RecoveryTokenExpiresAt = &expiresAt
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *UserRepository) ResetPassword(_ context.Context, userID, token, passwordHash string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[userID]
	if !ok || !u.HasPendingRecovery() || *u.RecoveryToken != token || now.After(*u.RecoveryTokenExpiresAt) {
		return domain.ErrTokenMismatch
	}
	u.PasswordHash = passwordHash
	u.RecoveryToken = nil
	u.RecoveryTokenExpiresAt = nil
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *UserRepository) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// clone copies u so callers never share the stored record.
func clone(u *domain.User) *domain.User {
	c := *u
	if u.RecoveryToken != nil {
		token := *u.RecoveryToken
		c.RecoveryToken = &token
	}
	if u.RecoveryTokenExpiresAt != nil {
		expires := *u.RecoveryTokenExpiresAt
		c.RecoveryTokenExpiresAt = &expires
	}
	return &c
}
