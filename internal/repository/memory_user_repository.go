package repository

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/storefront/internal/model"
)

// MemoryUserRepo keeps users in process memory. It backs STORE_DRIVER=memory
// for local development and the package tests of the pipeline.
type MemoryUserRepo struct {
	mu      sync.RWMutex
	nextID  uint64
	byID    map[string]model.User
	byEmail map[string]string
}

func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		byID:    make(map[string]model.User),
		byEmail: make(map[string]string),
	}
}

func (r *MemoryUserRepo) Create(_ context.Context, u *model.User) error {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[email]; ok {
		return ErrEmailExists
	}
	r.nextID++
	now := time.Now().UTC()
	u.ID = strconv.FormatUint(r.nextID, 10)
	u.Email = email
	u.CreatedAt, u.UpdatedAt = now, now
	r.byID[u.ID] = *u
	r.byEmail[email] = u.ID
	return nil
}

func (r *MemoryUserRepo) FindByEmail(_ context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryUserRepo) FindByID(_ context.Context, id string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	return u, nil
}

func (r *MemoryUserRepo) FindByResetToken(_ context.Context, token string, now time.Time) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.byID {
		if u.HasLiveResetToken(token, now) {
			return u, nil
		}
	}
	return model.User{}, ErrUserNotFound
}

func (r *MemoryUserRepo) SetResetToken(_ context.Context, id, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	exp := expiresAt.UTC()
	u.ResetToken = token
	u.ResetTokenExpiresAt = &exp
	u.UpdatedAt = time.Now().UTC()
	r.byID[id] = u
	return nil
}

func (r *MemoryUserRepo) ConsumeResetToken(_ context.Context, id, token string, now time.Time, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok || !u.HasLiveResetToken(token, now) {
		return ErrResetTokenInvalid
	}
	u.PasswordHash = passwordHash
	u.ResetToken = ""
	u.ResetTokenExpiresAt = nil
	u.UpdatedAt = time.Now().UTC()
	r.byID[id] = u
	return nil
}

// Delete removes a user. Sessions that still reference it become stale.
func (r *MemoryUserRepo) Delete(_ context.Context, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		delete(r.byEmail, u.Email)
		delete(r.byID, id)
	}
}
