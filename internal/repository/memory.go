package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sumire/arena/internal/domain"
)

// MemoryUserRepository is an in-process user store with the same
// uniqueness rules as the users table. Data is lost on restart.
type MemoryUserRepository struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]domain.UserRecord
}

// NewMemoryUserRepository creates an empty MemoryUserRepository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[int64]domain.UserRecord)}
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id int64) (*domain.UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (*domain.UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.find(domain.AuthProviderLocal, func(u domain.UserRecord) bool { return u.Email == email }); ok {
		return &u, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MemoryUserRepository) Create(_ context.Context, user domain.UserRecord) (*domain.UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.find(domain.AuthProviderLocal, func(u domain.UserRecord) bool { return u.Email == user.Email }); ok {
		return nil, fmt.Errorf("%w: email already registered", domain.ErrConflict)
	}
	return r.insert(user), nil
}

func (r *MemoryUserRepository) Upsert(_ context.Context, user domain.UserRecord) (*domain.UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.find(user.Provider, func(u domain.UserRecord) bool { return u.ProviderID == user.ProviderID })
	if !ok {
		return r.insert(user), nil
	}
	existing.Email = user.Email
	existing.DisplayName = user.DisplayName
	existing.AvatarURL = user.AvatarURL
	existing.UpdatedAt = time.Now()
	r.users[existing.ID] = existing
	return &existing, nil
}

func (r *MemoryUserRepository) SetLinkedAccount(_ context.Context, id int64, username, avatarURL string, verified bool) (*domain.UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if verified {
		for _, other := range r.users {
			if other.ID != id && other.LinkVerified && other.ExternalUsername != nil &&
				strings.EqualFold(*other.ExternalUsername, username) {
				return nil, fmt.Errorf("%w: external account already linked", domain.ErrConflict)
			}
		}
	}

	u.ExternalUsername = &username
	u.ExternalAvatarURL = nil
	if avatarURL != "" {
		u.ExternalAvatarURL = &avatarURL
	}
	u.LinkVerified = verified
	u.UpdatedAt = time.Now()
	r.users[id] = u
	return &u, nil
}

func (r *MemoryUserRepository) find(provider domain.AuthProvider, match func(domain.UserRecord) bool) (domain.UserRecord, bool) {
	for _, u := range r.users {
		if u.Provider == provider && match(u) {
			return u, true
		}
	}
	return domain.UserRecord{}, false
}

func (r *MemoryUserRepository) insert(user domain.UserRecord) *domain.UserRecord {
	r.nextID++
	now := time.Now()
	user.ID = r.nextID
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = user
	return &user
}
