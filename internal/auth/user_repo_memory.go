package auth

import (
	"context"
	"sync"
	"time"

	"github.com/annel0/lumberjack/internal/game"
)

// MemoryUserRepo is a threadsafe in-memory storage useful for tests & single-instance servers.
// NOT suitable for production without persistence.
// ID counter starts from 1.
type MemoryUserRepo struct {
	mu     sync.RWMutex
	users  map[string]*User // key = normalize(username)
	byID   map[uint64]*User
	nextID uint64
}

// NewMemoryUserRepo returns an empty repository.
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		users:  make(map[string]*User),
		byID:   make(map[uint64]*User),
		nextID: 1,
	}
}

// GetUserByUsername retrieves user by case-insensitive username.
func (r *MemoryUserRepo) GetUserByUsername(_ context.Context, username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[normalize(username)]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := *user
	return &u, nil
}

func (r *MemoryUserRepo) GetUserByID(_ context.Context, id uint64) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := *user
	return &u, nil
}

// CreateUser inserts a new user if username not present.
func (r *MemoryUserRepo) CreateUser(_ context.Context, username, passwordHash string, authority game.Identity, isAdmin bool) (*User, error) {
	key := normalize(username)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[key]; exists {
		return nil, ErrUserExists
	}

	now := time.Now()
	user := &User{
		ID:           r.nextID,
		Username:     key,
		PasswordHash: passwordHash,
		Authority:    authority,
		CreatedAt:    now,
		LastLogin:    now,
		IsAdmin:      isAdmin,
	}
	r.nextID++
	r.users[key] = user
	r.byID[user.ID] = user

	u := *user
	return &u, nil
}

func (r *MemoryUserRepo) UpdateLastLogin(_ context.Context, id uint64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	user.LastLogin = at
	return nil
}

func (r *MemoryUserRepo) Close() error {
	return nil
}
