package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/annel0/lumberjack/internal/game"
)

// UserRepository defines operations for user persistence and retrieval.
// Реализации: MemoryUserRepo, MongoUserRepo, MariaUserRepo.
type UserRepository interface {
	// GetUserByUsername returns a user by username (case-insensitive).
	// If the user is not found, (nil, ErrUserNotFound) is returned.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// GetUserByID returns a user by ID or ErrUserNotFound.
	GetUserByID(ctx context.Context, id uint64) (*User, error)

	// CreateUser stores a new user. Caller passes a bcrypt hash.
	// Usernames are unique, conflict returns ErrUserExists.
	CreateUser(ctx context.Context, username, passwordHash string, authority game.Identity, isAdmin bool) (*User, error)

	// UpdateLastLogin обновляет время последнего входа.
	UpdateLastLogin(ctx context.Context, id uint64, at time.Time) error

	Close() error
}

// Domain-level errors returned by the repository.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// Helper to normalise usernames.
func normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
