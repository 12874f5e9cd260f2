package auth

import (
	"time"

	"github.com/annel0/lumberjack/internal/game"
	"golang.org/x/crypto/bcrypt"
)

// User - учётная запись игрока или администратора.
// Authority генерируется при регистрации и служит ключом PlayerState.
type User struct {
	ID           uint64        `json:"id"`
	Username     string        `json:"username"` // всегда в нижнем регистре
	PasswordHash string        `json:"-"`        // bcrypt, 60 символов
	Authority    game.Identity `json:"authority"`
	CreatedAt    time.Time     `json:"created_at"`
	LastLogin    time.Time     `json:"last_login"`
	IsAdmin      bool          `json:"is_admin"`
}

// HashPassword returns a bcrypt hash of the password using DefaultCost.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// CheckPassword compares a bcrypt hashed password with its possible plaintext equivalent.
func CheckPassword(hash string, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
