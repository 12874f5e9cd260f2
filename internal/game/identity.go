package game

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// IdentitySize - размер идентификатора в байтах (как у публичного ключа ed25519).
const IdentitySize = 32

// Identity представляет идентификатор игрока, аватара или ключа сессии.
// Текстовое представление - 64 hex-символа в нижнем регистре.
type Identity [IdentitySize]byte

// NewIdentity генерирует случайный идентификатор.
func NewIdentity() (Identity, error) {
	var id Identity
	if _, err := rand.Read(id[:]); err != nil {
		return Identity{}, fmt.Errorf("не удалось сгенерировать identity: %w", err)
	}
	return id, nil
}

// ParseIdentity разбирает hex-представление идентификатора.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	if len(s) != IdentitySize*2 {
		return Identity{}, fmt.Errorf("%w: ожидалось %d hex-символов, получено %d", ErrInvalidIdentity, IdentitySize*2, len(s))
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	return id, nil
}

// MustParseIdentity как ParseIdentity, но паникует при ошибке. Для тестов и констант.
func MustParseIdentity(s string) Identity {
	id, err := ParseIdentity(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id Identity) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero сообщает, что идентификатор не задан.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// SessionCredential - делегированное право подписывать действия за игрока
// в течение ограниченного времени.
type SessionCredential struct {
	Signer     Identity `json:"signer"`      // Временный ключ, которым подписываются запросы
	Authority  Identity `json:"authority"`   // Владелец сессии (authority игрока)
	ValidUntil int64    `json:"valid_until"` // Unix-время окончания действия
}
