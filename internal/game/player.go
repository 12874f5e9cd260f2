package game

import "fmt"

const (
	// MaxEnergy - верхняя граница энергии игрока.
	MaxEnergy uint64 = 10
	// MaxNameLength - максимальная длина имени в байтах (фиксированная раскладка записи).
	MaxNameLength = 32
)

// PlayerState - состояние одного игрока.
type PlayerState struct {
	Authority Identity `json:"authority"`
	Avatar    Identity `json:"avatar"`
	Name      string   `json:"name"`
	Level     uint8    `json:"level"`
	XP        uint64   `json:"xp"`
	Energy    uint64   `json:"energy"`
	LastLogin int64    `json:"last_login"`
}

// NewPlayer создаёт игрока с полной энергией.
func NewPlayer(authority, avatar Identity, name string, now int64) (*PlayerState, error) {
	if authority.IsZero() {
		return nil, fmt.Errorf("%w: пустой authority", ErrInvalidIdentity)
	}
	if len(name) > MaxNameLength {
		return nil, fmt.Errorf("%w: %d байт, максимум %d", ErrInvalidName, len(name), MaxNameLength)
	}
	return &PlayerState{
		Authority: authority,
		Avatar:    avatar,
		Name:      name,
		Energy:    MaxEnergy,
		LastLogin: now,
	}, nil
}

// SpendEnergy списывает одну единицу энергии.
func (p *PlayerState) SpendEnergy() error {
	if p.Energy == 0 {
		return ErrNotEnoughEnergy
	}
	p.Energy--
	return nil
}
