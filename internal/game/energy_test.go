package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegenerateEnergy_Scenarios(t *testing.T) {
	const now int64 = 1_700_000_000

	tests := []struct {
		name          string
		energy        uint64
		lastLogin     int64
		wantEnergy    uint64
		wantLastLogin int64
		wantGranted   uint64
	}{
		{"десять интервалов до максимума", 0, now - 600, 10, now, 10},
		{"два интервала с остатком", 5, now - 125, 7, now - 5, 2},
		{"неполный интервал", 3, now - 59, 3, now - 59, 0},
		{"ровно один интервал", 3, now - 60, 4, now, 1},
		{"уже максимум", 10, now - 1000, 10, now, 0},
		{"огромный промежуток", 0, 0, 10, now, 10},
		{"время в будущем", 4, now + 100, 4, now + 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &PlayerState{Energy: tt.energy, LastLogin: tt.lastLogin}
			granted := RegenerateEnergy(p, now)
			assert.Equal(t, tt.wantEnergy, p.Energy, "энергия")
			assert.Equal(t, tt.wantLastLogin, p.LastLogin, "last_login")
			assert.Equal(t, tt.wantGranted, granted)
		})
	}
}

func TestRegenerateEnergy_Idempotent(t *testing.T) {
	for elapsed := int64(0); elapsed < 1000; elapsed += 7 {
		for energy := uint64(0); energy <= MaxEnergy; energy++ {
			p := &PlayerState{Energy: energy, LastLogin: 10_000}
			now := 10_000 + elapsed
			RegenerateEnergy(p, now)
			first := *p

			granted := RegenerateEnergy(p, now)
			assert.Zero(t, granted)
			assert.Equal(t, first, *p, "Повторный вызов с тем же now ничего не меняет")
		}
	}
}

func TestRegenerateEnergy_BoundAndMonotonic(t *testing.T) {
	for elapsed := int64(0); elapsed < 2000; elapsed += 13 {
		for energy := uint64(0); energy <= MaxEnergy; energy++ {
			p := &PlayerState{Energy: energy, LastLogin: 500}
			RegenerateEnergy(p, 500+elapsed)
			assert.GreaterOrEqual(t, p.Energy, energy, "Энергия не убывает")
			assert.LessOrEqual(t, p.Energy, MaxEnergy, "Энергия не превышает максимум")
			if p.Energy == MaxEnergy {
				assert.Equal(t, 500+elapsed, p.LastLogin, "На максимуме остаток сбрасывается")
			} else {
				assert.Less(t, 500+elapsed-p.LastLogin, RefillInterval, "Остаток меньше интервала")
			}
		}
	}
}

func TestPlayer_SpendEnergy(t *testing.T) {
	p, err := NewPlayer(testPlayer, testAvatar, "alice", 42)
	assert.NoError(t, err)
	assert.Equal(t, MaxEnergy, p.Energy)
	assert.Equal(t, int64(42), p.LastLogin)

	for i := 0; i < int(MaxEnergy); i++ {
		assert.NoError(t, p.SpendEnergy())
	}
	assert.ErrorIs(t, p.SpendEnergy(), ErrNotEnoughEnergy)
	assert.Zero(t, p.Energy)
}

func TestNewPlayer_Validation(t *testing.T) {
	_, err := NewPlayer(Identity{}, testAvatar, "bob", 0)
	assert.ErrorIs(t, err, ErrInvalidIdentity)

	_, err = NewPlayer(testPlayer, testAvatar, "abcdefghijklmnopqrstuvwxyz0123456789", 0)
	assert.ErrorIs(t, err, ErrInvalidName)
}
