package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/annel0/lumberjack/internal/game"
)

// MemoryStore реализует Store в памяти.
// Используется для тестов и локального запуска без БД.
// ВНИМАНИЕ: Данные теряются при перезапуске сервера!
type MemoryStore struct {
	mu      sync.RWMutex
	worlds  map[string]game.World
	players map[game.Identity]game.PlayerState
}

// NewMemoryStore создает пустое хранилище в памяти.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		worlds:  make(map[string]game.World),
		players: make(map[game.Identity]game.PlayerState),
	}
}

func (s *MemoryStore) LoadWorld(ctx context.Context, key string) (*game.World, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.worlds[worldKeyOrDefault(key)]
	if !ok {
		return nil, ErrWorldNotFound
	}
	return &w, nil
}

func (s *MemoryStore) LoadOrCreateWorld(ctx context.Context, key string) (*game.World, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key = worldKeyOrDefault(key)
	if w, ok := s.worlds[key]; ok {
		return &w, nil
	}
	w := *game.NewWorld()
	s.worlds[key] = w
	return &w, nil
}

func (s *MemoryStore) GetPlayer(ctx context.Context, authority game.Identity) (*game.PlayerState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.players[authority]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	return &p, nil
}

func (s *MemoryStore) CreatePlayer(ctx context.Context, player *game.PlayerState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.players[player.Authority]; exists {
		return fmt.Errorf("%w: %s", ErrPlayerExists, player.Authority)
	}
	s.players[player.Authority] = *player
	return nil
}

func (s *MemoryStore) Commit(ctx context.Context, c Commit) error {
	if err := c.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Сначала все проверки, потом запись
	key := worldKeyOrDefault(c.WorldKey)
	if c.World != nil {
		stored, ok := s.worlds[key]
		if !ok {
			return ErrWorldNotFound
		}
		if stored.Version != c.ExpectedVersion {
			return fmt.Errorf("%w: stored %d, expected %d", ErrVersionConflict, stored.Version, c.ExpectedVersion)
		}
	}
	if c.Player != nil {
		stored, ok := s.players[c.Player.Authority]
		if !ok {
			return ErrPlayerNotFound
		}
		if err := c.checkPlayer(&stored); err != nil {
			return err
		}
	}

	if c.World != nil {
		s.worlds[key] = *c.World
	}
	if c.Player != nil {
		s.players[c.Player.Authority] = *c.Player
	}
	return nil
}

// PlayerCount возвращает количество игроков (для отладки и метрик).
func (s *MemoryStore) PlayerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}

func (s *MemoryStore) Close() error {
	return nil
}
