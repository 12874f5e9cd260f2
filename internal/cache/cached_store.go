package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/annel0/lumberjack/internal/game"
	"github.com/annel0/lumberjack/internal/logging"
	"github.com/annel0/lumberjack/internal/storage"
)

// CachedStore оборачивает storage.Store:
//   - игроки читаются через CacheRepo (read-through), после коммита значение в кеше обновляется;
//   - мир держится локальной копией в памяти узла, другие узлы сбрасывают свою копию
//     по уведомлению инвалидатора.
//
// Запись всегда идёт в нижележащее хранилище, кеш никогда не является источником истины.
type CachedStore struct {
	backend     storage.Store
	cache       CacheRepo
	invalidator CacheInvalidator
	codec       *storage.Codec
	ttl         time.Duration

	mu     sync.RWMutex
	worlds map[string]*game.World
}

// NewCachedStore создаёт кеширующую обёртку. invalidator может быть nil (один узел).
func NewCachedStore(backend storage.Store, cache CacheRepo, invalidator CacheInvalidator, ttl time.Duration) *CachedStore {
	return &CachedStore{
		backend:     backend,
		cache:       cache,
		invalidator: invalidator,
		codec:       storage.NewPlainCodec(),
		ttl:         ttl,
		worlds:      make(map[string]*game.World),
	}
}

// Start подписывается на уведомления об инвалидации от других узлов.
func (s *CachedStore) Start(ctx context.Context) error {
	if s.invalidator == nil {
		return nil
	}
	return s.invalidator.SubscribeInvalidations(ctx, s.handleInvalidation)
}

func (s *CachedStore) handleInvalidation(key string) error {
	switch {
	case strings.HasPrefix(key, worldKeyPrefix):
		s.dropWorld(strings.TrimPrefix(key, worldKeyPrefix))
	case strings.HasPrefix(key, playerKeyPrefix):
		return s.cache.Delete(context.Background(), key)
	}
	return nil
}

func (s *CachedStore) cachedWorld(key string) (*game.World, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.worlds[normalizeWorldKey(key)]
	if !ok {
		return nil, false
	}
	return w.Clone(), true
}

func (s *CachedStore) rememberWorld(key string, w *game.World) {
	s.mu.Lock()
	s.worlds[normalizeWorldKey(key)] = w.Clone()
	s.mu.Unlock()
}

func (s *CachedStore) dropWorld(key string) {
	s.mu.Lock()
	delete(s.worlds, normalizeWorldKey(key))
	s.mu.Unlock()
}

func (s *CachedStore) LoadWorld(ctx context.Context, key string) (*game.World, error) {
	if w, ok := s.cachedWorld(key); ok {
		return w, nil
	}
	w, err := s.backend.LoadWorld(ctx, key)
	if err != nil {
		return nil, err
	}
	s.rememberWorld(key, w)
	return w, nil
}

func (s *CachedStore) LoadOrCreateWorld(ctx context.Context, key string) (*game.World, error) {
	if w, ok := s.cachedWorld(key); ok {
		return w, nil
	}
	w, err := s.backend.LoadOrCreateWorld(ctx, key)
	if err != nil {
		return nil, err
	}
	s.rememberWorld(key, w)
	return w, nil
}

func (s *CachedStore) GetPlayer(ctx context.Context, authority game.Identity) (*game.PlayerState, error) {
	key := playerCacheKey(authority)

	data, err := s.cache.Get(ctx, key)
	if err == nil {
		p, derr := s.codec.DecodePlayer(data)
		if derr == nil {
			return p, nil
		}
		logging.Warn("Повреждённая запись игрока в кеше %s: %v", key, derr)
	} else if !IsCacheMiss(err) {
		logging.Warn("Кеш недоступен, читаем из хранилища: %v", err)
	}

	p, err := s.backend.GetPlayer(ctx, authority)
	if err != nil {
		return nil, err
	}
	s.storePlayer(ctx, p)
	return p, nil
}

func (s *CachedStore) storePlayer(ctx context.Context, p *game.PlayerState) {
	data, err := s.codec.EncodePlayer(p)
	if err != nil {
		logging.Debug("Не удалось закодировать игрока для кеша: %v", err)
		return
	}
	if err := s.cache.Set(ctx, playerCacheKey(p.Authority), data, s.ttl); err != nil {
		logging.Debug("Не удалось положить игрока в кеш: %v", err)
	}
}

func (s *CachedStore) CreatePlayer(ctx context.Context, p *game.PlayerState) error {
	if err := s.backend.CreatePlayer(ctx, p); err != nil {
		return err
	}
	s.storePlayer(ctx, p)
	return nil
}

func (s *CachedStore) Commit(ctx context.Context, c storage.Commit) error {
	err := s.backend.Commit(ctx, c)
	if err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			// Локальная копия устарела
			s.dropWorld(c.WorldKey)
		}
		if c.Player != nil {
			if derr := s.cache.Delete(ctx, playerCacheKey(c.Player.Authority)); derr != nil {
				logging.Debug("Не удалось сбросить игрока из кеша: %v", derr)
			}
		}
		return err
	}

	if c.World != nil {
		s.rememberWorld(c.WorldKey, c.World)
		if s.invalidator != nil {
			if err := s.invalidator.PublishInvalidation(ctx, worldCacheKey(c.WorldKey)); err != nil {
				logging.Warn("Не удалось разослать инвалидацию мира: %v", err)
			}
		}
	}
	if c.Player != nil {
		s.storePlayer(ctx, c.Player)
	}
	return nil
}

func (s *CachedStore) Close() error {
	var errs []error
	if s.invalidator != nil {
		errs = append(errs, s.invalidator.Close())
	}
	errs = append(errs, s.cache.Close(), s.backend.Close())
	return errors.Join(errs...)
}
