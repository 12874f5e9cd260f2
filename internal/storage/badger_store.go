package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/annel0/lumberjack/internal/game"
	"github.com/dgraph-io/badger/v3"
)

// BadgerStore хранит мир и игроков во встроенной BadgerDB.
// Ключи: "world:<key>" (мир, сжатый zstd) и "player:<authority hex>".
type BadgerStore struct {
	db      *badger.DB
	dbPath  string
	codec   *Codec
	mutex   sync.RWMutex
	isReady bool
}

// NewBadgerStore открывает (или создаёт) базу в dataPath/world.
func NewBadgerStore(dataPath string, compress bool) (*BadgerStore, error) {
	dbPath := filepath.Join(dataPath, "world")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	codec, err := NewCodec(compress)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BadgerStore{
		db:      db,
		dbPath:  dbPath,
		codec:   codec,
		isReady: true,
	}, nil
}

func worldDBKey(key string) []byte {
	return []byte("world:" + worldKeyOrDefault(key))
}

func playerDBKey(authority game.Identity) []byte {
	return []byte("player:" + authority.String())
}

// Close закрывает хранилище данных
func (s *BadgerStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isReady {
		return nil
	}

	s.isReady = false
	s.codec.Close()
	return s.db.Close()
}

func (s *BadgerStore) ready() error {
	if !s.isReady {
		return fmt.Errorf("хранилище не готово")
	}
	return nil
}

func (s *BadgerStore) readWorld(txn *badger.Txn, key string) (*game.World, error) {
	item, err := txn.Get(worldDBKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrWorldNotFound
	}
	if err != nil {
		return nil, err
	}
	var w *game.World
	err = item.Value(func(val []byte) error {
		var derr error
		w, derr = s.codec.DecodeWorld(val)
		return derr
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения мира %q: %w", key, err)
	}
	return w, nil
}

func (s *BadgerStore) readPlayer(txn *badger.Txn, authority game.Identity) (*game.PlayerState, error) {
	item, err := txn.Get(playerDBKey(authority))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, err
	}
	var p *game.PlayerState
	err = item.Value(func(val []byte) error {
		var derr error
		p, derr = s.codec.DecodePlayer(val)
		return derr
	})
	return p, err
}

func (s *BadgerStore) LoadWorld(ctx context.Context, key string) (*game.World, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}

	var w *game.World
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		w, err = s.readWorld(txn, key)
		return err
	})
	return w, err
}

func (s *BadgerStore) LoadOrCreateWorld(ctx context.Context, key string) (*game.World, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}

	var w *game.World
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		w, err = s.readWorld(txn, key)
		if !errors.Is(err, ErrWorldNotFound) {
			return err
		}
		w = game.NewWorld()
		data, err := s.codec.EncodeWorld(w)
		if err != nil {
			return err
		}
		return txn.Set(worldDBKey(key), data)
	})
	if errors.Is(err, badger.ErrConflict) {
		// Параллельно мир создал кто-то другой - читаем его
		return s.LoadWorld(ctx, key)
	}
	return w, err
}

func (s *BadgerStore) GetPlayer(ctx context.Context, authority game.Identity) (*game.PlayerState, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}

	var p *game.PlayerState
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		p, err = s.readPlayer(txn, authority)
		return err
	})
	return p, err
}

func (s *BadgerStore) CreatePlayer(ctx context.Context, player *game.PlayerState) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if err := s.ready(); err != nil {
		return err
	}

	data, err := s.codec.EncodePlayer(player)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(playerDBKey(player.Authority))
		if err == nil {
			return fmt.Errorf("%w: %s", ErrPlayerExists, player.Authority)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(playerDBKey(player.Authority), data)
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %s", ErrPlayerExists, player.Authority)
	}
	return err
}

// Commit пишет мир и игрока в одной транзакции Badger.
func (s *BadgerStore) Commit(ctx context.Context, c Commit) error {
	if err := c.validate(); err != nil {
		return err
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if err := s.ready(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if c.World != nil {
			stored, err := s.readWorld(txn, c.WorldKey)
			if err != nil {
				return err
			}
			if stored.Version != c.ExpectedVersion {
				return fmt.Errorf("%w: stored %d, expected %d", ErrVersionConflict, stored.Version, c.ExpectedVersion)
			}
			data, err := s.codec.EncodeWorld(c.World)
			if err != nil {
				return err
			}
			if err := txn.Set(worldDBKey(c.WorldKey), data); err != nil {
				return err
			}
		}

		if c.Player != nil {
			// Чтение попадает в набор конфликтов транзакции badger
			stored, err := s.readPlayer(txn, c.Player.Authority)
			if err != nil {
				return err
			}
			if err := c.checkPlayer(stored); err != nil {
				return err
			}
			data, err := s.codec.EncodePlayer(c.Player)
			if err != nil {
				return err
			}
			if err := txn.Set(playerDBKey(c.Player.Authority), data); err != nil {
				return err
			}
		}
		return nil
	})

	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %v", ErrVersionConflict, err)
	}
	if err != nil {
		return fmt.Errorf("ошибка коммита в BadgerDB: %w", err)
	}
	return nil
}

// PlayerCount считает игроков по префиксу ключа.
func (s *BadgerStore) PlayerCount() (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte("player:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}
