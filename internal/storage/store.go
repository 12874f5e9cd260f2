package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/annel0/lumberjack/internal/game"
)

var (
	ErrWorldNotFound   = errors.New("world not found")
	ErrPlayerNotFound  = errors.New("player not found")
	ErrPlayerExists    = errors.New("player already exists")
	ErrVersionConflict = errors.New("version conflict")
)

// Store определяет долговременное хранилище мира и игроков.
// Игроки адресуются по authority, мир - по фиксированному ключу.
type Store interface {
	// LoadWorld возвращает мир или ErrWorldNotFound.
	LoadWorld(ctx context.Context, key string) (*game.World, error)

	// LoadOrCreateWorld возвращает мир, создавая новый (поле из деревьев), если его нет.
	LoadOrCreateWorld(ctx context.Context, key string) (*game.World, error)

	// GetPlayer возвращает игрока или ErrPlayerNotFound.
	GetPlayer(ctx context.Context, authority game.Identity) (*game.PlayerState, error)

	// CreatePlayer сохраняет нового игрока. Повторное создание - ErrPlayerExists.
	CreatePlayer(ctx context.Context, player *game.PlayerState) error

	// Commit атомарно записывает результат действия: мир (если задан) и игрока (если задан).
	Commit(ctx context.Context, c Commit) error

	Close() error
}

// Commit - одна атомарная запись.
//
// Если World задан, хранилище проверяет, что сохранённая версия мира равна
// ExpectedVersion, и пишет World (его Version должна быть ExpectedVersion+1).
// При расхождении возвращается ErrVersionConflict и ничего не пишется.
// Player, если задан, должен уже существовать.
//
// ExpectedPlayer - запись игрока в том виде, в каком её прочитал вызывающий.
// Если сохранённые Energy или LastLogin уже другие, возвращается
// ErrVersionConflict. nil - запись без проверки (создание, служебные правки).
type Commit struct {
	WorldKey        string
	World           *game.World
	ExpectedVersion uint64
	Player          *game.PlayerState
	ExpectedPlayer  *game.PlayerState
}

func (c Commit) validate() error {
	if c.World != nil && c.World.Version != c.ExpectedVersion+1 {
		return errors.New("commit: world version must be expected version + 1")
	}
	if c.World == nil && c.Player == nil {
		return errors.New("commit: nothing to write")
	}
	if c.ExpectedPlayer != nil && (c.Player == nil || c.Player.Authority != c.ExpectedPlayer.Authority) {
		return errors.New("commit: expected player without matching player")
	}
	return nil
}

// checkPlayer сверяет сохранённую запись игрока с той, что прочитал вызывающий.
func (c Commit) checkPlayer(stored *game.PlayerState) error {
	if c.ExpectedPlayer == nil {
		return nil
	}
	if stored.Energy != c.ExpectedPlayer.Energy || stored.LastLogin != c.ExpectedPlayer.LastLogin {
		return fmt.Errorf("%w: player %s changed (energy %d, last_login %d)",
			ErrVersionConflict, stored.Authority, stored.Energy, stored.LastLogin)
	}
	return nil
}

func worldKeyOrDefault(key string) string {
	if key == "" {
		return game.DefaultWorldKey
	}
	return key
}
