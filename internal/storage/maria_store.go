package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/annel0/lumberjack/internal/game"
	"github.com/go-sql-driver/mysql"
)

// MariaStore реализует Store для MariaDB/MySQL.
// Мир хранится одной строкой lumberjack_worlds (версия + бинарная раскладка),
// игроки - в lumberjack_players.
type MariaStore struct {
	db    *sql.DB
	codec *Codec
}

// NewMariaStore подключается к базе и создаёт таблицы, если их нет.
//
// Параметры:
//
//	dsn - строка подключения к базе данных (user:pass@tcp(host:port)/dbname)
func NewMariaStore(dsn string) (*MariaStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	// Проверяем соединение
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	codec, _ := NewCodec(false)
	s := &MariaStore{db: db, codec: codec}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицы: %w", err)
	}

	return s, nil
}

func (s *MariaStore) createTables() error {
	queries := []string{`
		CREATE TABLE IF NOT EXISTS lumberjack_worlds (
			world_key  VARCHAR(64)      PRIMARY KEY,
			version    BIGINT UNSIGNED  NOT NULL,
			data       BLOB             NOT NULL,
			updated_at TIMESTAMP        DEFAULT CURRENT_TIMESTAMP
			           ON UPDATE        CURRENT_TIMESTAMP
		) ENGINE=InnoDB`, `
		CREATE TABLE IF NOT EXISTS lumberjack_players (
			authority  BINARY(32)       PRIMARY KEY,
			name       VARCHAR(32)      NOT NULL,
			energy     TINYINT UNSIGNED NOT NULL,
			last_login BIGINT           NOT NULL,
			data       BLOB             NOT NULL,
			updated_at TIMESTAMP        DEFAULT CURRENT_TIMESTAMP
			           ON UPDATE        CURRENT_TIMESTAMP,
			INDEX idx_last_login (last_login)
		) ENGINE=InnoDB`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *MariaStore) LoadWorld(ctx context.Context, key string) (*game.World, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM lumberjack_worlds WHERE world_key = ?`, worldKeyOrDefault(key)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWorldNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки мира %q: %w", key, err)
	}
	return s.codec.DecodeWorld(data)
}

func (s *MariaStore) LoadOrCreateWorld(ctx context.Context, key string) (*game.World, error) {
	w, err := s.LoadWorld(ctx, key)
	if !errors.Is(err, ErrWorldNotFound) {
		return w, err
	}

	w = game.NewWorld()
	data, err := s.codec.EncodeWorld(w)
	if err != nil {
		return nil, err
	}
	// INSERT IGNORE: при гонке побеждает первый, затем перечитываем
	_, err = s.db.ExecContext(ctx,
		`INSERT IGNORE INTO lumberjack_worlds (world_key, version, data) VALUES (?, ?, ?)`,
		worldKeyOrDefault(key), w.Version, data)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания мира %q: %w", key, err)
	}
	return s.LoadWorld(ctx, key)
}

func (s *MariaStore) GetPlayer(ctx context.Context, authority game.Identity) (*game.PlayerState, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM lumberjack_players WHERE authority = ?`, authority[:]).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки игрока %s: %w", authority, err)
	}
	return s.codec.DecodePlayer(data)
}

func (s *MariaStore) CreatePlayer(ctx context.Context, p *game.PlayerState) error {
	data, err := s.codec.EncodePlayer(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lumberjack_players (authority, name, energy, last_login, data) VALUES (?, ?, ?, ?, ?)`,
		p.Authority[:], p.Name, p.Energy, p.LastLogin, data)

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 { // ER_DUP_ENTRY
		return fmt.Errorf("%w: %s", ErrPlayerExists, p.Authority)
	}
	if err != nil {
		return fmt.Errorf("ошибка создания игрока %s: %w", p.Authority, err)
	}
	return nil
}

// Commit выполняет проверку версии и запись в одной транзакции.
func (s *MariaStore) Commit(ctx context.Context, c Commit) error {
	if err := c.validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback() // Откат в случае ошибки

	if c.World != nil {
		data, err := s.codec.EncodeWorld(c.World)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE lumberjack_worlds SET version = ?, data = ? WHERE world_key = ? AND version = ?`,
			c.World.Version, data, worldKeyOrDefault(c.WorldKey), c.ExpectedVersion)
		if err != nil {
			return fmt.Errorf("ошибка сохранения мира: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("ошибка получения количества затронутых строк: %w", err)
		} else if n == 0 {
			return ErrVersionConflict
		}
	}

	if c.Player != nil {
		p := c.Player
		stored := &game.PlayerState{Authority: p.Authority}
		err := tx.QueryRowContext(ctx,
			`SELECT energy, last_login FROM lumberjack_players WHERE authority = ? FOR UPDATE`,
			p.Authority[:]).Scan(&stored.Energy, &stored.LastLogin)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPlayerNotFound
		}
		if err != nil {
			return fmt.Errorf("ошибка чтения игрока %s: %w", p.Authority, err)
		}
		if err := c.checkPlayer(stored); err != nil {
			return err
		}

		data, err := s.codec.EncodePlayer(p)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE lumberjack_players SET name = ?, energy = ?, last_login = ?, data = ? WHERE authority = ?`,
			p.Name, p.Energy, p.LastLogin, data, p.Authority[:]); err != nil {
			return fmt.Errorf("ошибка сохранения игрока %s: %w", p.Authority, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

func (s *MariaStore) Close() error {
	return s.db.Close()
}
