package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/lumberjack/internal/game"
	"github.com/go-sql-driver/mysql"
)

// MariaConfig содержит настройки подключения к MariaDB
type MariaConfig struct {
	Host     string `yaml:"host"`     // например, localhost
	Port     int    `yaml:"port"`     // например, 3306
	Database string `yaml:"database"` // например, lumberjack
	Username string `yaml:"username"` // пользователь БД
	Password string `yaml:"password"` // пароль БД
}

// DSN формирует строку подключения для go-sql-driver/mysql.
func (c MariaConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.Username
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.ClientFoundRows = true // RowsAffected считает совпавшие строки
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// MariaUserRepo реализует UserRepository для MariaDB
type MariaUserRepo struct {
	db *sql.DB
}

// NewMariaUserRepo создает новое подключение к MariaDB и возвращает репозиторий
func NewMariaUserRepo(ctx context.Context, cfg MariaConfig) (*MariaUserRepo, error) {
	// Устанавливаем значения по умолчанию
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 3306
	}
	if cfg.Database == "" {
		cfg.Database = "lumberjack"
	}

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть подключение к MariaDB: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	repo := &MariaUserRepo{db: db}
	if err := repo.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицы: %w", err)
	}
	return repo, nil
}

func (m *MariaUserRepo) createTables(ctx context.Context) error {
	const createUsersTable = `
	CREATE TABLE IF NOT EXISTS lumberjack_users (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(50) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		authority CHAR(64) NOT NULL UNIQUE,
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		last_login TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`

	if _, err := m.db.ExecContext(ctx, createUsersTable); err != nil {
		return fmt.Errorf("не удалось создать таблицу lumberjack_users: %w", err)
	}
	return nil
}

func (m *MariaUserRepo) queryOne(ctx context.Context, where string, arg any) (*User, error) {
	query := `SELECT id, username, password_hash, authority, is_admin, created_at, last_login
			  FROM lumberjack_users WHERE ` + where

	var (
		user      User
		authority string
	)
	err := m.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&authority,
		&user.IsAdmin,
		&user.CreatedAt,
		&user.LastLogin,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении пользователя: %w", err)
	}
	if user.Authority, err = game.ParseIdentity(authority); err != nil {
		return nil, fmt.Errorf("пользователь %d: %w", user.ID, err)
	}
	return &user, nil
}

// GetUserByUsername получает пользователя по имени
func (m *MariaUserRepo) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return m.queryOne(ctx, "username = ?", normalize(username))
}

func (m *MariaUserRepo) GetUserByID(ctx context.Context, id uint64) (*User, error) {
	return m.queryOne(ctx, "id = ?", id)
}

// CreateUser создает нового пользователя
func (m *MariaUserRepo) CreateUser(ctx context.Context, username, passwordHash string, authority game.Identity, isAdmin bool) (*User, error) {
	lower := normalize(username)
	now := time.Now().UTC().Truncate(time.Second)

	const query = `INSERT INTO lumberjack_users (username, password_hash, authority, is_admin, created_at, last_login)
			  VALUES (?, ?, ?, ?, ?, ?)`

	result, err := m.db.ExecContext(ctx, query, lower, passwordHash, authority.String(), isAdmin, now, now)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 { // ER_DUP_ENTRY
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("ошибка при создании пользователя: %w", err)
	}

	userID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении ID пользователя: %w", err)
	}

	return &User{
		ID:           uint64(userID),
		Username:     lower,
		PasswordHash: passwordHash,
		Authority:    authority,
		IsAdmin:      isAdmin,
		CreatedAt:    now,
		LastLogin:    now,
	}, nil
}

// UpdateLastLogin обновляет время последнего входа пользователя
func (m *MariaUserRepo) UpdateLastLogin(ctx context.Context, id uint64, at time.Time) error {
	res, err := m.db.ExecContext(ctx, `UPDATE lumberjack_users SET last_login = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("ошибка при обновлении времени входа: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Close закрывает подключение к БД
func (m *MariaUserRepo) Close() error {
	return m.db.Close()
}
