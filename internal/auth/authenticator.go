package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/annel0/lumberjack/internal/game"
	"github.com/annel0/lumberjack/internal/logging"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 32
	minPasswordLength = 6
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidUsername    = errors.New("username must be 3-32 characters")
	ErrWeakPassword       = errors.New("password is too short")
)

// LoginResult - ответ на успешный вход.
type LoginResult struct {
	User      *User     `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Authenticator управляет учётными записями и выдачей токенов.
type Authenticator struct {
	repo   UserRepository
	tokens *TokenIssuer
	logger *logging.Logger
}

// NewAuthenticator создает новый аутентификатор
func NewAuthenticator(repo UserRepository, tokens *TokenIssuer, logger *logging.Logger) *Authenticator {
	if logger == nil {
		logger = logging.GetComponentLogger(logging.ComponentAuth)
	}
	return &Authenticator{repo: repo, tokens: tokens, logger: logger}
}

// Tokens возвращает выпускатель токенов.
func (a *Authenticator) Tokens() *TokenIssuer {
	return a.tokens
}

// Register создаёт учётную запись и генерирует для неё authority.
func (a *Authenticator) Register(ctx context.Context, username, password string) (*User, error) {
	name := normalize(username)
	if n := utf8.RuneCountInString(name); n < minUsernameLength || n > maxUsernameLength {
		return nil, ErrInvalidUsername
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	authority, err := game.NewIdentity()
	if err != nil {
		return nil, err
	}

	user, err := a.repo.CreateUser(ctx, name, hash, authority, false)
	if err != nil {
		return nil, err
	}
	a.logger.Info("👤 Зарегистрирован пользователь %s (ID: %d, authority %s)", user.Username, user.ID, user.Authority)
	return user, nil
}

// Login проверяет логин/пароль и выдаёт токен доступа.
func (a *Authenticator) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := a.repo.GetUserByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		a.logger.Warn("❌ Неудачная аутентификация для пользователя %s: нет такого пользователя", username)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(user.PasswordHash, password) {
		a.logger.Warn("❌ Неудачная аутентификация для пользователя %s: неверный пароль", username)
		return nil, ErrInvalidCredentials
	}

	token, err := a.tokens.IssueAccess(user)
	if err != nil {
		return nil, fmt.Errorf("ошибка подписи JWT токена: %w", err)
	}
	claims, err := a.tokens.ParseAccess(token)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := a.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		a.logger.Warn("⚠️ Не удалось обновить last_login для %s: %v", user.Username, err)
	} else {
		user.LastLogin = now
	}

	a.logger.Info("✅ Успешная аутентификация пользователя %s (ID: %d)", user.Username, user.ID)
	return &LoginResult{User: user, Token: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Authenticate проверяет токен доступа и существование пользователя.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*AccessClaims, error) {
	claims, err := a.tokens.ParseAccess(token)
	if err != nil {
		return nil, err
	}
	user, err := a.repo.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: user %d no longer exists", ErrInvalidToken, claims.UserID)
		}
		return nil, err
	}
	if user.Authority != claims.Authority {
		return nil, fmt.Errorf("%w: authority mismatch", ErrInvalidToken)
	}
	return claims, nil
}

// StartSession выдаёт делегированную сессию для authority из токена доступа.
func (a *Authenticator) StartSession(claims *AccessClaims, validity time.Duration) (string, *SessionClaims, error) {
	token, session, err := a.tokens.IssueSession(claims.Authority, validity)
	if err != nil {
		return "", nil, err
	}
	a.logger.Info("🎫 Сессия %s для %s, действительна до %s",
		session.Signer, claims.Username, session.ExpiresAt.Time.Format("2006-01-02 15:04:05"))
	return token, session, nil
}
