package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/annel0/lumberjack/internal/game"
	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer       = "lumberjack"
	audienceAccess    = "access"
	audienceSession   = "session"
	minSecretLength   = 32
	DefaultAccessTTL  = 24 * time.Hour
	DefaultSessionTTL = 23 * time.Hour
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrSecretTooShort = errors.New("secret key must be at least 32 bytes")
)

// AccessClaims - claims токена доступа, выдаваемого при входе.
type AccessClaims struct {
	UserID    uint64        `json:"user_id"`
	Username  string        `json:"username"`
	Authority game.Identity `json:"authority"`
	IsAdmin   bool          `json:"is_admin"`
	jwt.RegisteredClaims
}

// SessionClaims - claims сессионного токена: временный ключ Signer
// действует от имени Authority до ExpiresAt.
type SessionClaims struct {
	Authority game.Identity `json:"authority"`
	Signer    game.Identity `json:"signer"`
	jwt.RegisteredClaims
}

// Credential возвращает сессию в виде, понятном Authorizer.
func (c *SessionClaims) Credential() *game.SessionCredential {
	cred := &game.SessionCredential{Signer: c.Signer, Authority: c.Authority}
	if c.ExpiresAt != nil {
		cred.ValidUntil = c.ExpiresAt.Unix()
	}
	return cred
}

// TokenIssuer выпускает и проверяет HS256 токены.
type TokenIssuer struct {
	secret             []byte
	accessTTL          time.Duration
	sessionMaxValidity time.Duration
	now                func() time.Time
}

// NewTokenIssuer создаёт выпускатель токенов. Пустой secret заменяется случайным:
// токены тогда не переживут перезапуск сервера.
func NewTokenIssuer(secret []byte, accessTTL, sessionMaxValidity time.Duration) (*TokenIssuer, error) {
	if len(secret) == 0 {
		secret = make([]byte, minSecretLength)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
	}
	if len(secret) < minSecretLength {
		return nil, ErrSecretTooShort
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if sessionMaxValidity <= 0 {
		sessionMaxValidity = DefaultSessionTTL
	}
	return &TokenIssuer{
		secret:             secret,
		accessTTL:          accessTTL,
		sessionMaxValidity: sessionMaxValidity,
		now:                time.Now,
	}, nil
}

// SessionMaxValidity - верхняя граница срока сессии.
func (ti *TokenIssuer) SessionMaxValidity() time.Duration {
	return ti.sessionMaxValidity
}

func (ti *TokenIssuer) registered(audience, subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := ti.now()
	return jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    tokenIssuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{audience},
	}
}

// IssueAccess creates a secure JWT token for the given user.
func (ti *TokenIssuer) IssueAccess(user *User) (string, error) {
	claims := &AccessClaims{
		UserID:           user.ID,
		Username:         user.Username,
		Authority:        user.Authority,
		IsAdmin:          user.IsAdmin,
		RegisteredClaims: ti.registered(audienceAccess, strconv.FormatUint(user.ID, 10), ti.accessTTL),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
}

// ParseAccess проверяет токен доступа.
func (ti *TokenIssuer) ParseAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := ti.parse(tokenString, claims, audienceAccess); err != nil {
		return nil, err
	}
	return claims, nil
}

// IssueSession генерирует новый ключ сессии для authority и подписывает его.
// validity ограничивается SessionMaxValidity; ноль означает максимум.
func (ti *TokenIssuer) IssueSession(authority game.Identity, validity time.Duration) (string, *SessionClaims, error) {
	if authority.IsZero() {
		return "", nil, game.ErrInvalidIdentity
	}
	if validity <= 0 || validity > ti.sessionMaxValidity {
		validity = ti.sessionMaxValidity
	}
	signer, err := game.NewIdentity()
	if err != nil {
		return "", nil, err
	}

	claims := &SessionClaims{
		Authority:        authority,
		Signer:           signer,
		RegisteredClaims: ti.registered(audienceSession, authority.String(), validity),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// ParseSession проверяет сессионный токен.
func (ti *TokenIssuer) ParseSession(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := ti.parse(tokenString, claims, audienceSession); err != nil {
		return nil, err
	}
	return claims, nil
}

func (ti *TokenIssuer) parse(tokenString string, claims jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return ti.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// GenerateSecureSecret generates a new secure secret key (base64).
func GenerateSecureSecret() string {
	b := make([]byte, minSecretLength)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeSecret декодирует секрет из base64 и проверяет длину.
func DecodeSecret(secret string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, err
	}
	if len(decoded) < minSecretLength {
		return nil, ErrSecretTooShort
	}
	return decoded, nil
}
