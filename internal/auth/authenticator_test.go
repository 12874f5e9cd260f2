package auth

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/annel0/lumberjack/internal/game"
	"github.com/annel0/lumberjack/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthenticator(t *testing.T, repo UserRepository) *Authenticator {
	t.Helper()
	tokens, err := NewTokenIssuer(nil, time.Hour, time.Hour)
	require.NoError(t, err)
	return NewAuthenticator(repo, tokens, logging.NewWriterLogger("auth", io.Discard, logging.ERROR))
}

func TestAuthenticator_RegisterLogin(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthenticator(t, NewMemoryUserRepo())

	user, err := a.Register(ctx, "Alice", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.False(t, user.Authority.IsZero(), "authority генерируется при регистрации")
	assert.NotEqual(t, "secret123", user.PasswordHash)

	_, err = a.Register(ctx, "ALICE", "another1")
	assert.ErrorIs(t, err, ErrUserExists)
	_, err = a.Register(ctx, "al", "secret123")
	assert.ErrorIs(t, err, ErrInvalidUsername)
	_, err = a.Register(ctx, "bobby", "123")
	assert.ErrorIs(t, err, ErrWeakPassword)

	res, err := a.Login(ctx, "alice", "secret123")
	require.NoError(t, err)
	assert.Equal(t, user.Authority, res.User.Authority)
	assert.True(t, res.ExpiresAt.After(time.Now()))

	claims, err := a.Authenticate(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Authority, claims.Authority)

	_, err = a.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = a.Login(ctx, "nobody", "secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = a.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticator_StartSession(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthenticator(t, NewMemoryUserRepo())

	_, err := a.Register(ctx, "carol", "secret123")
	require.NoError(t, err)
	res, err := a.Login(ctx, "carol", "secret123")
	require.NoError(t, err)
	claims, err := a.Authenticate(ctx, res.Token)
	require.NoError(t, err)

	token, session, err := a.StartSession(claims, 10*time.Minute)
	require.NoError(t, err)

	parsed, err := a.Tokens().ParseSession(token)
	require.NoError(t, err)
	cred := parsed.Credential()

	authz := NewSessionAuthorizer(func() int64 { return time.Now().Unix() })
	assert.True(t, authz.Authorize(session.Signer, claims.Authority, cred), "Действующая сессия")
	assert.False(t, authz.Authorize(session.Signer, claims.Authority, nil), "Ключ сессии без сессии")
}

func TestSessionAuthorizer(t *testing.T) {
	var (
		owner  = game.Identity{1}
		signer = game.Identity{2}
		other  = game.Identity{3}
		now    = int64(1000)
	)
	authz := NewSessionAuthorizer(func() int64 { return now })

	tests := []struct {
		name    string
		claimed game.Identity
		stored  game.Identity
		session *game.SessionCredential
		want    bool
	}{
		{"владелец", owner, owner, nil, true},
		{"чужой ключ", other, owner, nil, false},
		{"пустой stored", game.Identity{}, game.Identity{}, nil, false},
		{"действующая сессия", signer, owner, &game.SessionCredential{Signer: signer, Authority: owner, ValidUntil: now + 1}, true},
		{"истёкшая сессия", signer, owner, &game.SessionCredential{Signer: signer, Authority: owner, ValidUntil: now}, false},
		{"сессия другого игрока", signer, owner, &game.SessionCredential{Signer: signer, Authority: other, ValidUntil: now + 100}, false},
		{"подписал не ключ сессии", other, owner, &game.SessionCredential{Signer: signer, Authority: owner, ValidUntil: now + 100}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, authz.Authorize(tt.claimed, tt.stored, tt.session))
		})
	}
}

func TestMemoryUserRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepo()

	u, err := repo.CreateUser(ctx, "Dave", "hash", game.Identity{4}, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), u.ID)

	got, err := repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "dave", got.Username)

	at := time.Unix(1_700_000_000, 0)
	require.NoError(t, repo.UpdateLastLogin(ctx, u.ID, at))
	got, err = repo.GetUserByUsername(ctx, "DAVE")
	require.NoError(t, err)
	assert.Equal(t, at, got.LastLogin)

	_, err = repo.GetUserByID(ctx, 99)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, repo.UpdateLastLogin(ctx, 99, at), ErrUserNotFound)
}

// Тесты на реальных БД пропускаются, если сервис недоступен.
func TestMongoUserRepo(t *testing.T) {
	uri := os.Getenv("LUMBERJACK_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("LUMBERJACK_TEST_MONGO_URI не задан")
	}
	ctx := context.Background()
	repo, err := NewMongoUserRepo(ctx, MongoConfig{URI: uri, Database: "lumberjack_test_" + time.Now().Format("150405")})
	if err != nil {
		t.Skipf("MongoDB недоступна: %v", err)
	}
	defer repo.Close()

	authority, err := game.NewIdentity()
	require.NoError(t, err)
	u, err := repo.CreateUser(ctx, "Erin", "hash", authority, false)
	require.NoError(t, err)

	got, err := repo.GetUserByUsername(ctx, "erin")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, authority, got.Authority)

	_, err = repo.CreateUser(ctx, "ERIN", "hash", game.Identity{8}, false)
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestMariaUserRepo(t *testing.T) {
	host := os.Getenv("LUMBERJACK_TEST_MARIADB_HOST")
	if host == "" {
		t.Skip("LUMBERJACK_TEST_MARIADB_HOST не задан")
	}
	ctx := context.Background()
	repo, err := NewMariaUserRepo(ctx, MariaConfig{
		Host:     host,
		Username: os.Getenv("LUMBERJACK_TEST_MARIADB_USER"),
		Password: os.Getenv("LUMBERJACK_TEST_MARIADB_PASSWORD"),
		Database: "lumberjack_test",
	})
	if err != nil {
		t.Skipf("MariaDB недоступна: %v", err)
	}
	defer repo.Close()

	authority, err := game.NewIdentity()
	require.NoError(t, err)
	name := "user" + authority.String()[:8]
	u, err := repo.CreateUser(ctx, name, "hash", authority, false)
	require.NoError(t, err)

	got, err := repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, authority, got.Authority)

	_, err = repo.CreateUser(ctx, name, "hash", game.Identity{8}, false)
	assert.ErrorIs(t, err, ErrUserExists)
	require.NoError(t, repo.UpdateLastLogin(ctx, u.ID, time.Now()))
}
