package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/annel0/lumberjack/internal/auth"
	"github.com/annel0/lumberjack/internal/game"
	"github.com/annel0/lumberjack/internal/logging"
	"github.com/annel0/lumberjack/internal/processor"
	"github.com/annel0/lumberjack/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	t       *testing.T
	handler http.Handler
	now     *atomic.Int64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := logging.NewWriterLogger("api", io.Discard, logging.ERROR)

	now := &atomic.Int64{}
	now.Store(time.Now().Unix())
	clock := processor.ClockFunc(now.Load)

	proc := processor.New(storage.NewMemoryStore(), clock, auth.NewSessionAuthorizer(clock.Now),
		processor.WithLogger(logger))

	tokens, err := auth.NewTokenIssuer(nil, time.Hour, time.Hour)
	require.NoError(t, err)
	authn := auth.NewAuthenticator(auth.NewMemoryUserRepo(), tokens, logger)

	rs, err := NewRestServer(Config{
		Processor:     proc,
		Authenticator: authn,
		Registry:      prometheus.NewRegistry(),
		Logger:        logger,
		NodeID:        "test-node",
	})
	require.NoError(t, err)
	return &testServer{t: t, handler: rs.Handler(), now: now}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

func (ts *testServer) do(method, path, authHeader string, body interface{}) (int, apiResponse) {
	ts.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)

	var resp apiResponse
	if w.Header().Get("Content-Type") != "" && bytes.HasPrefix(w.Body.Bytes(), []byte("{")) {
		require.NoError(ts.t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w.Code, resp
}

func (ts *testServer) raw(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

// signup регистрирует пользователя, входит и создаёт игрока. Возвращает Bearer-заголовок и authority.
func (ts *testServer) signup(username string) (string, string) {
	ts.t.Helper()
	creds := gin.H{"username": username, "password": "secret123"}

	code, resp := ts.do(http.MethodPost, "/api/auth/register", "", creds)
	require.Equal(ts.t, http.StatusCreated, code, resp.Message)

	code, resp = ts.do(http.MethodPost, "/api/auth/login", "", creds)
	require.Equal(ts.t, http.StatusOK, code, resp.Message)
	var login struct {
		Token string `json:"token"`
		User  struct {
			Authority string `json:"authority"`
		} `json:"user"`
	}
	require.NoError(ts.t, json.Unmarshal(resp.Data, &login))
	bearer := "Bearer " + login.Token

	code, resp = ts.do(http.MethodPost, "/api/players", bearer, gin.H{"name": username})
	require.Equal(ts.t, http.StatusCreated, code, resp.Message)
	return bearer, login.User.Authority
}

func decode[T any](t *testing.T, data json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

func TestRestServer_GameFlow(t *testing.T) {
	ts := newTestServer(t)
	bearer, authority := ts.signup("alice")
	base := "/api/players/" + authority

	code, resp := ts.do(http.MethodGet, base, "", nil)
	require.Equal(t, http.StatusOK, code)
	player := decode[game.PlayerState](t, resp.Data)
	assert.Equal(t, "alice", player.Name)
	assert.Equal(t, game.MaxEnergy, player.Energy)

	code, resp = ts.do(http.MethodPost, base+"/chop", bearer, gin.H{"x": 0, "y": 0})
	require.Equal(t, http.StatusOK, code, resp.Message)
	res := decode[processor.ActionResult](t, resp.Data)
	assert.Equal(t, uint64(5), res.Wood)
	assert.Equal(t, uint64(9), res.Player.Energy)
	assert.Equal(t, game.BuildingEmpty, res.Action.Tile.BuildingType)

	code, resp = ts.do(http.MethodPost, base+"/chop", bearer, gin.H{"x": 0, "y": 0})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "tile_has_no_tree", resp.Code)

	code, resp = ts.do(http.MethodPost, base+"/build", bearer, gin.H{"x": 0, "y": 0, "building": "sawmill"})
	require.Equal(t, http.StatusOK, code, resp.Message)

	code, resp = ts.do(http.MethodPost, base+"/collect", bearer, gin.H{"x": 0, "y": 0})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "tile_cant_be_collected", resp.Code)

	ts.now.Add(61)
	code, resp = ts.do(http.MethodPost, base+"/collect", bearer, gin.H{"x": 0, "y": 0})
	require.Equal(t, http.StatusOK, code, resp.Message)
	res = decode[processor.ActionResult](t, resp.Data)
	assert.Equal(t, uint64(10), res.Wood)

	code, resp = ts.do(http.MethodPost, base+"/upgrade", bearer, gin.H{"x": 0, "y": 0})
	require.Equal(t, http.StatusOK, code, resp.Message)
	res = decode[processor.ActionResult](t, resp.Data)
	assert.Equal(t, uint8(1), res.Action.Tile.BuildingLevel)

	code, resp = ts.do(http.MethodGet, "/api/board", "", nil)
	require.Equal(t, http.StatusOK, code)
	board := decode[struct {
		Board   game.Board `json:"board"`
		Version uint64     `json:"version"`
	}](t, resp.Data)
	assert.Equal(t, game.BuildingSawmill, board.Board.Tiles[0][0].BuildingType)
	assert.Equal(t, uint64(4), board.Version)

	code, resp = ts.do(http.MethodGet, "/api/board/history?since=1", "", nil)
	require.Equal(t, http.StatusOK, code)
	history := decode[struct {
		Actions []game.GameAction `json:"actions"`
	}](t, resp.Data)
	require.Len(t, history.Actions, 2)
	assert.Equal(t, game.ActionCollect, history.Actions[0].ActionType)
	assert.Equal(t, game.ActionUpgrade, history.Actions[1].ActionType)

	code, _ = ts.do(http.MethodGet, "/api/board/history?since=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRestServer_Update(t *testing.T) {
	ts := newTestServer(t)
	bearer, authority := ts.signup("bob")
	base := "/api/players/" + authority

	for i := 0; i < 3; i++ {
		code, resp := ts.do(http.MethodPost, base+"/chop", bearer, gin.H{"x": i, "y": 1})
		require.Equal(t, http.StatusOK, code, resp.Message)
	}

	ts.now.Add(125)
	code, resp := ts.do(http.MethodPost, base+"/update", "", nil)
	require.Equal(t, http.StatusOK, code, resp.Message)
	player := decode[game.PlayerState](t, resp.Data)
	assert.Equal(t, uint64(9), player.Energy)
	assert.Equal(t, ts.now.Load()-5, player.LastLogin)
}

func TestRestServer_Sessions(t *testing.T) {
	ts := newTestServer(t)
	bearer, authority := ts.signup("carol")
	otherBearer, otherAuthority := ts.signup("dave")

	code, resp := ts.do(http.MethodPost, "/api/sessions", bearer, gin.H{"validity_seconds": 600})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	session := decode[SessionResponse](t, resp.Data)
	assert.Equal(t, authority, session.Authority)
	assert.NotEqual(t, authority, session.Signer)

	sessionHeader := "Session " + session.Token
	code, resp = ts.do(http.MethodPost, "/api/players/"+authority+"/chop", sessionHeader, gin.H{"x": 5, "y": 5})
	require.Equal(t, http.StatusOK, code, resp.Message)
	res := decode[processor.ActionResult](t, resp.Data)
	assert.Equal(t, authority, res.Action.Player.String(), "Действие записано от имени владельца")

	// Сессия carol не даёт права действовать за dave
	code, resp = ts.do(http.MethodPost, "/api/players/"+otherAuthority+"/chop", sessionHeader, gin.H{"x": 6, "y": 5})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "wrong_authority", resp.Code)

	// Как и токен dave - за carol
	code, _ = ts.do(http.MethodPost, "/api/players/"+authority+"/chop", otherBearer, gin.H{"x": 6, "y": 5})
	assert.Equal(t, http.StatusForbidden, code)

	// Сессионный токен не подходит там, где нужен токен доступа
	code, _ = ts.do(http.MethodPost, "/api/sessions", "Bearer "+session.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRestServer_Errors(t *testing.T) {
	ts := newTestServer(t)
	bearer, authority := ts.signup("erin")
	base := "/api/players/" + authority

	tests := []struct {
		name       string
		method     string
		path       string
		auth       string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{"без токена", http.MethodPost, base + "/chop", "", gin.H{"x": 0, "y": 0}, http.StatusUnauthorized, "unauthorized"},
		{"неизвестная схема", http.MethodPost, base + "/chop", "Basic abc", gin.H{"x": 0, "y": 0}, http.StatusUnauthorized, "unauthorized"},
		{"мусорный токен", http.MethodPost, base + "/chop", "Bearer garbage", gin.H{"x": 0, "y": 0}, http.StatusUnauthorized, "unauthorized"},
		{"нет координат", http.MethodPost, base + "/chop", bearer, gin.H{"x": 1}, http.StatusBadRequest, "bad_request"},
		{"вне поля", http.MethodPost, base + "/chop", bearer, gin.H{"x": 10, "y": 0}, http.StatusBadRequest, "invalid_coordinate"},
		{"неизвестная постройка", http.MethodPost, base + "/build", bearer, gin.H{"x": 0, "y": 0, "building": "castle"}, http.StatusBadRequest, "invalid_building_type"},
		{"стройка на дереве", http.MethodPost, base + "/build", bearer, gin.H{"x": 0, "y": 0, "building": "mine"}, http.StatusConflict, "tile_already_occupied"},
		{"плохой authority", http.MethodGet, "/api/players/xyz", "", nil, http.StatusBadRequest, "invalid_identity"},
		{"неизвестный игрок", http.MethodGet, "/api/players/" + game.Identity{9}.String(), "", nil, http.StatusNotFound, "player_not_found"},
		{"повторный игрок", http.MethodPost, "/api/players", bearer, gin.H{"name": "again"}, http.StatusConflict, "player_exists"},
		{"неверный пароль", http.MethodPost, "/api/auth/login", "", gin.H{"username": "erin", "password": "nope"}, http.StatusUnauthorized, "invalid_credentials"},
		{"занятое имя", http.MethodPost, "/api/auth/register", "", gin.H{"username": "erin", "password": "secret123"}, http.StatusConflict, "user_exists"},
		{"короткий пароль", http.MethodPost, "/api/auth/register", "", gin.H{"username": "frank", "password": "123"}, http.StatusBadRequest, "weak_password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := ts.do(tt.method, tt.path, tt.auth, tt.body)
			assert.Equal(t, tt.wantStatus, code, resp.Message)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.False(t, resp.Success)
		})
	}
}

func TestRestServer_Snapshot(t *testing.T) {
	ts := newTestServer(t)
	bearer, authority := ts.signup("gina")
	code, _ := ts.do(http.MethodPost, "/api/players/"+authority+"/chop", bearer, gin.H{"x": 3, "y": 7})
	require.Equal(t, http.StatusOK, code)

	w := ts.raw("/api/board/snapshot")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, w.Body.Bytes(), game.WorldSize)

	var world game.World
	require.NoError(t, world.UnmarshalBinary(w.Body.Bytes()))
	assert.Equal(t, game.BuildingEmpty, world.Board.Tiles[3][7].BuildingType)

	w = ts.raw("/api/board/snapshot?compress=zstd")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zstd", w.Header().Get("Content-Type"))
	assert.Equal(t, strconv.Itoa(game.WorldSize), w.Header().Get("X-Uncompressed-Length"))
	assert.Less(t, w.Body.Len(), game.WorldSize, "Почти пустой мир хорошо сжимается")

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	plain, err := dec.DecodeAll(w.Body.Bytes(), nil)
	require.NoError(t, err)
	var fromZstd game.World
	require.NoError(t, fromZstd.UnmarshalBinary(plain))
	assert.Equal(t, world, fromZstd)

	w = ts.raw("/api/board/snapshot?compress=gzip")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRestServer_ServiceEndpoints(t *testing.T) {
	ts := newTestServer(t)

	w := ts.raw("/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	code, resp := ts.do(http.MethodGet, "/api/server", "", nil)
	require.Equal(t, http.StatusOK, code)
	info := decode[map[string]interface{}](t, resp.Data)
	assert.Equal(t, "test-node", info["node_id"])
	assert.Equal(t, "strict", info["rules"])
	assert.Contains(t, info, "uptime")

	w = ts.raw("/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "lumberjack_api_http_request_duration_seconds")
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "5с", formatUptime(5*time.Second))
	assert.Equal(t, "2м 3с", formatUptime(2*time.Minute+3*time.Second))
	assert.Equal(t, "1ч 0м 0с", formatUptime(time.Hour))
	assert.Equal(t, "1д 2ч 0м 0с", formatUptime(26*time.Hour))
}
