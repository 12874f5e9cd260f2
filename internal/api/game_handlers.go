package api

import (
	"net/http"
	"strconv"

	"github.com/annel0/lumberjack/internal/game"
	"github.com/annel0/lumberjack/internal/middleware"
	"github.com/annel0/lumberjack/internal/processor"
	"github.com/gin-gonic/gin"
)

// InitPlayerRequest - тело POST /api/players.
type InitPlayerRequest struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"` // hex, необязательно
}

// ActionRequest - тело действий над тайлом.
type ActionRequest struct {
	X        *int   `json:"x"`
	Y        *int   `json:"y"`
	Building string `json:"building,omitempty"` // sawmill | mine, только для build
}

// handleInitPlayer создаёт игрока для учётной записи из токена
func (rs *RestServer) handleInitPlayer(c *gin.Context) {
	var req InitPlayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса")
		return
	}

	var avatar game.Identity
	if req.Avatar != "" {
		parsed, err := game.ParseIdentity(req.Avatar)
		if err != nil {
			rs.respondError(c, err)
			return
		}
		avatar = parsed
	}

	claims := accessClaims(c)
	player, err := rs.proc.InitPlayer(c.Request.Context(), claims.Authority, processor.InitParams{
		Name:          req.Name,
		Avatar:        avatar,
		CorrelationID: middleware.TraceID(c),
	})
	if err != nil {
		rs.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Игрок создан",
		Data:    player,
	})
}

func pathAuthority(c *gin.Context) (game.Identity, error) {
	return game.ParseIdentity(c.Param("authority"))
}

// handleGetPlayer возвращает сохранённое состояние игрока
func (rs *RestServer) handleGetPlayer(c *gin.Context) {
	authority, err := pathAuthority(c)
	if err != nil {
		rs.respondError(c, err)
		return
	}
	player, err := rs.proc.Player(c.Request.Context(), authority)
	if err != nil {
		rs.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Игрок", Data: player})
}

// handleUpdate пересчитывает энергию игрока
func (rs *RestServer) handleUpdate(c *gin.Context) {
	authority, err := pathAuthority(c)
	if err != nil {
		rs.respondError(c, err)
		return
	}
	player, err := rs.proc.Update(c.Request.Context(), authority)
	if err != nil {
		rs.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Энергия обновлена", Data: player})
}

type actionFunc func(*processor.Processor, *gin.Context, processor.ActionRequest) (*processor.ActionResult, error)

// handleAction разбирает запрос действия и передаёт его обработчику.
func (rs *RestServer) handleAction(c *gin.Context, needBuilding bool, do actionFunc) {
	authority, err := pathAuthority(c)
	if err != nil {
		rs.respondError(c, err)
		return
	}

	var body ActionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "Неверный формат запроса")
		return
	}
	if body.X == nil || body.Y == nil {
		badRequest(c, "Требуются координаты x и y")
		return
	}

	signer, session := requestSigner(c)
	req := processor.ActionRequest{
		Player:        authority,
		Signer:        signer,
		Session:       session,
		X:             *body.X,
		Y:             *body.Y,
		CorrelationID: middleware.TraceID(c),
	}
	if needBuilding {
		req.Building, err = game.ParseBuildingType(body.Building)
		if err != nil {
			rs.respondError(c, err)
			return
		}
	}

	res, err := do(rs.proc, c, req)
	if err != nil {
		rs.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: res.Action.ActionType.String(),
		Data:    res,
	})
}

func (rs *RestServer) handleChop(c *gin.Context) {
	rs.handleAction(c, false, func(p *processor.Processor, c *gin.Context, r processor.ActionRequest) (*processor.ActionResult, error) {
		return p.Chop(c.Request.Context(), r)
	})
}

func (rs *RestServer) handleBuild(c *gin.Context) {
	rs.handleAction(c, true, func(p *processor.Processor, c *gin.Context, r processor.ActionRequest) (*processor.ActionResult, error) {
		return p.Build(c.Request.Context(), r)
	})
}

func (rs *RestServer) handleUpgrade(c *gin.Context) {
	rs.handleAction(c, false, func(p *processor.Processor, c *gin.Context, r processor.ActionRequest) (*processor.ActionResult, error) {
		return p.Upgrade(c.Request.Context(), r)
	})
}

func (rs *RestServer) handleCollect(c *gin.Context) {
	rs.handleAction(c, false, func(p *processor.Processor, c *gin.Context, r processor.ActionRequest) (*processor.ActionResult, error) {
		return p.Collect(c.Request.Context(), r)
	})
}

// handleBoard возвращает поле и версию мира
func (rs *RestServer) handleBoard(c *gin.Context) {
	world, err := rs.proc.World(c.Request.Context())
	if err != nil {
		rs.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Поле",
		Data: gin.H{
			"board":   world.Board,
			"version": world.Version,
		},
	})
}

// handleHistory возвращает журнал действий; ?since=N - только action_id > N.
func (rs *RestServer) handleHistory(c *gin.Context) {
	world, err := rs.proc.World(c.Request.Context())
	if err != nil {
		rs.respondError(c, err)
		return
	}

	actions := world.History.Recent()
	if s := c.Query("since"); s != "" {
		since, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			badRequest(c, "since должен быть неотрицательным числом")
			return
		}
		actions = world.History.Since(since)
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Журнал действий",
		Data: gin.H{
			"actions": actions,
			"version": world.Version,
		},
	})
}

// handleSnapshot отдаёт мир в бинарной раскладке; ?compress=zstd сжимает ответ.
func (rs *RestServer) handleSnapshot(c *gin.Context) {
	data, err := rs.proc.Snapshot(c.Request.Context())
	if err != nil {
		rs.respondError(c, err)
		return
	}

	switch c.Query("compress") {
	case "":
		c.Data(http.StatusOK, "application/octet-stream", data)
	case "zstd":
		c.Header("X-Uncompressed-Length", strconv.Itoa(len(data)))
		c.Data(http.StatusOK, "application/zstd", rs.encoder.EncodeAll(data, nil))
	default:
		badRequest(c, "Поддерживается только compress=zstd")
	}
}
