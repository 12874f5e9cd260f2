package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// CredentialsRequest - тело register/login.
type CredentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SessionRequest - тело POST /api/sessions.
type SessionRequest struct {
	ValiditySeconds int64 `json:"validity_seconds"` // 0 - максимальный срок
}

// SessionResponse - выданная сессия. Signer указывается в запросах как ключ сессии.
type SessionResponse struct {
	Token      string `json:"token"`
	Signer     string `json:"signer"`
	Authority  string `json:"authority"`
	ValidUntil int64  `json:"valid_until"`
}

// handleRegister создаёт учётную запись
func (rs *RestServer) handleRegister(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса")
		return
	}

	user, err := rs.authn.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		rs.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Пользователь создан",
		Data:    user,
	})
}

// handleLogin обрабатывает запрос на вход
func (rs *RestServer) handleLogin(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса")
		return
	}

	res, err := rs.authn.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		rs.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Вход выполнен",
		Data:    res,
	})
}

// handleStartSession выдаёт делегированный ключ сессии
func (rs *RestServer) handleStartSession(c *gin.Context) {
	var req SessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Неверный формат запроса")
			return
		}
	}
	if req.ValiditySeconds < 0 {
		badRequest(c, "validity_seconds не может быть отрицательным")
		return
	}

	token, session, err := rs.authn.StartSession(accessClaims(c), time.Duration(req.ValiditySeconds)*time.Second)
	if err != nil {
		rs.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Сессия создана",
		Data: SessionResponse{
			Token:      token,
			Signer:     session.Signer.String(),
			Authority:  session.Authority.String(),
			ValidUntil: session.ExpiresAt.Unix(),
		},
	})
}
