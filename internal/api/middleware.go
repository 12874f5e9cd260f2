package api

import (
	"net/http"
	"strings"

	"github.com/annel0/lumberjack/internal/auth"
	"github.com/annel0/lumberjack/internal/game"
	"github.com/gin-gonic/gin"
)

const (
	ctxClaims  = "claims"  // *auth.AccessClaims
	ctxSigner  = "signer"  // game.Identity
	ctxSession = "session" // *game.SessionCredential
)

// parseAuthorization разбирает заголовок вида "<scheme> <token>".
func parseAuthorization(c *gin.Context) (scheme, token string, ok bool) {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", false
	}
	return parts[0], strings.TrimSpace(parts[1]), true
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{
		Success: false,
		Message: message,
		Code:    "unauthorized",
	})
}

// accessMiddleware требует токен доступа "Bearer <token>".
func (rs *RestServer) accessMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, token, ok := parseAuthorization(c)
		if !ok || scheme != "Bearer" {
			abortUnauthorized(c, "Требуется заголовок Authorization: Bearer <token>")
			return
		}

		claims, err := rs.authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			rs.logger.Debug("🔐 Отклонён токен доступа: %v", err)
			abortUnauthorized(c, "Недействительный токен")
			return
		}

		c.Set(ctxClaims, claims)
		c.Set(ctxSigner, claims.Authority)
		c.Next()
	}
}

// signerMiddleware определяет подписанта запроса действия.
// "Bearer <access>" - подписант = authority учётной записи;
// "Session <session>" - подписант = ключ сессии, сессия передаётся авторизатору.
func (rs *RestServer) signerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, token, ok := parseAuthorization(c)
		if !ok {
			abortUnauthorized(c, "Отсутствует токен авторизации")
			return
		}

		switch scheme {
		case "Bearer":
			claims, err := rs.authn.Authenticate(c.Request.Context(), token)
			if err != nil {
				abortUnauthorized(c, "Недействительный токен")
				return
			}
			c.Set(ctxClaims, claims)
			c.Set(ctxSigner, claims.Authority)
		case "Session":
			session, err := rs.authn.Tokens().ParseSession(token)
			if err != nil {
				abortUnauthorized(c, "Недействительная или истёкшая сессия")
				return
			}
			c.Set(ctxSigner, session.Signer)
			c.Set(ctxSession, session.Credential())
		default:
			abortUnauthorized(c, "Неверный формат токена")
			return
		}
		c.Next()
	}
}

func accessClaims(c *gin.Context) *auth.AccessClaims {
	v, _ := c.Get(ctxClaims)
	claims, _ := v.(*auth.AccessClaims)
	return claims
}

func requestSigner(c *gin.Context) (game.Identity, *game.SessionCredential) {
	var (
		signer  game.Identity
		session *game.SessionCredential
	)
	if v, ok := c.Get(ctxSigner); ok {
		signer, _ = v.(game.Identity)
	}
	if v, ok := c.Get(ctxSession); ok {
		session, _ = v.(*game.SessionCredential)
	}
	return signer, session
}
