package api

import (
	"errors"
	"net/http"

	"github.com/annel0/lumberjack/internal/auth"
	"github.com/annel0/lumberjack/internal/game"
	"github.com/annel0/lumberjack/internal/storage"
	"github.com/gin-gonic/gin"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{game.ErrWrongAuthority, http.StatusForbidden, "wrong_authority"},
	{game.ErrNotEnoughEnergy, http.StatusConflict, "not_enough_energy"},
	{game.ErrTileAlreadyOccupied, http.StatusConflict, "tile_already_occupied"},
	{game.ErrTileHasNoTree, http.StatusConflict, "tile_has_no_tree"},
	{game.ErrTileCantBeUpgraded, http.StatusConflict, "tile_cant_be_upgraded"},
	{game.ErrTileCantBeCollected, http.StatusConflict, "tile_cant_be_collected"},
	{game.ErrInvalidCoordinate, http.StatusBadRequest, "invalid_coordinate"},
	{game.ErrInvalidBuildingType, http.StatusBadRequest, "invalid_building_type"},
	{game.ErrInvalidIdentity, http.StatusBadRequest, "invalid_identity"},
	{game.ErrInvalidName, http.StatusBadRequest, "invalid_name"},
	{storage.ErrPlayerNotFound, http.StatusNotFound, "player_not_found"},
	{storage.ErrWorldNotFound, http.StatusNotFound, "world_not_found"},
	{storage.ErrPlayerExists, http.StatusConflict, "player_exists"},
	{storage.ErrVersionConflict, http.StatusConflict, "version_conflict"},
	{auth.ErrUserExists, http.StatusConflict, "user_exists"},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
	{auth.ErrInvalidUsername, http.StatusBadRequest, "invalid_username"},
	{auth.ErrWeakPassword, http.StatusBadRequest, "weak_password"},
}

// statusFor сопоставляет ошибку HTTP-статусу и коду причины.
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func (rs *RestServer) respondError(c *gin.Context, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		rs.logger.Error("❌ %s %s: %v", c.Request.Method, c.FullPath(), err)
		message = "Внутренняя ошибка сервера"
	}
	c.JSON(status, GenericResponse{
		Success: false,
		Message: message,
		Code:    code,
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, GenericResponse{
		Success: false,
		Message: message,
		Code:    "bad_request",
	})
}
