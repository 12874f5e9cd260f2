package game

import "errors"

// Отказы ядра. Все они детерминированы: одинаковые (состояние, вход)
// всегда дают одинаковый результат, повтор не поможет.
var (
	ErrNotEnoughEnergy     = errors.New("not enough energy")
	ErrTileAlreadyOccupied = errors.New("tile already occupied")
	ErrTileHasNoTree       = errors.New("tile has no tree")
	ErrTileCantBeUpgraded  = errors.New("tile can't be upgraded")
	ErrTileCantBeCollected = errors.New("tile can't be collected")
	ErrWrongAuthority      = errors.New("wrong authority")
	ErrInvalidCoordinate   = errors.New("invalid coordinate")

	ErrInvalidBuildingType = errors.New("invalid building type")
	ErrInvalidIdentity     = errors.New("invalid identity")
	ErrInvalidName         = errors.New("invalid player name")
)

var rejections = []error{
	ErrNotEnoughEnergy,
	ErrTileAlreadyOccupied,
	ErrTileHasNoTree,
	ErrTileCantBeUpgraded,
	ErrTileCantBeCollected,
	ErrWrongAuthority,
	ErrInvalidCoordinate,
	ErrInvalidBuildingType,
	ErrInvalidIdentity,
	ErrInvalidName,
}

// IsRejection сообщает, что ошибка является отказом игровых правил,
// а не сбоем инфраструктуры.
func IsRejection(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}
