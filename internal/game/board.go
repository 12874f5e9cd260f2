package game

import (
	"fmt"
	"math"
)

const (
	BoardSizeX = 10
	BoardSizeY = 10

	// ResourceYield - сколько ресурса даёт рубка или сбор.
	ResourceYield uint64 = 5
	// CollectCooldown - минимальный интервал между сборами с одного здания, секунды.
	CollectCooldown int64 = 60
)

// Actor - кто и когда выполняет действие.
type Actor struct {
	Player Identity
	Avatar Identity
	Now    int64
}

// Board - общее поле мира и глобальные ресурсы.
// Тайлы адресуются как Tiles[x][y].
type Board struct {
	Tiles    [BoardSizeX][BoardSizeY]Tile `json:"tiles"`
	ActionID uint64                       `json:"action_id"`
	Wood     uint64                       `json:"wood"`
	Stone    uint64                       `json:"stone"`
	DamLevel uint64                       `json:"dam_level"`
}

// NewBoard создаёт поле, целиком засаженное деревьями.
func NewBoard() *Board {
	// Нулевой Tile уже является деревом
	return &Board{}
}

// Tile возвращает копию тайла по координатам.
func (b *Board) Tile(x, y int) (Tile, error) {
	if err := checkBounds(x, y); err != nil {
		return Tile{}, err
	}
	return b.Tiles[x][y], nil
}

func checkBounds(x, y int) error {
	if x < 0 || x >= BoardSizeX || y < 0 || y >= BoardSizeY {
		return fmt.Errorf("%w: (%d, %d)", ErrInvalidCoordinate, x, y)
	}
	return nil
}

// Chop рубит дерево: тайл становится пустым, дерево приносит ResourceYield древесины.
func (b *Board) Chop(h *ActionHistory, x, y int, by Actor) (GameAction, error) {
	if err := checkBounds(x, y); err != nil {
		return GameAction{}, err
	}
	tile := &b.Tiles[x][y]
	if tile.BuildingType != BuildingTree {
		return GameAction{}, ErrTileHasNoTree
	}

	tile.BuildingType = BuildingEmpty
	b.Wood = addSaturating(b.Wood, ResourceYield)
	return b.record(h, ActionChop, x, y, by), nil
}

// Build ставит постройку bt на пустой тайл. Стоимость не взимается.
// Подходит любое значение перечисления: дерево можно посадить обратно.
func (b *Board) Build(h *ActionHistory, x, y int, bt BuildingType, by Actor) (GameAction, error) {
	if err := checkBounds(x, y); err != nil {
		return GameAction{}, err
	}
	if !bt.IsValid() {
		return GameAction{}, fmt.Errorf("%w: %s", ErrInvalidBuildingType, bt)
	}
	tile := &b.Tiles[x][y]
	if tile.BuildingType != BuildingEmpty {
		return GameAction{}, ErrTileAlreadyOccupied
	}

	tile.BuildingType = bt
	tile.BuildingLevel = 0
	tile.BuildingOwner = by.Player
	tile.BuildingStartTime = by.Now
	tile.BuildingStartCollectTime = by.Now
	return b.record(h, ActionBuild, x, y, by), nil
}

// Upgrade повышает уровень здания на единицу.
func (b *Board) Upgrade(h *ActionHistory, x, y int, by Actor, rules Rules) (GameAction, error) {
	if err := checkBounds(x, y); err != nil {
		return GameAction{}, err
	}
	tile := &b.Tiles[x][y]
	if rules.EnforceUpgradeType && !tile.BuildingType.IsProducer() {
		return GameAction{}, ErrTileCantBeUpgraded
	}
	if tile.BuildingLevel == math.MaxUint8 {
		return GameAction{}, fmt.Errorf("%w: достигнут максимальный уровень", ErrTileCantBeUpgraded)
	}

	tile.BuildingLevel++
	tile.BuildingStartUpgradeTime = by.Now
	return b.record(h, ActionUpgrade, x, y, by), nil
}

// Collect забирает ресурс со здания: древесину с лесопилки, камень с шахты.
func (b *Board) Collect(h *ActionHistory, x, y int, by Actor, rules Rules) (GameAction, error) {
	if err := checkBounds(x, y); err != nil {
		return GameAction{}, err
	}
	tile := &b.Tiles[x][y]
	if !tile.BuildingType.IsProducer() {
		return GameAction{}, ErrTileAlreadyOccupied
	}
	if rules.EnforceCollectCooldown && by.Now-tile.BuildingStartCollectTime < CollectCooldown {
		return GameAction{}, ErrTileCantBeCollected
	}

	tile.BuildingStartCollectTime = by.Now
	if tile.BuildingType == BuildingSawmill {
		b.Wood = addSaturating(b.Wood, ResourceYield)
	} else {
		b.Stone = addSaturating(b.Stone, ResourceYield)
	}
	return b.record(h, ActionCollect, x, y, by), nil
}

// record пишет действие в журнал и сдвигает счётчик действий.
// Вызывается только после того, как все проверки пройдены.
func (b *Board) record(h *ActionHistory, kind ActionType, x, y int, by Actor) GameAction {
	action := GameAction{
		ActionID:   b.ActionID,
		ActionType: kind,
		X:          uint8(x),
		Y:          uint8(y),
		Tile:       b.Tiles[x][y],
		Player:     by.Player,
		Avatar:     by.Avatar,
	}
	if h != nil {
		h.Push(action)
	}
	b.ActionID++ // переполнение сбрасывает счётчик в 0
	return action
}

func addSaturating(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

// Counts возвращает число тайлов каждого типа.
func (b *Board) Counts() map[BuildingType]int {
	counts := make(map[BuildingType]int, 4)
	for x := range b.Tiles {
		for y := range b.Tiles[x] {
			counts[b.Tiles[x][y].BuildingType]++
		}
	}
	return counts
}
