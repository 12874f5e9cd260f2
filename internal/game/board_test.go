package game

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testPlayer = Identity{1}
	testAvatar = Identity{2}
)

func actorAt(now int64) Actor {
	return Actor{Player: testPlayer, Avatar: testAvatar, Now: now}
}

func TestNewBoard_AllTrees(t *testing.T) {
	b := NewBoard()
	counts := b.Counts()
	assert.Equal(t, BoardSizeX*BoardSizeY, counts[BuildingTree], "Новое поле должно состоять из деревьев")
	assert.Zero(t, b.Wood)
	assert.Zero(t, b.Stone)
	assert.Zero(t, b.ActionID)
}

func TestBoard_Chop(t *testing.T) {
	b := NewBoard()
	var h ActionHistory

	action, err := b.Chop(&h, 0, 0, actorAt(1000))
	require.NoError(t, err)
	assert.Equal(t, BuildingEmpty, b.Tiles[0][0].BuildingType, "Тайл должен стать пустым")
	assert.Equal(t, uint64(5), b.Wood, "Рубка даёт 5 древесины")
	assert.Equal(t, uint64(1), b.ActionID)
	assert.Equal(t, uint64(0), action.ActionID, "В журнал пишется значение счётчика до инкремента")
	assert.Equal(t, ActionChop, action.ActionType)
	assert.Equal(t, BuildingEmpty, action.Tile.BuildingType, "Снимок тайла после перехода")

	before := *b
	_, err = b.Chop(&h, 0, 0, actorAt(1001))
	assert.ErrorIs(t, err, ErrTileHasNoTree)
	assert.Equal(t, before, *b, "Отклонённое действие не меняет поле")
	assert.Equal(t, uint64(1), h.Len)
}

func TestBoard_Build(t *testing.T) {
	b := NewBoard()
	var h ActionHistory

	_, err := b.Build(&h, 3, 4, BuildingSawmill, actorAt(10))
	assert.ErrorIs(t, err, ErrTileAlreadyOccupied, "Нельзя строить на дереве")

	_, err = b.Chop(&h, 3, 4, actorAt(10))
	require.NoError(t, err)

	_, err = b.Build(&h, 3, 4, BuildingType(7), actorAt(20))
	assert.ErrorIs(t, err, ErrInvalidBuildingType)

	action, err := b.Build(&h, 3, 4, BuildingMine, actorAt(20))
	require.NoError(t, err)
	tile := b.Tiles[3][4]
	assert.Equal(t, BuildingMine, tile.BuildingType)
	assert.Equal(t, int64(20), tile.BuildingStartCollectTime)
	assert.Equal(t, int64(20), tile.BuildingStartTime)
	assert.Equal(t, testPlayer, tile.BuildingOwner)
	assert.Equal(t, uint8(3), action.X)
	assert.Equal(t, uint8(4), action.Y)

	_, err = b.Build(&h, 3, 4, BuildingSawmill, actorAt(30))
	assert.ErrorIs(t, err, ErrTileAlreadyOccupied)
}

func TestBoard_BuildAnyBuildingType(t *testing.T) {
	b := NewBoard()
	var h ActionHistory

	_, err := b.Chop(&h, 0, 0, actorAt(10))
	require.NoError(t, err)

	action, err := b.Build(&h, 0, 0, BuildingEmpty, actorAt(20))
	require.NoError(t, err, "Пустой тайл можно \"застроить\" пустотой")
	assert.Equal(t, BuildingEmpty, b.Tiles[0][0].BuildingType)
	assert.Equal(t, ActionBuild, action.ActionType)
	assert.Equal(t, uint64(1), action.ActionID)

	action, err = b.Build(&h, 0, 0, BuildingTree, actorAt(30))
	require.NoError(t, err, "Дерево можно посадить обратно")
	assert.Equal(t, BuildingTree, b.Tiles[0][0].BuildingType)
	assert.Equal(t, BuildingTree, action.Tile.BuildingType)
	assert.Equal(t, uint64(3), h.Len)

	_, err = b.Chop(&h, 0, 0, actorAt(40))
	require.NoError(t, err, "Посаженное дерево снова рубится")
	assert.Equal(t, 2*ResourceYield, b.Wood)
}

func TestBoard_Upgrade(t *testing.T) {
	b := NewBoard()
	var h ActionHistory

	_, err := b.Upgrade(&h, 0, 0, actorAt(1), StrictRules)
	assert.ErrorIs(t, err, ErrTileCantBeUpgraded, "Дерево нельзя улучшить")

	b.Tiles[0][0] = Tile{BuildingType: BuildingSawmill}
	_, err = b.Upgrade(&h, 0, 0, actorAt(5), StrictRules)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), b.Tiles[0][0].BuildingLevel)
	assert.Equal(t, int64(5), b.Tiles[0][0].BuildingStartUpgradeTime)

	b.Tiles[0][0].BuildingLevel = math.MaxUint8
	before := *b
	_, err = b.Upgrade(&h, 0, 0, actorAt(6), StrictRules)
	assert.ErrorIs(t, err, ErrTileCantBeUpgraded, "Уровень не должен переполняться")
	assert.Equal(t, before, *b)
}

func TestBoard_UpgradeLegacyRules(t *testing.T) {
	b := NewBoard()
	var h ActionHistory

	_, err := b.Upgrade(&h, 2, 2, actorAt(1), LegacyRules)
	require.NoError(t, err, "Упрощённые правила не проверяют тип постройки")
	assert.Equal(t, uint8(1), b.Tiles[2][2].BuildingLevel)
	assert.Equal(t, BuildingTree, b.Tiles[2][2].BuildingType)
}

func TestBoard_Collect(t *testing.T) {
	b := NewBoard()
	var h ActionHistory

	_, err := b.Collect(&h, 1, 1, actorAt(100), StrictRules)
	assert.ErrorIs(t, err, ErrTileAlreadyOccupied, "С дерева нельзя собирать")

	b.Tiles[1][1] = Tile{BuildingType: BuildingMine, BuildingStartCollectTime: 100}

	_, err = b.Collect(&h, 1, 1, actorAt(159), StrictRules)
	assert.ErrorIs(t, err, ErrTileCantBeCollected)

	_, err = b.Collect(&h, 1, 1, actorAt(160), StrictRules)
	require.NoError(t, err, "Ровно 60 секунд достаточно")
	assert.Equal(t, uint64(5), b.Stone, "Шахта даёт камень")
	assert.Zero(t, b.Wood)
	assert.Equal(t, int64(160), b.Tiles[1][1].BuildingStartCollectTime)

	_, err = b.Collect(&h, 1, 1, actorAt(161), LegacyRules)
	require.NoError(t, err, "Упрощённые правила не проверяют кулдаун")
	assert.Equal(t, uint64(10), b.Stone)
}

func TestBoard_InvalidCoordinate(t *testing.T) {
	b := NewBoard()
	var h ActionHistory

	cases := []struct{ x, y int }{{-1, 0}, {0, -1}, {10, 0}, {0, 10}, {100, 100}}
	for _, c := range cases {
		_, err := b.Chop(&h, c.x, c.y, actorAt(1))
		assert.ErrorIs(t, err, ErrInvalidCoordinate, "(%d,%d)", c.x, c.y)
		_, err = b.Tile(c.x, c.y)
		assert.ErrorIs(t, err, ErrInvalidCoordinate)
	}
	assert.Zero(t, h.Len)
}

func TestBoard_ActionIDWraps(t *testing.T) {
	b := NewBoard()
	var h ActionHistory
	b.ActionID = math.MaxUint64

	action, err := b.Chop(&h, 0, 0, actorAt(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), action.ActionID)
	assert.Equal(t, uint64(0), b.ActionID, "Счётчик действий сбрасывается в 0 при переполнении")
}

func TestBoard_ResourcesSaturate(t *testing.T) {
	b := NewBoard()
	var h ActionHistory
	b.Wood = math.MaxUint64 - 2

	_, err := b.Chop(&h, 0, 0, actorAt(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), b.Wood)
}

func TestWorld_ApplyIsAtomic(t *testing.T) {
	w := NewWorld()
	moves := []Move{
		{Type: ActionChop, X: 0, Y: 0},
		{Type: ActionBuild, X: 0, Y: 0, Building: BuildingSawmill},
		{Type: ActionUpgrade, X: 0, Y: 0},
	}
	for i, m := range moves {
		_, err := w.Apply(m, actorAt(int64(i)), StrictRules)
		require.NoError(t, err, m.String())
	}

	rejected := []Move{
		{Type: ActionChop, X: 0, Y: 0},
		{Type: ActionBuild, X: 0, Y: 0, Building: BuildingMine},
		{Type: ActionUpgrade, X: 5, Y: 5},
		{Type: ActionCollect, X: 0, Y: 0},
		{Type: ActionCollect, X: 9, Y: 9},
		{Type: ActionChop, X: 10, Y: 0},
	}
	for _, m := range rejected {
		before := *w
		_, err := w.Apply(m, actorAt(10), StrictRules)
		require.Error(t, err, m.String())
		assert.True(t, IsRejection(err), m.String())
		assert.Equal(t, before, *w, "Мир не должен меняться после отказа: %s", m)
	}
}

func TestWorld_CloneIsIndependent(t *testing.T) {
	w := NewWorld()
	c := w.Clone()
	_, err := c.Apply(Move{Type: ActionChop, X: 1, Y: 1}, actorAt(1), StrictRules)
	require.NoError(t, err)

	assert.Equal(t, BuildingTree, w.Board.Tiles[1][1].BuildingType, "Исходный мир не должен меняться")
	assert.Zero(t, w.History.Len)
	assert.Equal(t, uint64(1), c.History.Len)
}
