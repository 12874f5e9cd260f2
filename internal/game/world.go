package game

import "fmt"

// DefaultWorldKey - ключ единственного мира по умолчанию.
const DefaultWorldKey = "main"

// World - поле вместе с журналом действий. Version растёт на каждый коммит
// и используется хранилищем для оптимистичной блокировки.
type World struct {
	Board   Board         `json:"board"`
	History ActionHistory `json:"-"`
	Version uint64        `json:"version"`
}

// NewWorld создаёт новый мир с полем из деревьев.
func NewWorld() *World {
	return &World{Board: *NewBoard()}
}

// Clone возвращает независимую копию. Все поля - массивы и числа,
// поэтому достаточно копирования значения.
func (w *World) Clone() *World {
	c := *w
	return &c
}

// Move - запрошенное действие над полем.
type Move struct {
	Type     ActionType
	X, Y     int
	Building BuildingType // только для ActionBuild
}

func (m Move) String() string {
	if m.Type == ActionBuild {
		return fmt.Sprintf("%s(%d,%d,%s)", m.Type, m.X, m.Y, m.Building)
	}
	return fmt.Sprintf("%s(%d,%d)", m.Type, m.X, m.Y)
}

// Apply выполняет действие над полем мира и пишет его в журнал.
// При ошибке мир не меняется.
func (w *World) Apply(m Move, by Actor, rules Rules) (GameAction, error) {
	switch m.Type {
	case ActionChop:
		return w.Board.Chop(&w.History, m.X, m.Y, by)
	case ActionBuild:
		return w.Board.Build(&w.History, m.X, m.Y, m.Building, by)
	case ActionUpgrade:
		return w.Board.Upgrade(&w.History, m.X, m.Y, by, rules)
	case ActionCollect:
		return w.Board.Collect(&w.History, m.X, m.Y, by, rules)
	default:
		return GameAction{}, fmt.Errorf("unknown action type %d", uint8(m.Type))
	}
}
