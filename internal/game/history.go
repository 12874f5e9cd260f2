package game

import "fmt"

// HistoryCapacity - сколько последних действий хранит кольцевой журнал.
const HistoryCapacity = 30

// ActionType - вид действия игрока над полем.
type ActionType uint8

const (
	ActionChop    ActionType = 0
	ActionBuild   ActionType = 1
	ActionUpgrade ActionType = 2
	ActionCollect ActionType = 3
)

var actionNames = [...]string{"chop", "build", "upgrade", "collect"}

func (a ActionType) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

// IsValid проверяет, что значение входит в перечисление.
func (a ActionType) IsValid() bool {
	return int(a) < len(actionNames)
}

func (a ActionType) MarshalText() ([]byte, error) {
	if !a.IsValid() {
		return nil, fmt.Errorf("unknown action type %d", uint8(a))
	}
	return []byte(a.String()), nil
}

func (a *ActionType) UnmarshalText(text []byte) error {
	for i, name := range actionNames {
		if name == string(text) {
			*a = ActionType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown action type %q", string(text))
}

// GameAction - запись журнала: что сделано, где, кем и каким стал тайл.
type GameAction struct {
	ActionID   uint64     `json:"action_id"`
	ActionType ActionType `json:"action_type"`
	X          uint8      `json:"x"`
	Y          uint8      `json:"y"`
	Tile       Tile       `json:"tile"` // Состояние тайла после перехода
	Player     Identity   `json:"player"`
	Avatar     Identity   `json:"avatar"`
}

// ActionHistory - кольцевой буфер последних HistoryCapacity действий.
// Запись всегда идёт в Entries[ActionIndex], после чего индекс сдвигается
// по модулю ёмкости, затирая самую старую запись.
type ActionHistory struct {
	ActionIndex uint64
	Len         uint64 // Число заполненных слотов, не больше HistoryCapacity
	Entries     [HistoryCapacity]GameAction
}

// Push добавляет действие в журнал.
func (h *ActionHistory) Push(action GameAction) {
	idx := h.ActionIndex % HistoryCapacity
	h.Entries[idx] = action
	h.ActionIndex = (idx + 1) % HistoryCapacity
	if h.Len < HistoryCapacity {
		h.Len++
	}
}

// Recent возвращает сохранённые действия от самого старого к самому новому.
func (h *ActionHistory) Recent() []GameAction {
	n := h.Len
	if n > HistoryCapacity {
		n = HistoryCapacity
	}
	out := make([]GameAction, 0, n)
	start := (h.ActionIndex + HistoryCapacity - n) % HistoryCapacity
	for i := uint64(0); i < n; i++ {
		out = append(out, h.Entries[(start+i)%HistoryCapacity])
	}
	return out
}

// Latest возвращает последнее записанное действие.
func (h *ActionHistory) Latest() (GameAction, bool) {
	if h.Len == 0 {
		return GameAction{}, false
	}
	idx := (h.ActionIndex + HistoryCapacity - 1) % HistoryCapacity
	return h.Entries[idx], true
}

// Since возвращает действия с ActionID строго больше after, в порядке записи.
// Клиент использует это, чтобы не проигрывать одно действие дважды.
func (h *ActionHistory) Since(after uint64) []GameAction {
	recent := h.Recent()
	out := recent[:0:0]
	for _, a := range recent {
		if a.ActionID > after {
			out = append(out, a)
		}
	}
	return out
}
