package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/annel0/lumberjack/internal/game"
	"github.com/google/uuid"
)

// Типы событий игры.
const (
	EventPlayerInit    = "player.init"
	EventActionChop    = "action.chop"
	EventActionBuild   = "action.build"
	EventActionUpgrade = "action.upgrade"
	EventActionCollect = "action.collect"
)

// ActionEventType возвращает тип события для действия.
func ActionEventType(a game.ActionType) string {
	return "action." + a.String()
}

// ActionEvent - полезная нагрузка событий action.*.
// Клиенты проигрывают действия по ActionID и отбрасывают уже виденные.
type ActionEvent struct {
	Action       game.GameAction `json:"action"`
	WorldVersion uint64          `json:"world_version"`
	Wood         uint64          `json:"wood"`
	Stone        uint64          `json:"stone"`
	EnergyLeft   uint64          `json:"energy_left"`
}

// PlayerInitEvent - полезная нагрузка player.init.
type PlayerInitEvent struct {
	Authority game.Identity `json:"authority"`
	Avatar    game.Identity `json:"avatar"`
	Name      string        `json:"name"`
}

// NewEnvelope упаковывает payload в JSON и заполняет служебные поля.
func NewEnvelope(eventType, source string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: eventType,
		Version:   1,
		Priority:  5,
		Payload:   data,
	}, nil
}

// Decode разбирает полезную нагрузку события.
func (e *Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	return nil
}
