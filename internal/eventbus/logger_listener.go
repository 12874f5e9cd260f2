package eventbus

import (
	"context"

	"github.com/annel0/lumberjack/internal/logging"
)

// StartLoggingListener пишет в лог каждое событие игры: действия с координатами
// и итоговыми ресурсами, появление игроков. Не блокирует.
func StartLoggingListener(ctx context.Context, bus EventBus, logger *logging.Logger) (Subscription, error) {
	sub, err := bus.Subscribe(ctx, Filter{}, func(ctx context.Context, ev *Envelope) {
		logEvent(logger, ev)
	})
	if err != nil {
		return nil, err
	}
	logger.Info("🪵 Журнал событий включён")
	return sub, nil
}

func logEvent(logger *logging.Logger, ev *Envelope) {
	switch ev.EventType {
	case EventPlayerInit:
		var p PlayerInitEvent
		if err := ev.Decode(&p); err != nil {
			logger.Warn("⚠️ %s %s: %v", ev.ID, ev.EventType, err)
			return
		}
		logger.Info("🧑‍🌾 %s: игрок %q (%s) corr=%s", ev.Source, p.Name, p.Authority, ev.CorrelationID)
	case EventActionChop, EventActionBuild, EventActionUpgrade, EventActionCollect:
		var a ActionEvent
		if err := ev.Decode(&a); err != nil {
			logger.Warn("⚠️ %s %s: %v", ev.ID, ev.EventType, err)
			return
		}
		logger.Info("🪓 %s: #%d %s (%d,%d) → %s wood=%d stone=%d v%d corr=%s",
			ev.Source, a.Action.ActionID, a.Action.ActionType, a.Action.X, a.Action.Y,
			a.Action.Tile.BuildingType, a.Wood, a.Stone, a.WorldVersion, ev.CorrelationID)
	default:
		logger.Debug("[EventBus] %s %s src=%s size=%dB", ev.ID, ev.EventType, ev.Source, len(ev.Payload))
	}
}
