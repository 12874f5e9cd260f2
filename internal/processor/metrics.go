package processor

import (
	"errors"

	"github.com/annel0/lumberjack/internal/game"
	"github.com/annel0/lumberjack/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics - Prometheus-метрики обработчика действий.
//
// * lumberjack_actions_total{action,result}
// * lumberjack_action_duration_seconds{action}
// * lumberjack_energy_regenerated_total
// * lumberjack_commit_conflicts_total
type Metrics struct {
	actions   *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	energy    prometheus.Counter
	conflicts prometheus.Counter
}

// NewMetrics создаёт метрики и регистрирует их в reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lumberjack",
			Name:      "actions_total",
			Help:      "Число обработанных действий по типу и результату.",
		}, []string{"action", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lumberjack",
			Name:      "action_duration_seconds",
			Help:      "Длительность обработки действия, включая запись в хранилище.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}, []string{"action"}),
		energy: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lumberjack",
			Name:      "energy_regenerated_total",
			Help:      "Сколько единиц энергии начислено регенерацией.",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lumberjack",
			Name:      "commit_conflicts_total",
			Help:      "Коммиты, отклонённые проверкой версии мира.",
		}),
	}

	for _, c := range []prometheus.Collector{m.actions, m.duration, m.energy, m.conflicts} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// resultLabel превращает ошибку в значение метки result.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, game.ErrNotEnoughEnergy):
		return "not_enough_energy"
	case errors.Is(err, game.ErrWrongAuthority):
		return "wrong_authority"
	case errors.Is(err, game.ErrTileAlreadyOccupied):
		return "tile_already_occupied"
	case errors.Is(err, game.ErrTileHasNoTree):
		return "tile_has_no_tree"
	case errors.Is(err, game.ErrTileCantBeUpgraded):
		return "tile_cant_be_upgraded"
	case errors.Is(err, game.ErrTileCantBeCollected):
		return "tile_cant_be_collected"
	case errors.Is(err, game.ErrInvalidCoordinate), errors.Is(err, game.ErrInvalidBuildingType):
		return "invalid_argument"
	case errors.Is(err, storage.ErrPlayerNotFound):
		return "player_not_found"
	case errors.Is(err, storage.ErrPlayerExists):
		return "player_exists"
	case errors.Is(err, storage.ErrVersionConflict):
		return "conflict"
	default:
		return "error"
	}
}

func (m *Metrics) observe(action string, err error, seconds float64) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(action, resultLabel(err)).Inc()
	m.duration.WithLabelValues(action).Observe(seconds)
}

func (m *Metrics) regenerated(units uint64) {
	if m == nil || units == 0 {
		return
	}
	m.energy.Add(float64(units))
}

func (m *Metrics) conflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}
