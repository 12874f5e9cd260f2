package eventbus

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/annel0/lumberjack/internal/game"
	"github.com/annel0/lumberjack/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, bus EventBus, f Filter, want int) func() []*Envelope {
	t.Helper()
	var mu sync.Mutex
	got := make([]*Envelope, 0, want)
	done := make(chan struct{})
	_, err := bus.Subscribe(context.Background(), f, func(ctx context.Context, ev *Envelope) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
		if len(got) == want {
			close(done)
		}
	})
	require.NoError(t, err)

	return func() []*Envelope {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("получено меньше %d событий", want)
		}
		mu.Lock()
		defer mu.Unlock()
		return append([]*Envelope(nil), got...)
	}
}

func TestMemoryBus_FilterAndOrder(t *testing.T) {
	bus := NewMemoryBus(64)
	defer bus.Close()

	wait := collect(t, bus, Filter{Types: []string{EventActionChop}}, 3)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ev, err := NewEnvelope(EventActionChop, "node-1", ActionEvent{Action: game.GameAction{ActionID: uint64(i)}})
		require.NoError(t, err)
		require.NoError(t, bus.Publish(ctx, ev))

		other, err := NewEnvelope(EventPlayerInit, "node-1", PlayerInitEvent{Name: "x"})
		require.NoError(t, err)
		require.NoError(t, bus.Publish(ctx, other))
	}

	got := wait()
	for i, ev := range got {
		assert.Equal(t, EventActionChop, ev.EventType)
		var payload ActionEvent
		require.NoError(t, ev.Decode(&payload))
		assert.Equal(t, uint64(i), payload.Action.ActionID, "Порядок публикации сохраняется")
	}
	assert.Equal(t, uint64(6), bus.Metrics().Published)
}

func TestMemoryBus_Closed(t *testing.T) {
	bus := NewMemoryBus(4)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close(), "Повторное закрытие безопасно")

	ev, _ := NewEnvelope(EventPlayerInit, "n", PlayerInitEvent{})
	assert.ErrorIs(t, bus.Publish(context.Background(), ev), ErrBusClosed)
}

func TestNewEnvelope(t *testing.T) {
	ev, err := NewEnvelope(ActionEventType(game.ActionUpgrade), "node", ActionEvent{Wood: 5})
	require.NoError(t, err)
	assert.Equal(t, EventActionUpgrade, ev.EventType)
	assert.Len(t, ev.ID, 36, "UUID")
	assert.Equal(t, 1, ev.Version)
}

func TestLogEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWriterLogger("events", &buf, logging.INFO)

	chop, err := NewEnvelope(EventActionChop, "node-1", ActionEvent{
		Action: game.GameAction{ActionID: 42, ActionType: game.ActionChop, X: 3, Y: 4,
			Tile: game.Tile{BuildingType: game.BuildingEmpty}},
		Wood:         5,
		WorldVersion: 9,
	})
	require.NoError(t, err)
	logEvent(logger, chop)

	initEv, err := NewEnvelope(EventPlayerInit, "node-1", PlayerInitEvent{Name: "Alice"})
	require.NoError(t, err)
	logEvent(logger, initEv)

	broken := &Envelope{ID: "x", EventType: EventActionBuild, Payload: []byte("{")}
	logEvent(logger, broken)

	out := buf.String()
	assert.Contains(t, out, "#42 chop (3,4) → empty wood=5 stone=0 v9")
	assert.Contains(t, out, `игрок "Alice"`)
	assert.Contains(t, out, "[WARN] [events] ⚠️ x action.build")
}

func TestMetricsExporter_Sync(t *testing.T) {
	bus := NewMemoryBus(8)
	defer bus.Close()
	reg := prometheus.NewRegistry()

	me, err := NewMetricsExporter(bus, reg)
	require.NoError(t, err)

	ev, _ := NewEnvelope(EventPlayerInit, "n", PlayerInitEvent{})
	require.NoError(t, bus.Publish(context.Background(), ev))
	require.NoError(t, bus.Publish(context.Background(), ev))

	prev := me.sync(Stats{})
	assert.Equal(t, float64(2), testutil.ToFloat64(me.published))
	me.sync(prev)
	assert.Equal(t, float64(2), testutil.ToFloat64(me.published), "Повторная синхронизация не удваивает счётчик")

	_, err = NewMetricsExporter(bus, reg)
	assert.Error(t, err, "Повторная регистрация в том же реестре отклоняется")
}

func TestJetStreamBus_PublishSubscribe(t *testing.T) {
	bus, err := NewJetStreamBus(JetStreamConfig{
		URL:     "nats://127.0.0.1:4222",
		Stream:  "LUMBERJACK_TEST",
		Subject: "lumberjack.test",
	})
	if err != nil {
		t.Skipf("NATS JetStream not available, skipping test: %v", err)
		return
	}
	defer bus.Close()

	wait := collect(t, bus, Filter{Types: []string{EventActionBuild}}, 1)

	ev, err := NewEnvelope(EventActionBuild, "node", ActionEvent{Stone: 1})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), ev))

	got := wait()
	assert.Equal(t, ev.ID, got[0].ID)
	assert.Equal(t, "action.build", bus.EventTypeFromSubject("lumberjack.test.action.build"))
}
