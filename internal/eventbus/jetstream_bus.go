package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	nats "github.com/nats-io/nats.go"
)

// JetStreamConfig - параметры подключения к JetStream.
type JetStreamConfig struct {
	URL       string        // nats://127.0.0.1:4222
	Stream    string        // Имя стрима, по умолчанию LUMBERJACK
	Subject   string        // Префикс subject, по умолчанию lumberjack.events
	Retention time.Duration // MaxAge сообщений стрима
	// DeliverAll - новые подписки получают всю историю стрима, а не только новые события.
	DeliverAll bool
}

// JetStreamBus реализует EventBus поверх NATS JetStream.
// Событие типа "action.chop" публикуется в subject "<prefix>.action.chop".
type JetStreamBus struct {
	nc        *nats.Conn
	js        nats.JetStreamContext
	cfg       JetStreamConfig
	published uint64
	consumed  uint64
	dropped   uint64
}

// NewJetStreamBus подключается к NATS и гарантирует наличие стрима.
func NewJetStreamBus(cfg JetStreamConfig) (*JetStreamBus, error) {
	if cfg.Stream == "" {
		cfg.Stream = "LUMBERJACK"
	}
	if cfg.Subject == "" {
		cfg.Subject = "lumberjack.events"
	}

	nc, err := nats.Connect(cfg.URL, nats.Name("lumberjack-eventbus"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Drain()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	if _, err = js.StreamInfo(cfg.Stream); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      cfg.Stream,
			Subjects:  []string{cfg.Subject + ".>"},
			Retention: nats.LimitsPolicy,
			MaxAge:    cfg.Retention,
			Storage:   nats.FileStorage,
		})
		if err != nil {
			nc.Drain()
			return nil, fmt.Errorf("add stream: %w", err)
		}
	}

	return &JetStreamBus{nc: nc, js: js, cfg: cfg}, nil
}

func (jb *JetStreamBus) subject(eventType string) string {
	return jb.cfg.Subject + "." + eventType
}

// Publish сериализует Envelope в JSON и ждёт подтверждения стрима.
// Msg-Id = ID события, поэтому повторная публикация дедуплицируется сервером.
func (jb *JetStreamBus) Publish(ctx context.Context, ev *Envelope) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = jb.js.Publish(jb.subject(ev.EventType), data, nats.Context(ctx), nats.MsgId(ev.ID))
	if err != nil {
		atomic.AddUint64(&jb.dropped, 1)
		return fmt.Errorf("jetstream publish %s: %w", ev.EventType, err)
	}
	atomic.AddUint64(&jb.published, 1)
	return nil
}

// Subscribe создаёт эфемерного consumer и вызывает handler для каждого подходящего события.
func (jb *JetStreamBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	subj := jb.cfg.Subject + ".>"
	if len(f.Types) == 1 {
		subj = jb.subject(f.Types[0])
	}

	deliver := nats.DeliverNew()
	if jb.cfg.DeliverAll {
		deliver = nats.DeliverAll()
	}

	natSub, err := jb.js.Subscribe(subj, func(msg *nats.Msg) {
		var ev Envelope
		if err := json.Unmarshal(msg.Data, &ev); err == nil && matchFilter(&ev, f) {
			h(ctx, &ev)
			atomic.AddUint64(&jb.consumed, 1)
		}
		_ = msg.Ack()
	}, nats.ManualAck(), deliver, nats.AckWait(30*time.Second))
	if err != nil {
		return nil, err
	}

	sub := &jetSub{s: natSub}
	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()
	return sub, nil
}

// jetSub обёртка вокруг *nats.Subscription.
type jetSub struct {
	s    *nats.Subscription
	done int32
}

func (j *jetSub) Unsubscribe() {
	if atomic.CompareAndSwapInt32(&j.done, 0, 1) {
		_ = j.s.Unsubscribe()
	}
}

// Metrics возвращает текущие метрики.
func (jb *JetStreamBus) Metrics() Stats {
	return Stats{
		Published: atomic.LoadUint64(&jb.published),
		Consumed:  atomic.LoadUint64(&jb.consumed),
		Dropped:   atomic.LoadUint64(&jb.dropped),
	}
}

// EventTypeFromSubject восстанавливает тип события из subject.
func (jb *JetStreamBus) EventTypeFromSubject(subject string) string {
	return strings.TrimPrefix(subject, jb.cfg.Subject+".")
}

func (jb *JetStreamBus) Close() error {
	return jb.nc.Drain()
}
