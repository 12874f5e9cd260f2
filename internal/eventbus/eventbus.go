package eventbus

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Envelope описывает универсальный контейнер события.
type Envelope struct {
	ID            string            `json:"id"`             // UUID события
	Timestamp     time.Time         `json:"timestamp"`      // Время создания (UTC)
	Source        string            `json:"source"`         // Имя узла-источника
	EventType     string            `json:"event_type"`     // action.chop, player.init, ...
	Version       int               `json:"version"`        // Схема полезной нагрузки
	CorrelationID string            `json:"correlation_id"` // ID HTTP-запроса, породившего событие
	Priority      int               `json:"priority"`       // 0=Low … 9=Critical (для backpressure)
	Payload       []byte            `json:"payload"`        // JSON полезной нагрузки
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Filter позволяет подписаться только на нужные события.
type Filter struct {
	Types   []string // Если пусто - все типы.
	Sources []string // Если пусто - все источники.
}

// Subscription возвращается при подписке; позволяет отписаться.
type Subscription interface {
	Unsubscribe()
}

// Handler потребляет события.
type Handler func(ctx context.Context, ev *Envelope)

// Stats агрегированные метрики шины.
type Stats struct {
	Published uint64
	Consumed  uint64
	Dropped   uint64
	InFlight  int
}

// EventBus определяет абстракцию шины событий.
type EventBus interface {
	Publish(ctx context.Context, ev *Envelope) error
	Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error)
	Metrics() Stats
	Close() error
}

var ErrBusClosed = errors.New("eventbus: closed")

//================ In-Memory implementation =================//

// MemoryBus доставляет события подписчикам внутри процесса.
// Каждый подписчик получает события в порядке публикации.
type MemoryBus struct {
	mu          sync.RWMutex
	subscribers map[int]*subscriber
	nextID      int
	stats       Stats
	buffer      chan *Envelope
	closed      bool
	done        chan struct{}
}

type subscriber struct {
	filter Filter
	queue  chan *Envelope
	cancel context.CancelFunc
}

// NewMemoryBus создаёт in-memory шину с указанным буфером.
func NewMemoryBus(capacity int) *MemoryBus {
	if capacity <= 0 {
		capacity = 1024
	}
	mb := &MemoryBus{
		subscribers: make(map[int]*subscriber),
		buffer:      make(chan *Envelope, capacity),
		done:        make(chan struct{}),
	}
	go mb.dispatchLoop()
	return mb
}

func (mb *MemoryBus) Publish(ctx context.Context, ev *Envelope) error {
	ok, err := mb.tryEnqueue(ev)
	if err != nil || ok {
		return err
	}

	// Буфер заполнен - низкий приоритет (<5) отбрасываем
	if ev.Priority < 5 {
		mb.count(func(s *Stats) { s.Dropped++ })
		return nil
	}

	// Высокий приоритет ждёт места в буфере или отмены контекста
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if ok, err := mb.tryEnqueue(ev); err != nil || ok {
				return err
			}
		}
	}
}

func (mb *MemoryBus) tryEnqueue(ev *Envelope) (bool, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return false, ErrBusClosed
	}
	select {
	case mb.buffer <- ev:
		mb.stats.Published++
		return true, nil
	default:
		return false, nil
	}
}

func (mb *MemoryBus) count(f func(*Stats)) {
	mb.mu.Lock()
	f(&mb.stats)
	mb.mu.Unlock()
}

func (mb *MemoryBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return nil, ErrBusClosed
	}

	id := mb.nextID
	mb.nextID++
	cctx, cancel := context.WithCancel(ctx)
	sub := &subscriber{filter: f, queue: make(chan *Envelope, cap(mb.buffer)), cancel: cancel}
	mb.subscribers[id] = sub

	go func() {
		for {
			select {
			case <-cctx.Done():
				return
			case ev, ok := <-sub.queue:
				if !ok {
					return
				}
				h(cctx, ev)
				mb.count(func(s *Stats) { s.Consumed++ })
			}
		}
	}()

	return &memSub{bus: mb, id: id}, nil
}

func (mb *MemoryBus) Metrics() Stats {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	s := mb.stats
	s.InFlight = len(mb.buffer)
	return s
}

// Close останавливает рассылку. Уже принятые события доставляются.
func (mb *MemoryBus) Close() error {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return nil
	}
	mb.closed = true
	close(mb.buffer)
	mb.mu.Unlock()

	<-mb.done
	return nil
}

// dispatchLoop раскладывает события по очередям подписчиков.
func (mb *MemoryBus) dispatchLoop() {
	defer close(mb.done)
	for ev := range mb.buffer {
		mb.mu.Lock()
		for _, sub := range mb.subscribers {
			if !matchFilter(ev, sub.filter) {
				continue
			}
			select {
			case sub.queue <- ev:
			default:
				// Подписчик не успевает - событие для него теряется
				mb.stats.Dropped++
			}
		}
		mb.mu.Unlock()
	}

	mb.mu.Lock()
	for id, sub := range mb.subscribers {
		close(sub.queue)
		delete(mb.subscribers, id)
	}
	mb.mu.Unlock()
}

func matchFilter(ev *Envelope, f Filter) bool {
	match := func(val string, arr []string) bool {
		if len(arr) == 0 {
			return true
		}
		for _, v := range arr {
			if v == val {
				return true
			}
		}
		return false
	}
	return match(ev.EventType, f.Types) && match(ev.Source, f.Sources)
}

type memSub struct {
	bus *MemoryBus
	id  int
}

func (s *memSub) Unsubscribe() {
	s.bus.mu.Lock()
	if sub, ok := s.bus.subscribers[s.id]; ok {
		sub.cancel()
		delete(s.bus.subscribers, s.id)
	}
	s.bus.mu.Unlock()
}
