package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/lumberjack/internal/logging"
	"github.com/nats-io/nats.go"
)

// NATSInvalidator рассылает инвалидации кеша между узлами через NATS Pub/Sub.
// Собственные сообщения узла игнорируются. При DedupeWindow > 0 повторная
// публикация одного ключа в пределах окна подавляется.
type NATSInvalidator struct {
	conn   *nats.Conn
	config *InvalidatorConfig
	nodeID string

	subMu        sync.Mutex
	subscription *nats.Subscription

	stopCh chan struct{}
	wg     sync.WaitGroup

	recentKeys map[string]time.Time
	keysMutex  sync.Mutex

	publishedCount int64
	receivedCount  int64
	errorsCount    int64
}

// InvalidatorConfig содержит конфигурацию для NATS invalidator.
type InvalidatorConfig struct {
	NATSURL       string        `yaml:"nats_url"`
	Subject       string        `yaml:"subject"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	DedupeWindow  time.Duration `yaml:"dedupe_window"`
}

// InvalidationMessage - тело сообщения об инвалидации.
type InvalidationMessage struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"node_id"`
}

// NewNATSInvalidator подключается к NATS.
func NewNATSInvalidator(config *InvalidatorConfig, nodeID string) (*NATSInvalidator, error) {
	if config.Subject == "" {
		config.Subject = "lumberjack.cache.invalidate"
	}
	if config.MaxReconnects == 0 {
		config.MaxReconnects = 10
	}
	if config.ReconnectWait == 0 {
		config.ReconnectWait = 2 * time.Second
	}

	opts := []nats.Option{
		nats.Name("lumberjack-invalidator-" + nodeID),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.Warn("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(config.NATSURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	inv := &NATSInvalidator{
		conn:       conn,
		config:     config,
		nodeID:     nodeID,
		stopCh:     make(chan struct{}),
		recentKeys: make(map[string]time.Time),
	}
	if config.DedupeWindow > 0 {
		inv.wg.Add(1)
		go inv.dedupeCleanupLoop()
	}

	logging.Info("📡 NATS invalidator initialized: %s (subject: %s)", config.NATSURL, config.Subject)
	return inv, nil
}

// PublishInvalidation отправляет уведомление об инвалидации ключа.
func (n *NATSInvalidator) PublishInvalidation(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.seenRecently(key) {
		return nil
	}

	data, err := json.Marshal(InvalidationMessage{Key: key, Timestamp: time.Now(), NodeID: n.nodeID})
	if err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		return fmt.Errorf("failed to marshal invalidation message: %w", err)
	}

	if err := n.conn.Publish(n.config.Subject, data); err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	atomic.AddInt64(&n.publishedCount, 1)
	return nil
}

// SubscribeInvalidations подписывается на уведомления других узлов.
// Подписка снимается при отмене ctx или Close.
func (n *NATSInvalidator) SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error {
	n.subMu.Lock()
	defer n.subMu.Unlock()

	if n.subscription != nil {
		return fmt.Errorf("already subscribed to invalidations")
	}

	sub, err := n.conn.Subscribe(n.config.Subject, func(msg *nats.Msg) {
		n.handleMessage(msg, handler)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to invalidations: %w", err)
	}
	n.subscription = sub

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		select {
		case <-ctx.Done():
		case <-n.stopCh:
		}
		n.unsubscribe()
	}()

	logging.Info("Subscribed to cache invalidations on subject: %s", n.config.Subject)
	return nil
}

func (n *NATSInvalidator) handleMessage(msg *nats.Msg, handler InvalidationHandler) {
	atomic.AddInt64(&n.receivedCount, 1)

	var m InvalidationMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		logging.Error("Failed to unmarshal invalidation message: %v", err)
		return
	}
	if m.NodeID == n.nodeID {
		return
	}

	if err := handler(m.Key); err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		logging.Error("Invalidation handler failed for key %s: %v", m.Key, err)
	}
}

func (n *NATSInvalidator) unsubscribe() {
	n.subMu.Lock()
	defer n.subMu.Unlock()

	if n.subscription == nil {
		return
	}
	if err := n.subscription.Unsubscribe(); err != nil {
		logging.Error("Failed to unsubscribe from invalidations: %v", err)
	}
	n.subscription = nil
}

// seenRecently сообщает, публиковался ли ключ в пределах окна, и отмечает его.
func (n *NATSInvalidator) seenRecently(key string) bool {
	if n.config.DedupeWindow <= 0 {
		return false
	}
	n.keysMutex.Lock()
	defer n.keysMutex.Unlock()

	now := time.Now()
	if last, ok := n.recentKeys[key]; ok && now.Sub(last) < n.config.DedupeWindow {
		return true
	}
	n.recentKeys[key] = now
	return false
}

func (n *NATSInvalidator) dedupeCleanupLoop() {
	defer n.wg.Done()

	ticker := time.NewTicker(n.config.DedupeWindow * 10)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.keysMutex.Lock()
			now := time.Now()
			for key, ts := range n.recentKeys {
				if now.Sub(ts) > n.config.DedupeWindow {
					delete(n.recentKeys, key)
				}
			}
			n.keysMutex.Unlock()
		case <-n.stopCh:
			return
		}
	}
}

// Stats возвращает счётчики для /api/server.
func (n *NATSInvalidator) Stats() map[string]interface{} {
	return map[string]interface{}{
		"published": atomic.LoadInt64(&n.publishedCount),
		"received":  atomic.LoadInt64(&n.receivedCount),
		"errors":    atomic.LoadInt64(&n.errorsCount),
		"connected": n.conn.IsConnected(),
	}
}

func (n *NATSInvalidator) Close() error {
	close(n.stopCh)
	n.wg.Wait()
	n.unsubscribe()
	n.conn.Close()
	logging.Info("NATS invalidator closed")
	return nil
}
