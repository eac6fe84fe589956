// internal/broadcast/hub.go
package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"crypto-signal-screener/pkg/logger"
)

// DefaultQueueSize - глубина очереди потребителя по умолчанию
const DefaultQueueSize = 64

// HubStats - счетчики хаба
type HubStats struct {
	Consumers int   `json:"consumers"`
	Published int64 `json:"published"`
	Delivered int64 `json:"delivered"`
	Dropped   int64 `json:"dropped"`
	Pruned    int64 `json:"pruned"`
}

// Hub - pub/sub-хаб для раздачи событий подключенным потребителям.
// Реестр потребителей - единственный источник истины для рассылки.
// Каждого потребителя обслуживает отдельная горутина с ограниченной
// очередью: медленный или мертвый потребитель не виден ни продюсеру,
// ни остальным потребителям.
type Hub struct {
	mu        sync.RWMutex
	consumers map[string]*consumer
	queueSize int

	wg sync.WaitGroup

	published int64
	delivered int64
	dropped   int64
	pruned    int64
}

// NewHub создает хаб с заданной глубиной очереди потребителя
func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		consumers: make(map[string]*consumer),
		queueSize: queueSize,
	}
}

// Register регистрирует потребителя и запускает его доставку.
// Пустой id заменяется сгенерированным. Возвращает итоговый id.
func (h *Hub) Register(id string, sink Sink) string {
	if id == "" {
		id = uuid.New().String()
	}

	c := newConsumer(id, sink, h.queueSize)

	h.mu.Lock()
	if old, exists := h.consumers[id]; exists {
		// Повторная регистрация того же id вытесняет старое соединение
		old.close()
	}
	h.consumers[id] = c
	h.mu.Unlock()

	c.mu.Lock()
	c.state = StateOpen
	c.mu.Unlock()

	h.wg.Add(1)
	go h.deliverLoop(c)

	logger.Debug("🔌 Hub: потребитель %s подключен", id)
	return id
}

// Subscribe добавляет каналы потребителю (идемпотентно)
func (h *Hub) Subscribe(id string, channels ...string) {
	if c, ok := h.consumer(id); ok {
		c.subscribe(channels...)
	}
}

// Unsubscribe убирает каналы; лишние отписки - no-op
func (h *Hub) Unsubscribe(id string, channels ...string) {
	if c, ok := h.consumer(id); ok {
		c.unsubscribe(channels...)
	}
}

// Subscriptions возвращает текущие подписки потребителя
func (h *Hub) Subscriptions(id string) []string {
	if c, ok := h.consumer(id); ok {
		return c.subscriptions()
	}
	return nil
}

// ConsumerState возвращает состояние потребителя
func (h *Hub) ConsumerState(id string) (ConsumerState, bool) {
	if c, ok := h.consumer(id); ok {
		return c.currentState(), true
	}
	return StateClosed, false
}

// Publish раздает событие подписчикам канала (или всем при channel == "").
// Никогда не блокируется: доставка идет через ограниченные очереди
// потребителей, переполнение решается вытеснением самого старого.
func (h *Hub) Publish(event string, data interface{}, channel string) {
	msg := Message{
		ID:        uuid.New().String(),
		Event:     event,
		Data:      data,
		Channel:   channel,
		Timestamp: epochMillis(time.Now()),
	}

	atomic.AddInt64(&h.published, 1)

	h.mu.RLock()
	targets := make([]*consumer, 0, len(h.consumers))
	for _, c := range h.consumers {
		if c.wants(channel) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(msg, &h.dropped)
	}
}

// Disconnect убирает потребителя из реестра; рассылки, идущие
// в этот момент, его просто пропустят
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	c, ok := h.consumers[id]
	if ok {
		delete(h.consumers, id)
	}
	h.mu.Unlock()

	if ok {
		c.close()
		logger.Debug("🔌 Hub: потребитель %s отключен", id)
	}
}

// Shutdown отключает всех потребителей и ждет завершения доставки.
// Ожидание корректно только при Sink с ограниченным временем Send.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	consumers := make([]*consumer, 0, len(h.consumers))
	for _, c := range h.consumers {
		consumers = append(consumers, c)
	}
	h.consumers = make(map[string]*consumer)
	h.mu.Unlock()

	for _, c := range consumers {
		c.close()
	}
	h.wg.Wait()
}

// GetStats возвращает счетчики хаба
func (h *Hub) GetStats() HubStats {
	h.mu.RLock()
	count := len(h.consumers)
	h.mu.RUnlock()

	return HubStats{
		Consumers: count,
		Published: atomic.LoadInt64(&h.published),
		Delivered: atomic.LoadInt64(&h.delivered),
		Dropped:   atomic.LoadInt64(&h.dropped),
		Pruned:    atomic.LoadInt64(&h.pruned),
	}
}

// prune убирает конкретное соединение. Если id уже занят новым
// соединением, новое остается в реестре нетронутым.
func (h *Hub) prune(c *consumer) {
	h.mu.Lock()
	if cur, ok := h.consumers[c.id]; ok && cur == c {
		delete(h.consumers, c.id)
	}
	h.mu.Unlock()
	c.close()
}

func (h *Hub) consumer(id string) (*consumer, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.consumers[id]
	return c, ok
}

// deliverLoop - горутина доставки одного потребителя.
// Ошибка Send означает мертвый транспорт: потребитель выбрасывается
// из реестра, остальных это не касается.
func (h *Hub) deliverLoop(c *consumer) {
	defer h.wg.Done()

	for {
		select {
		case <-c.stop:
			return
		case <-c.notify:
			for _, msg := range c.drain() {
				if err := c.sink.Send(msg); err != nil {
					atomic.AddInt64(&h.pruned, 1)
					logger.Warn("⚠️ Hub: потребитель %s не отвечает, отключаем: %v", c.id, err)
					h.prune(c)
					return
				}
				atomic.AddInt64(&h.delivered, 1)
			}
		}
	}
}
