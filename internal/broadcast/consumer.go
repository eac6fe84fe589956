// internal/broadcast/consumer.go
package broadcast

import (
	"sync"
	"sync/atomic"
)

// consumer - один подключенный потребитель с собственной очередью
// доставки. Очередь ограничена; при переполнении вытесняется самое
// старое сообщение того же канала (свежесть важнее полноты для
// живой ленты).
type consumer struct {
	id   string
	sink Sink

	mu       sync.Mutex
	state    ConsumerState
	channels map[string]struct{}
	queue    []Message
	maxQueue int

	notify   chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

func newConsumer(id string, sink Sink, maxQueue int) *consumer {
	return &consumer{
		id:       id,
		sink:     sink,
		state:    StateConnecting,
		channels: make(map[string]struct{}),
		maxQueue: maxQueue,
		notify:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// subscribe добавляет каналы в множество подписок (идемпотентно)
func (c *consumer) subscribe(channels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return
	}
	for _, ch := range channels {
		c.channels[ch] = struct{}{}
	}
	if len(c.channels) > 0 {
		c.state = StateSubscribed
	}
}

// unsubscribe убирает каналы; отписка от неподписанного - no-op
func (c *consumer) unsubscribe(channels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range channels {
		delete(c.channels, ch)
	}
	if len(c.channels) == 0 && c.state == StateSubscribed {
		c.state = StateOpen
	}
}

// wants сообщает, должен ли потребитель получить сообщение канала.
// Пустой канал - широковещание, доходит до всех.
func (c *consumer) wants(channel string) bool {
	if channel == "" {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.channels[channel]
	return ok
}

// subscriptions возвращает копию множества подписок
func (c *consumer) subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		result = append(result, ch)
	}
	return result
}

// enqueue кладет сообщение в очередь, не блокируясь.
// При переполнении вытесняет самое старое сообщение того же канала
// (или просто самое старое, если таких нет) и увеличивает dropped.
func (c *consumer) enqueue(msg Message, dropped *int64) {
	c.mu.Lock()

	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}

	if len(c.queue) >= c.maxQueue {
		victim := 0
		for i, queued := range c.queue {
			if queued.Channel == msg.Channel {
				victim = i
				break
			}
		}
		c.queue = append(c.queue[:victim], c.queue[victim+1:]...)
		atomic.AddInt64(dropped, 1)
	}

	c.queue = append(c.queue, msg)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// drain забирает всё накопленное из очереди
func (c *consumer) drain() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 {
		return nil
	}
	batch := c.queue
	c.queue = nil
	return batch
}

// close переводит потребителя в терминальное состояние
func (c *consumer) close() {
	c.mu.Lock()
	c.state = StateClosed
	c.queue = nil
	c.mu.Unlock()

	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *consumer) currentState() ConsumerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
