// internal/broadcast/hub_test.go
package broadcast

import (
	"errors"
	"testing"
	"time"
)

// chanSink собирает доставленные сообщения в канал
type chanSink struct {
	received chan Message
}

func newChanSink() *chanSink {
	return &chanSink{received: make(chan Message, 128)}
}

func (s *chanSink) Send(msg Message) error {
	s.received <- msg
	return nil
}

// blockSink висит в Send, пока его не отпустят
type blockSink struct {
	release chan struct{}
	started chan struct{}
}

func newBlockSink() *blockSink {
	return &blockSink{
		release: make(chan struct{}),
		started: make(chan struct{}, 1),
	}
}

func (s *blockSink) Send(msg Message) error {
	select {
	case s.started <- struct{}{}:
	default:
	}
	<-s.release
	return nil
}

// errSink всегда отказывает
type errSink struct{}

func (s *errSink) Send(msg Message) error { return errors.New("broken pipe") }

func waitFor(t *testing.T, ch chan Message, timeout time.Duration) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatal("timed out waiting for delivery")
		return Message{}
	}
}

func TestPublishDeliversOnlyToSubscribedChannel(t *testing.T) {
	hub := NewHub(16)
	defer hub.Shutdown()

	marketSink := newChanSink()
	signalsSink := newChanSink()

	hub.Register("market-consumer", marketSink)
	hub.Subscribe("market-consumer", "market")

	hub.Register("signals-consumer", signalsSink)
	hub.Subscribe("signals-consumer", "signals")

	hub.Publish("tick", map[string]string{"symbol": "BTCUSDT"}, "market")

	msg := waitFor(t, marketSink.received, time.Second)
	if msg.Channel != "market" || msg.Event != "tick" {
		t.Errorf("unexpected message %+v", msg)
	}

	select {
	case msg := <-signalsSink.received:
		t.Fatalf("signals-only consumer must not receive market publish, got %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPublishWithoutChannelReachesEveryone(t *testing.T) {
	hub := NewHub(16)
	defer hub.Shutdown()

	a := newChanSink()
	b := newChanSink()

	hub.Register("a", a)
	hub.Subscribe("a", "market")
	hub.Register("b", b) // вообще без подписок

	hub.Publish("system", "shutdown soon", "")

	waitFor(t, a.received, time.Second)
	waitFor(t, b.received, time.Second)
}

func TestSlowConsumerDoesNotDelayOthers(t *testing.T) {
	hub := NewHub(16)
	defer hub.Shutdown()

	slow := newBlockSink()
	fast := newChanSink()

	hub.Register("slow", slow)
	hub.Subscribe("slow", "market")
	hub.Register("fast", fast)
	hub.Subscribe("fast", "market")

	hub.Publish("tick", 1, "market")

	// Медленный завяз в Send
	select {
	case <-slow.started:
	case <-time.After(time.Second):
		t.Fatal("slow sink never got the message")
	}

	// Быстрый при этом получает всё без задержки
	for i := 0; i < 5; i++ {
		hub.Publish("tick", i, "market")
	}

	deadline := time.After(time.Second)
	got := 0
	for got < 6 {
		select {
		case <-fast.received:
			got++
		case <-deadline:
			t.Fatalf("fast consumer starved behind the slow one: got %d of 6", got)
		}
	}

	close(slow.release)
}

func TestSubscribeUnsubscribeIdempotent(t *testing.T) {
	hub := NewHub(16)
	defer hub.Shutdown()

	hub.Register("c", newChanSink())

	hub.Subscribe("c", "market")
	hub.Subscribe("c", "market")
	if subs := hub.Subscriptions("c"); len(subs) != 1 {
		t.Fatalf("double subscribe must keep set unchanged, got %v", subs)
	}

	hub.Unsubscribe("c", "market")
	hub.Unsubscribe("c", "market")
	hub.Unsubscribe("c", "never-subscribed")
	if subs := hub.Subscriptions("c"); len(subs) != 0 {
		t.Fatalf("unsubscribe must be idempotent, got %v", subs)
	}
}

func TestFailedConsumerIsPruned(t *testing.T) {
	hub := NewHub(16)
	defer hub.Shutdown()

	healthy := newChanSink()

	hub.Register("broken", &errSink{})
	hub.Subscribe("broken", "market")
	hub.Register("healthy", healthy)
	hub.Subscribe("healthy", "market")

	hub.Publish("tick", 1, "market")
	waitFor(t, healthy.received, time.Second)

	// Сломанный вылетает из реестра
	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := hub.ConsumerState("broken"); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("broken consumer was not pruned")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if hub.GetStats().Pruned != 1 {
		t.Errorf("pruned counter = %d, want 1", hub.GetStats().Pruned)
	}
}

func TestStalePruneKeepsReRegisteredConsumer(t *testing.T) {
	hub := NewHub(16)
	defer hub.Shutdown()

	hub.Register("c", &errSink{})
	hub.mu.Lock()
	stale := hub.consumers["c"]
	hub.mu.Unlock()

	// Переподключение того же id вытесняет старое соединение
	hub.Register("c", newChanSink())

	// Запоздавший prune от старого цикла доставки не трогает нового
	hub.prune(stale)

	if state, ok := hub.ConsumerState("c"); !ok || state != StateOpen {
		t.Fatalf("re-registered consumer must stay in the registry, state=%s ok=%v", state, ok)
	}
}

func TestQueueOverflowDropsOldestSameChannel(t *testing.T) {
	c := newConsumer("c", newChanSink(), 2)
	c.state = StateOpen
	c.subscribe("market", "signals")

	var dropped int64
	c.enqueue(Message{ID: "1", Channel: "signals"}, &dropped)
	c.enqueue(Message{ID: "2", Channel: "market"}, &dropped)
	c.enqueue(Message{ID: "3", Channel: "market"}, &dropped)

	if dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}

	batch := c.drain()
	if len(batch) != 2 {
		t.Fatalf("queue length = %d, want 2", len(batch))
	}
	// Вытеснено самое старое сообщение канала market, а не чужого
	if batch[0].ID != "1" || batch[1].ID != "3" {
		t.Errorf("expected [1 3] after overflow, got [%s %s]", batch[0].ID, batch[1].ID)
	}
}

func TestConsumerStateMachine(t *testing.T) {
	hub := NewHub(16)
	defer hub.Shutdown()

	hub.Register("c", newChanSink())
	if state, _ := hub.ConsumerState("c"); state != StateOpen {
		t.Errorf("after register state = %s, want open", state)
	}

	hub.Subscribe("c", "market")
	if state, _ := hub.ConsumerState("c"); state != StateSubscribed {
		t.Errorf("after subscribe state = %s, want subscribed", state)
	}

	hub.Unsubscribe("c", "market")
	if state, _ := hub.ConsumerState("c"); state != StateOpen {
		t.Errorf("after full unsubscribe state = %s, want open", state)
	}

	hub.Disconnect("c")
	if _, ok := hub.ConsumerState("c"); ok {
		t.Error("disconnected consumer must leave the registry")
	}
}
