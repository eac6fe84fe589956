// internal/screener/service_test.go
package screener

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"crypto-signal-screener/internal/broadcast"
	"crypto-signal-screener/internal/config"
	"crypto-signal-screener/internal/infrastructure/persistence/postgres"
	"crypto-signal-screener/internal/market"
	"crypto-signal-screener/internal/signals"
	"crypto-signal-screener/internal/types"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	cfg := types.DefaultScreenerConfig()
	cfg.MinAlertInterval = 0 // без rate limit в тестах маршрутизации

	thresholds, err := config.NewStore(cfg)
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}

	store := market.NewStore(market.DefaultStoreConfig())
	aggregator := signals.NewAggregator(store, thresholds, "1")
	hub := broadcast.NewHub(16)

	return NewService(store, aggregator, hub, thresholds, "1", 30*time.Second)
}

func floatPtr(v float64) *float64 { return &v }

func TestIngestRoutesKline(t *testing.T) {
	s := newTestService(t)

	s.Ingest(types.FeedEvent{
		Type:   types.FeedKline,
		Symbol: "BTCUSDT",
		Candle: &types.CandleUpdate{
			Interval: "1",
			Candle: types.Candle{
				OpenTime: time.UnixMilli(1700000000000),
				Open:     100, High: 110, Low: 95, Close: 105, Volume: 42,
			},
		},
	})

	candles := s.store.GetCandles("BTCUSDT", "1")
	if len(candles) != 1 || candles[0].Close != 105 {
		t.Fatalf("candles = %+v, want one bar with close 105", candles)
	}
	if s.GetStats().Ingested != 1 {
		t.Errorf("Ingested = %d, want 1", s.GetStats().Ingested)
	}
}

func TestIngestRoutesTickerAndVolumeSample(t *testing.T) {
	s := newTestService(t)

	s.Ingest(types.FeedEvent{
		Type:   types.FeedTicker,
		Symbol: "ETHUSDT",
		Ticker: &types.TickerUpdate{
			LastPrice: floatPtr(2000),
			Volume24h: floatPtr(5000),
			UpdatedAt: time.Now(),
		},
	})

	ticker, ok := s.store.GetTicker("ETHUSDT")
	if !ok {
		t.Fatal("ticker not found")
	}
	if ticker.LastPrice != 2000 || ticker.Volume24h != 5000 {
		t.Errorf("ticker = %+v", ticker)
	}
	history := s.store.GetVolumeHistory("ETHUSDT")
	if len(history) != 1 || history[0] != 5000 {
		t.Errorf("volume history = %v, want [5000]", history)
	}
}

func TestIngestRoutesOrderBook(t *testing.T) {
	s := newTestService(t)

	s.Ingest(types.FeedEvent{
		Type:   types.FeedOrderBook,
		Symbol: "BTCUSDT",
		OrderBook: &types.OrderBookSnapshot{
			Symbol:    "BTCUSDT",
			Bids:      []types.PriceLevel{{Price: 100, Size: 5}},
			Asks:      []types.PriceLevel{{Price: 101, Size: 2}},
			Timestamp: time.Now(),
		},
	})

	book, ok := s.store.GetOrderBook("BTCUSDT")
	if !ok {
		t.Fatal("orderbook not found")
	}
	if len(book.Bids) != 1 || book.Bids[0].Price != 100 {
		t.Errorf("book = %+v", book)
	}
}

func TestIngestIgnoresMalformedEvents(t *testing.T) {
	s := newTestService(t)

	s.Ingest(types.FeedEvent{Type: types.FeedKline, Symbol: ""})
	s.Ingest(types.FeedEvent{Type: types.FeedKline, Symbol: "BTCUSDT"})          // nil Candle
	s.Ingest(types.FeedEvent{Type: "unknown", Symbol: "BTCUSDT"})               // неизвестный тип
	s.Ingest(types.FeedEvent{Type: types.FeedTicker, Symbol: "BTCUSDT"})        // nil Ticker

	if len(s.store.Symbols()) != 0 {
		t.Errorf("symbols = %v, want empty", s.store.Symbols())
	}
}

// collectSink собирает доставленные сообщения
type collectSink struct {
	ch chan broadcast.Message
}

func (c *collectSink) Send(msg broadcast.Message) error {
	c.ch <- msg
	return nil
}

func TestSignalPublishedOnSignalsChannel(t *testing.T) {
	s := newTestService(t)

	sink := &collectSink{ch: make(chan broadcast.Message, 16)}
	id := s.hub.Register("", sink)
	s.hub.Subscribe(id, ChannelSignals)
	defer s.hub.Shutdown()

	// Тикер кита: большой оборот и сильное изменение цены
	s.Ingest(types.FeedEvent{
		Type:   types.FeedTicker,
		Symbol: "BTCUSDT",
		Ticker: &types.TickerUpdate{
			LastPrice:   floatPtr(50000),
			Change24h:   floatPtr(12.0),
			Turnover24h: floatPtr(5_000_000),
			UpdatedAt:   time.Now(),
		},
	})

	select {
	case msg := <-sink.ch:
		if msg.Event != "signal" || msg.Channel != ChannelSignals {
			t.Errorf("unexpected message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("signal was not delivered")
	}
}

// fakeHistory — подменное долговременное хранилище сигналов
type fakeHistory struct {
	mu      sync.Mutex
	records []postgres.EmittedSignalRecord
	fail    bool
	saved   int
}

func (f *fakeHistory) Save(ctx context.Context, id string, state types.AggregateState, emittedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved++
	return nil
}

func (f *fakeHistory) Recent(ctx context.Context, limit int) ([]postgres.EmittedSignalRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("db down")
	}
	if limit <= 0 || limit > len(f.records) {
		limit = len(f.records)
	}
	return f.records[:limit], nil
}

func (f *fakeHistory) RecentBySymbol(ctx context.Context, symbol string, limit int) ([]postgres.EmittedSignalRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("db down")
	}
	out := make([]postgres.EmittedSignalRecord, 0)
	for _, rec := range f.records {
		if rec.Symbol == symbol {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeHistory) CountSince(ctx context.Context, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return 0, errors.New("db down")
	}
	var count int64
	for _, rec := range f.records {
		if !rec.EmittedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func TestGetSignalHistoryReadsRepository(t *testing.T) {
	s := newTestService(t)

	now := time.Now()
	repo := &fakeHistory{records: []postgres.EmittedSignalRecord{
		{ID: uuid.New(), Symbol: "BTCUSDT", SignalStrength: 1, EmittedAt: now},
		{ID: uuid.New(), Symbol: "ETHUSDT", SignalStrength: 0.75, EmittedAt: now.Add(-time.Minute)},
	}}
	s.WithRepository(repo)

	history := s.GetSignalHistory(10)
	if len(history) != 2 {
		t.Fatalf("history = %d записей, want 2", len(history))
	}
	if history[0].State.Symbol != "BTCUSDT" || history[0].State.SignalStrength != 1 {
		t.Errorf("history[0] = %+v", history[0])
	}
	if history[0].ID != repo.records[0].ID.String() {
		t.Errorf("ID = %q, want %q", history[0].ID, repo.records[0].ID.String())
	}

	bySymbol := s.GetSymbolSignalHistory("ETHUSDT", 10)
	if len(bySymbol) != 1 || bySymbol[0].State.Symbol != "ETHUSDT" {
		t.Errorf("bySymbol = %+v", bySymbol)
	}

	count, err := s.SignalCountSince(now.Add(-time.Hour))
	if err != nil || count != 2 {
		t.Errorf("count = %d, err = %v, want 2", count, err)
	}
}

func TestGetSignalHistoryFallsBackToRing(t *testing.T) {
	s := newTestService(t)
	s.WithRepository(&fakeHistory{fail: true})

	// Тикер кита кладет сигнал в кольцо в памяти
	s.Ingest(types.FeedEvent{
		Type:   types.FeedTicker,
		Symbol: "BTCUSDT",
		Ticker: &types.TickerUpdate{
			LastPrice:   floatPtr(50000),
			Change24h:   floatPtr(12.0),
			Turnover24h: floatPtr(5_000_000),
			UpdatedAt:   time.Now(),
		},
	})

	history := s.GetSignalHistory(10)
	if len(history) != 1 || history[0].State.Symbol != "BTCUSDT" {
		t.Fatalf("fallback history = %+v, want one BTCUSDT signal", history)
	}

	bySymbol := s.GetSymbolSignalHistory("BTCUSDT", 10)
	if len(bySymbol) != 1 {
		t.Errorf("bySymbol fallback = %+v", bySymbol)
	}
	if other := s.GetSymbolSignalHistory("ETHUSDT", 10); len(other) != 0 {
		t.Errorf("foreign symbol fallback = %+v, want empty", other)
	}
}

func TestUpdateThresholdsRejectsInvalid(t *testing.T) {
	s := newTestService(t)

	before := s.CurrentThresholds()
	_, err := s.UpdateThresholds(types.ScreenerConfigPatch{
		VolumeSpikeThreshold: floatPtr(0.2),
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if s.CurrentThresholds() != before {
		t.Error("thresholds changed after rejected patch")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	s := newTestService(t)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start should fail")
	}
	s.Stop()
	s.Stop() // повторный Stop безопасен

	// После остановки сервис можно запустить заново
	if err := s.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	s.Stop()
}
