// internal/market/store_test.go
package market

import (
	"math"
	"testing"
	"time"

	"crypto-signal-screener/internal/types"
)

func candleAt(openTime int64, close, volume float64) types.Candle {
	return types.Candle{
		OpenTime: time.Unix(openTime, 0),
		Open:     close,
		High:     close,
		Low:      close,
		Close:    close,
		Volume:   volume,
	}
}

func TestUpsertCandleCapacityAndOrder(t *testing.T) {
	store := NewStore(StoreConfig{CandleCapacity: 5, VolumeHistoryCapacity: 20})

	for i := 0; i < 12; i++ {
		store.UpsertCandle("BTCUSDT", "1", candleAt(int64(i*60), 100+float64(i), 10))
	}

	got := store.GetCandles("BTCUSDT", "1")
	if len(got) != 5 {
		t.Fatalf("expected 5 candles after eviction, got %d", len(got))
	}

	for i := 1; i < len(got); i++ {
		if !got[i-1].OpenTime.Before(got[i].OpenTime) {
			t.Fatalf("candles not sorted ascending at index %d", i)
		}
	}

	// Самые старые вытеснены, остались 7..11
	if got[0].OpenTime != time.Unix(7*60, 0) {
		t.Errorf("expected oldest surviving candle at t=420, got %v", got[0].OpenTime)
	}
}

func TestUpsertCandleReplacesInPlace(t *testing.T) {
	store := NewStore(DefaultStoreConfig())

	store.UpsertCandle("BTCUSDT", "1", candleAt(60, 100, 10))
	store.UpsertCandle("BTCUSDT", "1", candleAt(120, 101, 11))
	store.UpsertCandle("BTCUSDT", "1", candleAt(120, 105, 42)) // бар еще формируется

	got := store.GetCandles("BTCUSDT", "1")
	if len(got) != 2 {
		t.Fatalf("expected series length 2 after in-place replace, got %d", len(got))
	}
	if got[1].Close != 105 || got[1].Volume != 42 {
		t.Errorf("expected replaced candle close=105 volume=42, got close=%v volume=%v", got[1].Close, got[1].Volume)
	}
}

func TestUpsertCandleSortsOutOfOrder(t *testing.T) {
	store := NewStore(DefaultStoreConfig())

	store.UpsertCandle("BTCUSDT", "1", candleAt(180, 102, 10))
	store.UpsertCandle("BTCUSDT", "1", candleAt(60, 100, 10))

	got := store.GetCandles("BTCUSDT", "1")
	if got[0].OpenTime != time.Unix(60, 0) {
		t.Errorf("expected defensive sort on out-of-order insert, got first openTime %v", got[0].OpenTime)
	}
}

func TestUpdateTickerPartialMerge(t *testing.T) {
	store := NewStore(DefaultStoreConfig())

	price := 50000.0
	volume := 1000.0
	store.UpdateTicker("BTCUSDT", types.TickerUpdate{LastPrice: &price, Volume24h: &volume})

	change := 3.5
	store.UpdateTicker("BTCUSDT", types.TickerUpdate{Change24h: &change})

	ticker, ok := store.GetTicker("BTCUSDT")
	if !ok {
		t.Fatal("expected ticker to exist")
	}
	if ticker.LastPrice != 50000 {
		t.Errorf("unspecified field must retain prior value, got last price %v", ticker.LastPrice)
	}
	if ticker.Change24h != 3.5 {
		t.Errorf("expected change 3.5, got %v", ticker.Change24h)
	}
}

func TestMalformedFieldDroppedRecordProceeds(t *testing.T) {
	store := NewStore(DefaultStoreConfig())

	price := 50000.0
	store.UpdateTicker("BTCUSDT", types.TickerUpdate{LastPrice: &price})

	bad := math.NaN()
	turnover := 2_000_000.0
	store.UpdateTicker("BTCUSDT", types.TickerUpdate{LastPrice: &bad, Turnover24h: &turnover})

	ticker, _ := store.GetTicker("BTCUSDT")
	if ticker.LastPrice != 50000 {
		t.Errorf("NaN field must be dropped, prior price retained, got %v", ticker.LastPrice)
	}
	if ticker.Turnover24h != 2_000_000 {
		t.Errorf("valid field of the same record must still apply, got %v", ticker.Turnover24h)
	}
	if store.GetStats().DroppedFields != 1 {
		t.Errorf("expected 1 dropped field counted, got %d", store.GetStats().DroppedFields)
	}
}

func TestReplaceOrderBookAtomicSwap(t *testing.T) {
	store := NewStore(DefaultStoreConfig())

	store.ReplaceOrderBook("BTCUSDT", types.OrderBookSnapshot{
		Bids: []types.PriceLevel{{Price: 100, Size: 1}},
		Asks: []types.PriceLevel{{Price: 101, Size: 1}},
	})
	store.ReplaceOrderBook("BTCUSDT", types.OrderBookSnapshot{
		Bids: []types.PriceLevel{{Price: 99, Size: 2}},
		Asks: []types.PriceLevel{{Price: 102, Size: 3}},
	})

	book, ok := store.GetOrderBook("BTCUSDT")
	if !ok {
		t.Fatal("expected orderbook to exist")
	}
	if len(book.Bids) != 1 || book.Bids[0].Price != 99 {
		t.Errorf("expected fully replaced book, got bids %+v", book.Bids)
	}

	// Копия не должна быть связана с внутренним состоянием
	book.Bids[0].Price = 1
	again, _ := store.GetOrderBook("BTCUSDT")
	if again.Bids[0].Price != 99 {
		t.Error("returned snapshot must be an independent copy")
	}
}

func TestVolumeHistoryBounded(t *testing.T) {
	store := NewStore(StoreConfig{CandleCapacity: 100, VolumeHistoryCapacity: 20})

	for i := 0; i < 30; i++ {
		store.PushVolumeSample("BTCUSDT", float64(i))
	}

	history := store.GetVolumeHistory("BTCUSDT")
	if len(history) != 20 {
		t.Fatalf("expected history capped at 20, got %d", len(history))
	}
	if history[0] != 10 || history[19] != 29 {
		t.Errorf("expected oldest evicted FIFO, got [%v..%v]", history[0], history[19])
	}
}

func TestUnknownSymbolReads(t *testing.T) {
	store := NewStore(DefaultStoreConfig())

	if got := store.GetCandles("NOPE", "1"); len(got) != 0 {
		t.Errorf("expected empty candles for unknown symbol, got %d", len(got))
	}
	if _, ok := store.GetOrderBook("NOPE"); ok {
		t.Error("expected no orderbook for unknown symbol")
	}
	if _, ok := store.GetTicker("NOPE"); ok {
		t.Error("expected no ticker for unknown symbol")
	}
	if got := store.GetVolumeHistory("NOPE"); got != nil {
		t.Errorf("expected nil volume history for unknown symbol, got %v", got)
	}
}

func TestTopSymbolsByVolume(t *testing.T) {
	store := NewStore(DefaultStoreConfig())

	for symbol, volume := range map[string]float64{"AAA": 10, "BBB": 30, "CCC": 20} {
		v := volume
		store.UpdateTicker(symbol, types.TickerUpdate{Volume24h: &v})
	}

	top := store.GetTopSymbolsByVolume(2)
	if len(top) != 2 || top[0].Symbol != "BBB" || top[1].Symbol != "CCC" {
		t.Errorf("unexpected top symbols: %+v", top)
	}
}
