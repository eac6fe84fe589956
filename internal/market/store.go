// internal/market/store.go
package market

import (
	"hash/fnv"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"crypto-signal-screener/internal/types"
)

const (
	shardCount = 16

	// Ёмкости по умолчанию
	DefaultCandleCapacity        = 100
	DefaultVolumeHistoryCapacity = 20
)

// StoreConfig - конфигурация хранилища рыночных данных
type StoreConfig struct {
	CandleCapacity        int
	VolumeHistoryCapacity int
}

// DefaultStoreConfig возвращает конфигурацию по умолчанию
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		CandleCapacity:        DefaultCandleCapacity,
		VolumeHistoryCapacity: DefaultVolumeHistoryCapacity,
	}
}

// StoreStats - счетчики хранилища
type StoreStats struct {
	CandleUpserts  int64 `json:"candle_upserts"`
	TickerUpdates  int64 `json:"ticker_updates"`
	BookReplaces   int64 `json:"book_replaces"`
	VolumeSamples  int64 `json:"volume_samples"`
	DroppedFields  int64 `json:"dropped_fields"` // отброшенные из-за NaN/Inf поля
	TrackedSymbols int   `json:"tracked_symbols"`
}

// symbolState - всё скользящее состояние одного символа.
// Защищается мьютексом шарда, в который попал символ.
type symbolState struct {
	candles       map[string][]types.Candle // interval -> серия, по возрастанию OpenTime
	book          *types.OrderBookSnapshot
	ticker        types.TickerState
	hasTicker     bool
	volumeHistory []float64
}

// shard - один сегмент хранилища со своим замком
type shard struct {
	mu      sync.RWMutex
	symbols map[string]*symbolState
}

// Store - шардированное хранилище скользящих рыночных данных.
// Символ - единица изоляции: обновления разных символов идут
// параллельно, межсимвольных блокировок нет.
type Store struct {
	shards [shardCount]*shard
	config StoreConfig

	candleUpserts int64
	tickerUpdates int64
	bookReplaces  int64
	volumeSamples int64
	droppedFields int64
}

// NewStore создает новое хранилище
func NewStore(config StoreConfig) *Store {
	if config.CandleCapacity <= 0 {
		config.CandleCapacity = DefaultCandleCapacity
	}
	if config.VolumeHistoryCapacity <= 0 {
		config.VolumeHistoryCapacity = DefaultVolumeHistoryCapacity
	}

	s := &Store{config: config}
	for i := range s.shards {
		s.shards[i] = &shard{symbols: make(map[string]*symbolState)}
	}
	return s
}

// shardFor возвращает шард для символа
func (s *Store) shardFor(symbol string) *shard {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return s.shards[h.Sum32()%shardCount]
}

// stateFor возвращает состояние символа, создавая при необходимости.
// Вызывается под write-замком шарда.
func (sh *shard) stateFor(symbol string) *symbolState {
	st, ok := sh.symbols[symbol]
	if !ok {
		st = &symbolState{candles: make(map[string][]types.Candle)}
		sh.symbols[symbol] = st
	}
	return st
}

// finite проверяет, что число пригодно для хранения
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// UpsertCandle вставляет или заменяет свечу.
// Свеча с уже известным OpenTime заменяется на месте (бар еще
// формируется), новая добавляется в конец с вытеснением самой
// старой при переполнении. Некорректные числовые поля отбрасываются
// пополем, остальная часть записи применяется.
func (s *Store) UpsertCandle(symbol, interval string, candle types.Candle) {
	sh := s.shardFor(symbol)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st := sh.stateFor(symbol)
	series := st.candles[interval]

	// Ищем свечу с тем же временем открытия
	idx := -1
	for i := len(series) - 1; i >= 0; i-- {
		if series[i].OpenTime.Equal(candle.OpenTime) {
			idx = i
			break
		}
	}

	if idx >= 0 {
		series[idx] = s.sanitizeCandle(candle, &series[idx])
		st.candles[interval] = series
		atomic.AddInt64(&s.candleUpserts, 1)
		return
	}

	series = append(series, s.sanitizeCandle(candle, nil))

	// Upstream отдает бары по порядку; сортировка - защита на случай,
	// когда это не так
	if len(series) > 1 && series[len(series)-2].OpenTime.After(candle.OpenTime) {
		sort.Slice(series, func(i, j int) bool {
			return series[i].OpenTime.Before(series[j].OpenTime)
		})
	}

	if len(series) > s.config.CandleCapacity {
		series = series[len(series)-s.config.CandleCapacity:]
	}

	st.candles[interval] = series
	atomic.AddInt64(&s.candleUpserts, 1)
}

// sanitizeCandle заменяет NaN/Inf поля предыдущим значением (или нулем)
func (s *Store) sanitizeCandle(c types.Candle, prev *types.Candle) types.Candle {
	fix := func(v float64, old float64) float64 {
		if finite(v) {
			return v
		}
		atomic.AddInt64(&s.droppedFields, 1)
		return old
	}

	var base types.Candle
	if prev != nil {
		base = *prev
	}

	c.Open = fix(c.Open, base.Open)
	c.High = fix(c.High, base.High)
	c.Low = fix(c.Low, base.Low)
	c.Close = fix(c.Close, base.Close)
	c.Volume = fix(c.Volume, base.Volume)
	return c
}

// ReplaceOrderBook атомарно заменяет снимок стакана символа.
// Уровни с некорректными числами отбрасываются, остальные сохраняются.
func (s *Store) ReplaceOrderBook(symbol string, snapshot types.OrderBookSnapshot) {
	snapshot.Symbol = symbol
	snapshot.Bids = s.sanitizeLevels(snapshot.Bids)
	snapshot.Asks = s.sanitizeLevels(snapshot.Asks)

	sh := s.shardFor(symbol)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st := sh.stateFor(symbol)
	st.book = &snapshot
	atomic.AddInt64(&s.bookReplaces, 1)
}

func (s *Store) sanitizeLevels(levels []types.PriceLevel) []types.PriceLevel {
	result := make([]types.PriceLevel, 0, len(levels))
	for _, lvl := range levels {
		if !finite(lvl.Price) || !finite(lvl.Size) {
			atomic.AddInt64(&s.droppedFields, 1)
			continue
		}
		result = append(result, lvl)
	}
	return result
}

// UpdateTicker применяет частичное обновление тикера (last-write-wins).
// nil-поля и некорректные значения не трогают прежнее состояние.
func (s *Store) UpdateTicker(symbol string, update types.TickerUpdate) {
	sh := s.shardFor(symbol)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st := sh.stateFor(symbol)
	st.ticker.Symbol = symbol

	apply := func(dst *float64, src *float64) {
		if src == nil {
			return
		}
		if !finite(*src) {
			atomic.AddInt64(&s.droppedFields, 1)
			return
		}
		*dst = *src
	}

	apply(&st.ticker.LastPrice, update.LastPrice)
	apply(&st.ticker.Change24h, update.Change24h)
	apply(&st.ticker.Volume24h, update.Volume24h)
	apply(&st.ticker.Turnover24h, update.Turnover24h)

	if update.UpdatedAt.IsZero() {
		st.ticker.UpdatedAt = time.Now()
	} else {
		st.ticker.UpdatedAt = update.UpdatedAt
	}

	st.hasTicker = true
	atomic.AddInt64(&s.tickerUpdates, 1)
}

// PushVolumeSample добавляет замер 24h-объема в медленную историю
func (s *Store) PushVolumeSample(symbol string, value float64) {
	if !finite(value) {
		atomic.AddInt64(&s.droppedFields, 1)
		return
	}

	sh := s.shardFor(symbol)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st := sh.stateFor(symbol)
	st.volumeHistory = append(st.volumeHistory, value)
	if len(st.volumeHistory) > s.config.VolumeHistoryCapacity {
		st.volumeHistory = st.volumeHistory[len(st.volumeHistory)-s.config.VolumeHistoryCapacity:]
	}
	atomic.AddInt64(&s.volumeSamples, 1)
}

// GetCandles возвращает копию серии свечей (по возрастанию OpenTime).
// Неизвестный символ или интервал - пустой срез.
func (s *Store) GetCandles(symbol, interval string) []types.Candle {
	sh := s.shardFor(symbol)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	st, ok := sh.symbols[symbol]
	if !ok {
		return nil
	}

	series := st.candles[interval]
	if len(series) == 0 {
		return nil
	}

	result := make([]types.Candle, len(series))
	copy(result, series)
	return result
}

// GetOrderBook возвращает копию последнего снимка стакана
func (s *Store) GetOrderBook(symbol string) (types.OrderBookSnapshot, bool) {
	sh := s.shardFor(symbol)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	st, ok := sh.symbols[symbol]
	if !ok || st.book == nil {
		return types.OrderBookSnapshot{}, false
	}
	return copyBook(*st.book), true
}

func copyBook(book types.OrderBookSnapshot) types.OrderBookSnapshot {
	bids := make([]types.PriceLevel, len(book.Bids))
	copy(bids, book.Bids)
	asks := make([]types.PriceLevel, len(book.Asks))
	copy(asks, book.Asks)
	book.Bids = bids
	book.Asks = asks
	return book
}

// GetTicker возвращает текущее состояние тикера
func (s *Store) GetTicker(symbol string) (types.TickerState, bool) {
	sh := s.shardFor(symbol)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	st, ok := sh.symbols[symbol]
	if !ok || !st.hasTicker {
		return types.TickerState{}, false
	}
	return st.ticker, true
}

// GetVolumeHistory возвращает копию истории 24h-объема
func (s *Store) GetVolumeHistory(symbol string) []float64 {
	sh := s.shardFor(symbol)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	st, ok := sh.symbols[symbol]
	if !ok || len(st.volumeHistory) == 0 {
		return nil
	}

	result := make([]float64, len(st.volumeHistory))
	copy(result, st.volumeHistory)
	return result
}

// Snapshot собирает согласованный снимок состояния символа для детекторов
func (s *Store) Snapshot(symbol, interval string) Snapshot {
	sh := s.shardFor(symbol)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	snap := Snapshot{Symbol: symbol}

	st, ok := sh.symbols[symbol]
	if !ok {
		return snap
	}

	if series := st.candles[interval]; len(series) > 0 {
		snap.Candles = make([]types.Candle, len(series))
		copy(snap.Candles, series)
	}
	if st.book != nil {
		book := copyBook(*st.book)
		snap.Book = &book
	}
	if st.hasTicker {
		ticker := st.ticker
		snap.Ticker = &ticker
	}
	if len(st.volumeHistory) > 0 {
		snap.VolumeHistory = make([]float64, len(st.volumeHistory))
		copy(snap.VolumeHistory, st.volumeHistory)
	}

	return snap
}

// Symbols возвращает отсортированный список известных символов
func (s *Store) Symbols() []string {
	var symbols []string
	for _, sh := range s.shards {
		sh.mu.RLock()
		for symbol := range sh.symbols {
			symbols = append(symbols, symbol)
		}
		sh.mu.RUnlock()
	}
	sort.Strings(symbols)
	return symbols
}

// SymbolVolume - символ с его 24h-объемом
type SymbolVolume struct {
	Symbol string  `json:"symbol"`
	Volume float64 `json:"volume"`
}

// GetTopSymbolsByVolume возвращает топ-N символов по 24h-объему
func (s *Store) GetTopSymbolsByVolume(n int) []SymbolVolume {
	var all []SymbolVolume
	for _, sh := range s.shards {
		sh.mu.RLock()
		for symbol, st := range sh.symbols {
			if st.hasTicker {
				all = append(all, SymbolVolume{Symbol: symbol, Volume: st.ticker.Volume24h})
			}
		}
		sh.mu.RUnlock()
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Volume == all[j].Volume {
			return all[i].Symbol < all[j].Symbol
		}
		return all[i].Volume > all[j].Volume
	})

	if n > 0 && n < len(all) {
		all = all[:n]
	}
	return all
}

// GetStats возвращает счетчики хранилища
func (s *Store) GetStats() StoreStats {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.symbols)
		sh.mu.RUnlock()
	}

	return StoreStats{
		CandleUpserts:  atomic.LoadInt64(&s.candleUpserts),
		TickerUpdates:  atomic.LoadInt64(&s.tickerUpdates),
		BookReplaces:   atomic.LoadInt64(&s.bookReplaces),
		VolumeSamples:  atomic.LoadInt64(&s.volumeSamples),
		DroppedFields:  atomic.LoadInt64(&s.droppedFields),
		TrackedSymbols: total,
	}
}
