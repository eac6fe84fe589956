// internal/screener/service.go
package screener

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"crypto-signal-screener/internal/broadcast"
	"crypto-signal-screener/internal/config"
	rediscache "crypto-signal-screener/internal/infrastructure/cache/redis"
	"crypto-signal-screener/internal/infrastructure/persistence/postgres"
	"crypto-signal-screener/internal/market"
	"crypto-signal-screener/internal/signals"
	"crypto-signal-screener/internal/types"
	"crypto-signal-screener/pkg/logger"
)

const (
	// каналы публикации
	ChannelSignals = "signals"
	ChannelMarket  = "market"

	persistTimeout = 3 * time.Second
)

// ServiceStats - сводные счетчики сервиса
type ServiceStats struct {
	Ingested    uint64                  `json:"ingested"`
	Store       market.StoreStats       `json:"store"`
	Aggregator  signals.AggregatorStats `json:"aggregator"`
	Hub         broadcast.HubStats      `json:"hub"`
	EvalCycles  uint64                  `json:"eval_cycles"`
	PersistErrs uint64                  `json:"persist_errors"`
}

// SignalHistory - долговременное хранилище эмитированных сигналов.
// Реализуется postgres.SignalRepository.
type SignalHistory interface {
	Save(ctx context.Context, id string, state types.AggregateState, emittedAt time.Time) error
	Recent(ctx context.Context, limit int) ([]postgres.EmittedSignalRecord, error)
	RecentBySymbol(ctx context.Context, symbol string, limit int) ([]postgres.EmittedSignalRecord, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
}

// Service связывает поток рыночных данных, хранилище, агрегатор
// сигналов и broadcaster. Реализует feed.Ingestor.
type Service struct {
	store      *market.Store
	aggregator *signals.Aggregator
	hub        *broadcast.Hub
	thresholds *config.Store
	interval   string
	evalEvery  time.Duration

	// опциональные внешние хранилища
	cache *rediscache.Cache
	repo  SignalHistory

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool

	ingested    uint64
	evalCycles  uint64
	persistErrs uint64
}

// NewService создает сервис скринера
func NewService(store *market.Store, aggregator *signals.Aggregator, hub *broadcast.Hub, thresholds *config.Store, interval string, evalEvery time.Duration) *Service {
	if evalEvery <= 0 {
		evalEvery = 30 * time.Second
	}
	return &Service{
		store:      store,
		aggregator: aggregator,
		hub:        hub,
		thresholds: thresholds,
		interval:   interval,
		evalEvery:  evalEvery,
		stopCh:     make(chan struct{}),
	}
}

// WithCache подключает Redis-кэш актуального состояния
func (s *Service) WithCache(cache *rediscache.Cache) *Service {
	s.cache = cache
	return s
}

// WithRepository подключает PostgreSQL-историю сигналов
func (s *Service) WithRepository(repo SignalHistory) *Service {
	s.repo = repo
	return s
}

// Start запускает цикл периодической переоценки всех символов
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("screener service already started")
	}
	s.started = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.evalLoop()

	logger.Info("🚀 Screener: сервис запущен, переоценка каждые %v", s.evalEvery)
	return nil
}

// Stop останавливает переоценку и ждёт завершения горутин
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	stopCh := s.stopCh
	s.mu.Unlock()

	close(stopCh)
	s.wg.Wait()
	logger.Info("🛑 Screener: сервис остановлен")
}

// Ingest принимает нормализованное событие рыночных данных,
// обновляет хранилище и оценивает символ. Реализация feed.Ingestor.
func (s *Service) Ingest(event types.FeedEvent) {
	if event.Symbol == "" {
		return
	}
	atomic.AddUint64(&s.ingested, 1)

	switch event.Type {
	case types.FeedKline:
		if event.Candle == nil {
			return
		}
		s.store.UpsertCandle(event.Symbol, event.Candle.Interval, event.Candle.Candle)

	case types.FeedOrderBook:
		if event.OrderBook == nil {
			return
		}
		s.store.ReplaceOrderBook(event.Symbol, *event.OrderBook)

	case types.FeedTicker:
		if event.Ticker == nil {
			return
		}
		s.store.UpdateTicker(event.Symbol, *event.Ticker)
		if event.Ticker.Volume24h != nil {
			s.store.PushVolumeSample(event.Symbol, *event.Ticker.Volume24h)
		}

	default:
		return
	}

	s.hub.Publish(string(event.Type), event, ChannelMarket)
	s.evaluateSymbol(event.Symbol)
}

// evaluateSymbol прогоняет детекторы и публикует результат
func (s *Service) evaluateSymbol(symbol string) {
	emitted := s.aggregator.Evaluate(symbol)

	s.syncCache(symbol)

	if emitted == nil {
		return
	}

	for _, f := range emitted.State.Findings {
		logger.Signal(f.Symbol, string(f.Type), f.Direction, f.Confidence)
	}
	s.hub.Publish("signal", emitted, ChannelSignals)

	if s.repo != nil {
		// Запись истории не должна блокировать поток данных
		go s.persistSignal(*emitted)
	}
}

// syncCache отражает текущее агрегатное состояние символа в Redis
func (s *Service) syncCache(symbol string) {
	if s.cache == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	state, ok := s.aggregator.GetState(symbol)
	if !ok || len(state.Findings) == 0 {
		if err := s.cache.ClearAggregateState(ctx, symbol); err != nil {
			atomic.AddUint64(&s.persistErrs, 1)
		}
		return
	}
	if err := s.cache.SetAggregateState(ctx, state); err != nil {
		atomic.AddUint64(&s.persistErrs, 1)
		logger.Warn("⚠️ Screener: не удалось обновить кэш %s: %v", symbol, err)
	}
}

func (s *Service) persistSignal(emitted signals.EmittedSignal) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.repo.Save(ctx, emitted.ID, emitted.State, emitted.EmittedAt); err != nil {
		atomic.AddUint64(&s.persistErrs, 1)
		logger.Warn("⚠️ Screener: не удалось сохранить сигнал %s: %v", emitted.State.Symbol, err)
	}
}

// evalLoop периодически переоценивает все известные символы:
// сигналы должны гаснуть и по тиканью часов, не только по новым данным
func (s *Service) evalLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.evalEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evaluateAll()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Service) evaluateAll() {
	symbols := s.store.Symbols()
	for _, symbol := range symbols {
		select {
		case <-s.stopCh:
			return
		default:
		}
		s.evaluateSymbol(symbol)
	}
	atomic.AddUint64(&s.evalCycles, 1)
	logger.Debug("🔄 Screener: цикл переоценки завершен, символов: %d", len(symbols))
}

// GetCurrentState возвращает агрегатное состояние символа
func (s *Service) GetCurrentState(symbol string) (types.AggregateState, bool) {
	return s.aggregator.GetState(symbol)
}

// GetAllCurrentStates возвращает состояния всех символов
func (s *Service) GetAllCurrentStates() []types.AggregateState {
	return s.aggregator.GetAllStates()
}

// GetTopSymbols возвращает топ-N символов по 24h-объему
func (s *Service) GetTopSymbols(n int) []market.SymbolVolume {
	return s.store.GetTopSymbolsByVolume(n)
}

// GetSignalHistory возвращает последние эмитированные сигналы.
// При подключенном PostgreSQL читает долговременную историю,
// при ошибке или без репозитория — кольцо в памяти.
func (s *Service) GetSignalHistory(limit int) []signals.EmittedSignal {
	if s.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		records, err := s.repo.Recent(ctx, limit)
		if err == nil {
			return recordsToSignals(records)
		}
		logger.Warn("⚠️ Screener: ошибка чтения истории сигналов: %v", err)
	}
	return s.aggregator.History(limit)
}

// GetSymbolSignalHistory возвращает последние сигналы одного символа
func (s *Service) GetSymbolSignalHistory(symbol string, limit int) []signals.EmittedSignal {
	if s.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		records, err := s.repo.RecentBySymbol(ctx, symbol, limit)
		if err == nil {
			return recordsToSignals(records)
		}
		logger.Warn("⚠️ Screener: ошибка чтения истории %s: %v", symbol, err)
	}

	result := make([]signals.EmittedSignal, 0)
	for _, sig := range s.aggregator.History(0) {
		if sig.State.Symbol != symbol {
			continue
		}
		result = append(result, sig)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result
}

// SignalCountSince возвращает число сигналов с указанного момента
func (s *Service) SignalCountSince(since time.Time) (int64, error) {
	if s.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		return s.repo.CountSince(ctx, since)
	}

	var count int64
	for _, sig := range s.aggregator.History(0) {
		if !sig.EmittedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func recordsToSignals(records []postgres.EmittedSignalRecord) []signals.EmittedSignal {
	result := make([]signals.EmittedSignal, 0, len(records))
	for _, rec := range records {
		result = append(result, signals.EmittedSignal{
			ID: rec.ID.String(),
			State: types.AggregateState{
				Symbol:         rec.Symbol,
				Findings:       rec.Findings,
				SignalStrength: rec.SignalStrength,
				LastAlertAt:    rec.EmittedAt,
				UpdatedAt:      rec.EmittedAt,
			},
			EmittedAt: rec.EmittedAt,
		})
	}
	return result
}

// UpdateThresholds атомарно применяет патч конфигурации детекторов.
// При ошибке валидации ничего не меняется.
func (s *Service) UpdateThresholds(patch types.ScreenerConfigPatch) (types.ScreenerConfig, error) {
	return s.thresholds.Update(patch)
}

// CurrentThresholds возвращает актуальную конфигурацию детекторов
func (s *Service) CurrentThresholds() types.ScreenerConfig {
	return s.thresholds.Current()
}

// GetStats возвращает сводную статистику сервиса
func (s *Service) GetStats() ServiceStats {
	return ServiceStats{
		Ingested:    atomic.LoadUint64(&s.ingested),
		Store:       s.store.GetStats(),
		Aggregator:  s.aggregator.GetStats(),
		Hub:         s.hub.GetStats(),
		EvalCycles:  atomic.LoadUint64(&s.evalCycles),
		PersistErrs: atomic.LoadUint64(&s.persistErrs),
	}
}
