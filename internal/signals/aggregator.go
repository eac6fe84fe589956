// internal/signals/aggregator.go
package signals

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"crypto-signal-screener/internal/market"
	"crypto-signal-screener/internal/signals/detectors"
	"crypto-signal-screener/internal/types"
	"crypto-signal-screener/pkg/logger"
)

// ConfigProvider отдает актуальную конфигурацию порогов.
// Читается синхронно при каждой оценке.
type ConfigProvider interface {
	Current() types.ScreenerConfig
}

// EmittedSignal - агрегатное событие, прошедшее rate limit
type EmittedSignal struct {
	ID        string               `json:"id"`
	State     types.AggregateState `json:"state"`
	EmittedAt time.Time            `json:"emitted_at"`
}

// AggregatorStats - счетчики агрегатора
type AggregatorStats struct {
	Evaluations int64 `json:"evaluations"`
	Emitted     int64 `json:"emitted"`
	RateLimited int64 `json:"rate_limited"`
	Cleared     int64 `json:"cleared"`
}

// symbolAggregate - агрегатное состояние одного символа со своим
// замком: LastAlertAt меняется атомарно относительно конкурентных
// оценок того же символа
type symbolAggregate struct {
	mu    sync.Mutex
	state types.AggregateState
}

// Aggregator прогоняет детекторы по снимку символа, собирает
// агрегатное состояние и решает, достойно ли оно оповещения
type Aggregator struct {
	store     *market.Store
	detectors []detectors.Detector
	config    ConfigProvider
	interval  string

	mu      sync.RWMutex
	symbols map[string]*symbolAggregate

	history *HistoryRing

	// для детерминированных тестов
	now func() time.Time

	evaluations int64
	emitted     int64
	rateLimited int64
	cleared     int64
}

// NewAggregator создает агрегатор с полным набором детекторов
func NewAggregator(store *market.Store, config ConfigProvider, interval string) *Aggregator {
	return &Aggregator{
		store:     store,
		detectors: detectors.All(),
		config:    config,
		interval:  interval,
		symbols:   make(map[string]*symbolAggregate),
		history:   NewHistoryRing(DefaultHistoryCapacity),
		now:       time.Now,
	}
}

// Evaluate оценивает символ по текущему снимку состояния.
// Возвращает агрегатное событие, если состояние алертоспособно
// и прошло rate limit, иначе nil.
func (a *Aggregator) Evaluate(symbol string) *EmittedSignal {
	atomic.AddInt64(&a.evaluations, 1)

	cfg := a.config.Current()
	snap := a.store.Snapshot(symbol, a.interval)

	findings, strength := a.collectFindings(snap, cfg)

	agg := a.aggregateFor(symbol)
	agg.mu.Lock()
	defer agg.mu.Unlock()

	now := a.now()

	// Пустой результат сбрасывает прежнее состояние: никакого
	// зависшего "все еще алертим"
	if len(findings) == 0 {
		if len(agg.state.Findings) > 0 {
			atomic.AddInt64(&a.cleared, 1)
		}
		agg.state.Symbol = symbol
		agg.state.Findings = nil
		agg.state.SignalStrength = 0
		agg.state.UpdatedAt = now
		return nil
	}

	agg.state.Symbol = symbol
	agg.state.Findings = findings
	agg.state.SignalStrength = strength
	agg.state.UpdatedAt = now

	if cfg.MinAlertInterval > 0 && !agg.state.LastAlertAt.IsZero() &&
		now.Sub(agg.state.LastAlertAt) < cfg.MinAlertInterval {
		atomic.AddInt64(&a.rateLimited, 1)
		return nil
	}

	agg.state.LastAlertAt = now
	atomic.AddInt64(&a.emitted, 1)

	emitted := &EmittedSignal{
		ID:        uuid.New().String(),
		State:     copyState(agg.state),
		EmittedAt: now,
	}
	a.history.Add(*emitted)

	logger.Debug("📡 Агрегат %s: %d сигналов, сила %.2f",
		symbol, len(findings), strength)

	return emitted
}

// collectFindings прогоняет включенные детекторы по снимку.
// Возвращает сигналы и силу подтверждения всплеска объема.
func (a *Aggregator) collectFindings(snap market.Snapshot, cfg types.ScreenerConfig) ([]types.Finding, float64) {
	var findings []types.Finding
	var strength float64

	for _, d := range a.detectors {
		if !d.Enabled(cfg) {
			continue
		}

		finding := d.Evaluate(snap, cfg)
		if finding == nil {
			continue
		}

		// Всплеск объема дополнительно подтверждается независимыми
		// методами: одиночный метод легко дает ложные срабатывания
		if finding.Type == types.FindingVolumeSpike && cfg.VolumeAgreementEnabled {
			agreeing, total := countAgreeingVolumeMethods(snap.Candles, cfg)
			strength = float64(agreeing) / float64(total)
			if agreeing < cfg.MinAgreeingMethods {
				continue
			}
			finding.Evidence["agreeing_methods"] = float64(agreeing)
			finding.Evidence["total_methods"] = float64(total)
		}

		findings = append(findings, *finding)
	}

	return findings, strength
}

// aggregateFor возвращает агрегат символа, создавая при необходимости
func (a *Aggregator) aggregateFor(symbol string) *symbolAggregate {
	a.mu.RLock()
	agg, ok := a.symbols[symbol]
	a.mu.RUnlock()
	if ok {
		return agg
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if agg, ok = a.symbols[symbol]; ok {
		return agg
	}
	agg = &symbolAggregate{state: types.AggregateState{Symbol: symbol}}
	a.symbols[symbol] = agg
	return agg
}

// GetState возвращает текущее агрегатное состояние символа
func (a *Aggregator) GetState(symbol string) (types.AggregateState, bool) {
	a.mu.RLock()
	agg, ok := a.symbols[symbol]
	a.mu.RUnlock()
	if !ok {
		return types.AggregateState{}, false
	}

	agg.mu.Lock()
	defer agg.mu.Unlock()
	return copyState(agg.state), true
}

// GetAllStates возвращает состояния всех известных символов
func (a *Aggregator) GetAllStates() []types.AggregateState {
	a.mu.RLock()
	aggregates := make([]*symbolAggregate, 0, len(a.symbols))
	for _, agg := range a.symbols {
		aggregates = append(aggregates, agg)
	}
	a.mu.RUnlock()

	states := make([]types.AggregateState, 0, len(aggregates))
	for _, agg := range aggregates {
		agg.mu.Lock()
		states = append(states, copyState(agg.state))
		agg.mu.Unlock()
	}
	return states
}

// History возвращает последние эмитированные события, новые первыми
func (a *Aggregator) History(limit int) []EmittedSignal {
	return a.history.Recent(limit)
}

// GetStats возвращает счетчики агрегатора
func (a *Aggregator) GetStats() AggregatorStats {
	return AggregatorStats{
		Evaluations: atomic.LoadInt64(&a.evaluations),
		Emitted:     atomic.LoadInt64(&a.emitted),
		RateLimited: atomic.LoadInt64(&a.rateLimited),
		Cleared:     atomic.LoadInt64(&a.cleared),
	}
}

func copyState(state types.AggregateState) types.AggregateState {
	findings := make([]types.Finding, len(state.Findings))
	copy(findings, state.Findings)
	state.Findings = findings
	return state
}
