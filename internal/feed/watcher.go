// internal/feed/watcher.go
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"crypto-signal-screener/internal/types"
	"crypto-signal-screener/pkg/logger"
)

const (
	pingInterval   = 20 * time.Second
	subscribeBatch = 10  // Bybit принимает до 10 args за раз
	maxSymbols     = 200 // лимит топиков Bybit на одно соединение
)

// Ingestor — узкий интерфейс приёмника нормализованных событий.
// Реализуется screener.Service.
type Ingestor interface {
	Ingest(event types.FeedEvent)
}

// Config — параметры подключения к публичному WS Bybit
type Config struct {
	URL            string
	Symbols        []string
	KlineInterval  string
	OrderBookDepth int
	ReconnectDelay time.Duration
}

// Watcher подключается к Bybit WebSocket, нормализует тикеры,
// свечи и стакан и передаёт события в Ingestor.
// При обрыве соединения переподключается с фиксированной задержкой.
type Watcher struct {
	cfg    Config
	sink   Ingestor
	stopCh chan struct{}
	wg     sync.WaitGroup

	// стаканы собираются из snapshot/delta в горутине чтения
	books map[string]*bookState

	mu         sync.Mutex
	started    bool
	reconnects uint64
	parsed     uint64
	skipped    uint64
}

// NewWatcher создает наблюдатель рыночных данных
func NewWatcher(cfg Config, sink Ingestor) *Watcher {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.KlineInterval == "" {
		cfg.KlineInterval = "1"
	}
	if cfg.OrderBookDepth <= 0 {
		cfg.OrderBookDepth = 50
	}
	return &Watcher{
		cfg:    cfg,
		sink:   sink,
		stopCh: make(chan struct{}),
		books:  make(map[string]*bookState),
	}
}

// Start запускает горутину WS-соединения с авто-переподключением
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return fmt.Errorf("feed watcher already started")
	}
	if len(w.cfg.Symbols) == 0 {
		return fmt.Errorf("feed watcher: no symbols to subscribe")
	}
	w.started = true
	w.stopCh = make(chan struct{})

	w.wg.Add(1)
	go w.connectLoop()

	logger.Info("🌊 FeedWatcher: запущен, символов для подписки: %d", len(w.cfg.Symbols))
	return nil
}

// Stop останавливает горутины и ждёт их завершения
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	stopCh := w.stopCh
	w.mu.Unlock()

	close(stopCh)
	w.wg.Wait()
	logger.Info("🛑 FeedWatcher: остановлен")
}

// Stats — счётчики работы адаптера
type Stats struct {
	Reconnects uint64 `json:"reconnects"`
	Parsed     uint64 `json:"parsed"`
	Skipped    uint64 `json:"skipped"`
}

// GetStats возвращает статистику адаптера
func (w *Watcher) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{Reconnects: w.reconnects, Parsed: w.parsed, Skipped: w.skipped}
}

// connectLoop — WS-соединение с фиксированной задержкой переподключения
func (w *Watcher) connectLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		logger.Info("🔌 FeedWatcher: подключение к %s (%d символов)", w.cfg.URL, len(w.cfg.Symbols))
		err := w.runConnection()
		if err != nil {
			select {
			case <-w.stopCh:
				return
			default:
			}
			w.mu.Lock()
			w.reconnects++
			w.mu.Unlock()
			logger.Warn("⚠️ FeedWatcher: WS-соединение прервано: %v, повтор через %v", err, w.cfg.ReconnectDelay)
			select {
			case <-time.After(w.cfg.ReconnectDelay):
			case <-w.stopCh:
				return
			}
		}
	}
}

// runConnection устанавливает одно WS-соединение, подписывается и читает события
func (w *Watcher) runConnection() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	conn, _, err := websocket.Dial(ctx, w.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("ошибка подключения: %w", err)
	}
	defer conn.CloseNow()

	logger.Info("✅ FeedWatcher: WS-соединение установлено")

	// При новом соединении Bybit заново пришлёт snapshot стакана
	for _, b := range w.books {
		b.reset()
	}

	if err := w.subscribeTopics(ctx, conn, w.topics()); err != nil {
		return fmt.Errorf("ошибка подписки: %w", err)
	}

	// Пинг-горутина
	pingStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ping := wsPingMsg{Op: "ping"}
				if err := wsjson.Write(ctx, conn, ping); err != nil {
					return
				}
			case <-pingStop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	defer close(pingStop)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			select {
			case <-ctx.Done():
				return nil // нормальная остановка
			default:
				return fmt.Errorf("ошибка чтения: %w", err)
			}
		}

		w.handleMessage(raw)
	}
}

// topics формирует список топиков подписки для всех символов
func (w *Watcher) topics() []string {
	symbols := w.cfg.Symbols
	if len(symbols) > maxSymbols {
		symbols = symbols[:maxSymbols]
	}

	topics := make([]string, 0, len(symbols)*3)
	for _, sym := range symbols {
		topics = append(topics,
			"tickers."+sym,
			fmt.Sprintf("kline.%s.%s", w.cfg.KlineInterval, sym),
			fmt.Sprintf("orderbook.%d.%s", w.cfg.OrderBookDepth, sym),
		)
	}
	return topics
}

// subscribeTopics отправляет сообщения подписки батчами
func (w *Watcher) subscribeTopics(ctx context.Context, conn *websocket.Conn, topics []string) error {
	for i := 0; i < len(topics); i += subscribeBatch {
		end := i + subscribeBatch
		if end > len(topics) {
			end = len(topics)
		}

		msg := wsSubscribeMsg{Op: "subscribe", Args: topics[i:end]}
		if err := wsjson.Write(ctx, conn, msg); err != nil {
			return err
		}
		// Небольшая пауза между батчами
		time.Sleep(50 * time.Millisecond)
	}

	logger.Info("📡 FeedWatcher: подписан на %d топиков", len(topics))
	return nil
}

// handleMessage разбирает входящее сообщение и передаёт событие в sink.
// Битые поля пропускаются по одному, остальное сообщение обрабатывается.
func (w *Watcher) handleMessage(raw json.RawMessage) {
	// Системные ответы (pong / подтверждение подписки)
	var resp wsResponseMsg
	if err := json.Unmarshal(raw, &resp); err == nil && resp.Op != "" {
		switch resp.Op {
		case "pong", "ping":
			logger.Debug("🏓 FeedWatcher: получен pong")
		case "subscribe":
			if resp.Success {
				logger.Debug("✅ FeedWatcher: подписка подтверждена")
			} else {
				logger.Warn("⚠️ FeedWatcher: ошибка подписки: %s", resp.RetMsg)
			}
		}
		return
	}

	var envelope struct {
		Topic string `json:"topic"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Topic == "" {
		w.countSkip()
		return
	}

	switch {
	case strings.HasPrefix(envelope.Topic, "tickers."):
		w.handleTicker(raw)
	case strings.HasPrefix(envelope.Topic, "kline."):
		w.handleKline(raw)
	case strings.HasPrefix(envelope.Topic, "orderbook."):
		w.handleOrderBook(raw)
	default:
		w.countSkip()
	}
}

func (w *Watcher) handleTicker(raw json.RawMessage) {
	var msg tickerMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		w.countSkip()
		return
	}

	symbol := msg.Data.Symbol
	if symbol == "" {
		symbol = strings.TrimPrefix(msg.Topic, "tickers.")
	}
	if symbol == "" {
		w.countSkip()
		return
	}

	update := types.TickerUpdate{UpdatedAt: msToTime(msg.Ts)}
	filled := false
	if v, ok := parsePositive(msg.Data.LastPrice); ok {
		update.LastPrice = &v
		filled = true
	}
	if msg.Data.Price24hPcnt != "" {
		if v, err := strconv.ParseFloat(msg.Data.Price24hPcnt, 64); err == nil {
			pct := v * 100
			update.Change24h = &pct
			filled = true
		}
	}
	if v, ok := parseNonNegative(msg.Data.Volume24h); ok {
		update.Volume24h = &v
		filled = true
	}
	if v, ok := parseNonNegative(msg.Data.Turnover24h); ok {
		update.Turnover24h = &v
		filled = true
	}
	if !filled {
		w.countSkip()
		return
	}

	w.emit(types.FeedEvent{
		Type:       types.FeedTicker,
		Symbol:     symbol,
		Ticker:     &update,
		ReceivedAt: time.Now(),
	})
}

func (w *Watcher) handleKline(raw json.RawMessage) {
	var msg klineMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		w.countSkip()
		return
	}

	// топик: kline.{interval}.{symbol}
	parts := strings.SplitN(msg.Topic, ".", 3)
	if len(parts) != 3 || parts[2] == "" {
		w.countSkip()
		return
	}
	symbol := parts[2]

	for _, d := range msg.Data {
		open, okO := parsePositive(d.Open)
		high, okH := parsePositive(d.High)
		low, okL := parsePositive(d.Low)
		closeP, okC := parsePositive(d.Close)
		volume, okV := parseNonNegative(d.Volume)
		if !okO || !okH || !okL || !okC || !okV || d.Start <= 0 {
			w.countSkip()
			continue
		}

		interval := d.Interval
		if interval == "" {
			interval = parts[1]
		}

		w.emit(types.FeedEvent{
			Type:   types.FeedKline,
			Symbol: symbol,
			Candle: &types.CandleUpdate{
				Interval: interval,
				Candle: types.Candle{
					OpenTime: msToTime(d.Start),
					Open:     open,
					High:     high,
					Low:      low,
					Close:    closeP,
					Volume:   volume,
				},
			},
			ReceivedAt: time.Now(),
		})
	}
}

func (w *Watcher) handleOrderBook(raw json.RawMessage) {
	var msg orderbookMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		w.countSkip()
		return
	}
	symbol := msg.Data.Symbol
	if symbol == "" {
		w.countSkip()
		return
	}

	book, ok := w.books[symbol]
	if !ok {
		book = newBookState()
		w.books[symbol] = book
	}

	if msg.Type == "snapshot" {
		book.reset()
	}
	book.apply(msg.Data)

	snapshot := book.snapshot(symbol, w.cfg.OrderBookDepth, msToTime(msg.Ts))
	w.emit(types.FeedEvent{
		Type:       types.FeedOrderBook,
		Symbol:     symbol,
		OrderBook:  &snapshot,
		ReceivedAt: time.Now(),
	})
}

func (w *Watcher) emit(event types.FeedEvent) {
	w.mu.Lock()
	w.parsed++
	w.mu.Unlock()
	w.sink.Ingest(event)
}

func (w *Watcher) countSkip() {
	w.mu.Lock()
	w.skipped++
	w.mu.Unlock()
}

func parsePositive(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func parseNonNegative(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func msToTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}
