// internal/types/market.go
package types

import "time"

// Candle - OHLCV-бар за фиксированный интервал.
// Закрытый бар неизменяем; последний (ещё формирующийся) бар
// перезаписывается на месте по совпадению OpenTime.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// PriceLevel - уровень стакана (цена + объем)
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBookSnapshot - полный снимок стакана для символа.
// Bids и Asks отсортированы от лучшей цены. Снимок заменяется
// атомарно целиком, частичных обновлений не бывает.
type OrderBookSnapshot struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// TickerState - текущее состояние тикера символа (last-write-wins)
type TickerState struct {
	Symbol      string    `json:"symbol"`
	LastPrice   float64   `json:"last_price"`
	Change24h   float64   `json:"change_24h"`
	Volume24h   float64   `json:"volume_24h"`
	Turnover24h float64   `json:"turnover_24h"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TickerUpdate - частичное обновление тикера.
// nil-поля не трогают прежнее значение.
type TickerUpdate struct {
	LastPrice   *float64
	Change24h   *float64
	Volume24h   *float64
	Turnover24h *float64
	UpdatedAt   time.Time
}

// FeedEventType - тип нормализованного события от адаптера биржи
type FeedEventType string

const (
	FeedTicker    FeedEventType = "ticker"
	FeedKline     FeedEventType = "kline"
	FeedOrderBook FeedEventType = "orderbook"
)

// CandleUpdate - обновление свечи с указанием интервала
type CandleUpdate struct {
	Interval string `json:"interval"`
	Candle   Candle `json:"candle"`
}

// FeedEvent - нормализованное событие рыночных данных.
// Заполнено ровно одно из полей Ticker/Candle/OrderBook
// в зависимости от Type.
type FeedEvent struct {
	Type       FeedEventType      `json:"type"`
	Symbol     string             `json:"symbol"`
	Ticker     *TickerUpdate      `json:"-"`
	Candle     *CandleUpdate      `json:"candle,omitempty"`
	OrderBook  *OrderBookSnapshot `json:"orderbook,omitempty"`
	ReceivedAt time.Time          `json:"received_at"`
}
