// internal/market/snapshot.go
package market

import "crypto-signal-screener/internal/types"

// Snapshot - неизменяемый снимок состояния символа на момент чтения.
// Детекторы работают только с ним и никогда не видят данных,
// измененных наполовину.
type Snapshot struct {
	Symbol        string
	Candles       []types.Candle // по возрастанию OpenTime
	Book          *types.OrderBookSnapshot
	Ticker        *types.TickerState
	VolumeHistory []float64
}

// HasData сообщает, есть ли в снимке хоть что-то для анализа
func (s Snapshot) HasData() bool {
	return len(s.Candles) > 0 || s.Book != nil || s.Ticker != nil || len(s.VolumeHistory) > 0
}

// LastCandle возвращает последнюю (текущую) свечу
func (s Snapshot) LastCandle() (types.Candle, bool) {
	if len(s.Candles) == 0 {
		return types.Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}
