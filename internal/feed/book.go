// internal/feed/book.go
package feed

import (
	"sort"
	"strconv"
	"time"

	"crypto-signal-screener/internal/types"
)

// bookState собирает полный стакан символа из snapshot/delta
// сообщений Bybit. Доступ только из горутины чтения WS,
// синхронизация не нужна.
type bookState struct {
	bids map[float64]float64
	asks map[float64]float64
}

func newBookState() *bookState {
	return &bookState{
		bids: make(map[float64]float64),
		asks: make(map[float64]float64),
	}
}

// reset очищает стакан (перед применением snapshot)
func (b *bookState) reset() {
	b.bids = make(map[float64]float64)
	b.asks = make(map[float64]float64)
}

// apply применяет уровни из сообщения.
// Объём "0" удаляет уровень, битые пары пропускаются.
func (b *bookState) apply(data orderbookData) {
	applyLevels(b.bids, data.Bids)
	applyLevels(b.asks, data.Asks)
}

func applyLevels(side map[float64]float64, levels [][2]string) {
	for _, lvl := range levels {
		price, err := strconv.ParseFloat(lvl[0], 64)
		if err != nil || price <= 0 {
			continue
		}
		size, err := strconv.ParseFloat(lvl[1], 64)
		if err != nil || size < 0 {
			continue
		}
		if size == 0 {
			delete(side, price)
			continue
		}
		side[price] = size
	}
}

// snapshot строит полный снимок: биды от лучшей цены вниз,
// аски от лучшей цены вверх, не больше depth уровней на сторону
func (b *bookState) snapshot(symbol string, depth int, ts time.Time) types.OrderBookSnapshot {
	bids := flattenSide(b.bids)
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	asks := flattenSide(b.asks)
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })

	if depth > 0 && len(bids) > depth {
		bids = bids[:depth]
	}
	if depth > 0 && len(asks) > depth {
		asks = asks[:depth]
	}

	return types.OrderBookSnapshot{
		Symbol:    symbol,
		Bids:      bids,
		Asks:      asks,
		Timestamp: ts,
	}
}

func flattenSide(side map[float64]float64) []types.PriceLevel {
	levels := make([]types.PriceLevel, 0, len(side))
	for price, size := range side {
		levels = append(levels, types.PriceLevel{Price: price, Size: size})
	}
	return levels
}
