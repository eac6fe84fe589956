// internal/signals/detectors/orderbook_imbalance.go
package detectors

import (
	"math"

	"crypto-signal-screener/internal/market"
	"crypto-signal-screener/internal/types"
)

// Количество лучших уровней каждой стороны, участвующих в расчете
const imbalanceDepth = 10

// OrderBookImbalanceDetector - дисбаланс объема между лучшими
// бидами и асками. Считается из реального стакана, без какой-либо
// случайности.
type OrderBookImbalanceDetector struct{}

func (d *OrderBookImbalanceDetector) Name() string { return "orderbook_imbalance" }

func (d *OrderBookImbalanceDetector) Type() types.FindingType {
	return types.FindingOrderBookImbalance
}

func (d *OrderBookImbalanceDetector) Enabled(cfg types.ScreenerConfig) bool {
	return cfg.SpoofDetectionEnabled
}

func (d *OrderBookImbalanceDetector) Evaluate(snap market.Snapshot, cfg types.ScreenerConfig) *types.Finding {
	if snap.Book == nil {
		return nil
	}

	bidVol := sumTopLevels(snap.Book.Bids, imbalanceDepth)
	askVol := sumTopLevels(snap.Book.Asks, imbalanceDepth)

	// Пустая сторона стакана - ничего не считаем
	if bidVol == 0 || askVol == 0 {
		return nil
	}

	ratio := bidVol / askVol
	threshold := cfg.OrderBookImbalanceThreshold

	var direction string
	var observed float64

	switch {
	case ratio > threshold:
		direction = types.DirectionBuy
		observed = ratio
	case ratio < 1/threshold:
		direction = types.DirectionSell
		observed = 1 / ratio
	default:
		return nil
	}

	confidence := confidenceFromOvershoot(observed, threshold)
	return newFinding(snap, types.FindingOrderBookImbalance, direction, confidence, map[string]float64{
		"bid_volume": bidVol,
		"ask_volume": askVol,
		"ratio":      ratio,
		"threshold":  threshold,
		"depth":      float64(imbalanceDepth),
	})
}

func sumTopLevels(levels []types.PriceLevel, depth int) float64 {
	if len(levels) > depth {
		levels = levels[:depth]
	}
	var sum float64
	for _, lvl := range levels {
		sum += math.Max(lvl.Size, 0)
	}
	return sum
}
