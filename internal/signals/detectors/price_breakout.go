// internal/signals/detectors/price_breakout.go
package detectors

import (
	"crypto-signal-screener/internal/market"
	"crypto-signal-screener/internal/types"
)

// PriceBreakoutDetector - пробой цены закрытия относительно
// предыдущей свечи
type PriceBreakoutDetector struct{}

func (d *PriceBreakoutDetector) Name() string { return "price_breakout" }

func (d *PriceBreakoutDetector) Type() types.FindingType { return types.FindingPriceBreakout }

func (d *PriceBreakoutDetector) Enabled(cfg types.ScreenerConfig) bool { return true }

func (d *PriceBreakoutDetector) Evaluate(snap market.Snapshot, cfg types.ScreenerConfig) *types.Finding {
	candles := snap.Candles
	if len(candles) < 2 {
		return nil
	}

	prev := candles[len(candles)-2].Close
	curr := candles[len(candles)-1].Close
	threshold := cfg.PriceBreakoutThreshold

	if prev <= 0 || curr == prev {
		return nil
	}

	evidence := func(ratio float64) map[string]float64 {
		return map[string]float64{
			"prev_close": prev,
			"curr_close": curr,
			"ratio":      ratio,
			"threshold":  threshold,
		}
	}

	if curr > prev*threshold {
		ratio := curr / prev
		confidence := confidenceFromOvershoot(ratio, threshold)
		return newFinding(snap, types.FindingPriceBreakout, types.DirectionUp, confidence, evidence(ratio))
	}

	if curr < prev/threshold {
		// Для пробоя вниз превышение считаем по обратному отношению
		ratio := prev / curr
		confidence := confidenceFromOvershoot(ratio, threshold)
		return newFinding(snap, types.FindingPriceBreakout, types.DirectionDown, confidence, evidence(ratio))
	}

	return nil
}
