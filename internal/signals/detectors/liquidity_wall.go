// internal/signals/detectors/liquidity_wall.go
package detectors

import (
	"crypto-signal-screener/internal/market"
	"crypto-signal-screener/internal/types"
)

// LiquidityWallDetector - аномально крупные уровни в стакане.
// Стеной считается уровень, чей объем превышает средний объем
// уровня своей стороны в threshold раз.
type LiquidityWallDetector struct{}

func (d *LiquidityWallDetector) Name() string { return "liquidity_wall" }

func (d *LiquidityWallDetector) Type() types.FindingType { return types.FindingLiquidityWall }

func (d *LiquidityWallDetector) Enabled(cfg types.ScreenerConfig) bool {
	return cfg.LiquidityWallsEnabled
}

func (d *LiquidityWallDetector) Evaluate(snap market.Snapshot, cfg types.ScreenerConfig) *types.Finding {
	if snap.Book == nil {
		return nil
	}

	threshold := cfg.LiquidityWallThreshold

	bidWalls, bidMaxRatio := findWalls(snap.Book.Bids, threshold)
	askWalls, askMaxRatio := findWalls(snap.Book.Asks, threshold)

	if len(bidWalls) == 0 && len(askWalls) == 0 {
		return nil
	}

	// Направление - сторона с самой выраженной стеной
	direction := types.DirectionBuy
	observed := bidMaxRatio
	if askMaxRatio > bidMaxRatio {
		direction = types.DirectionSell
		observed = askMaxRatio
	}

	evidence := map[string]float64{
		"bid_walls": float64(len(bidWalls)),
		"ask_walls": float64(len(askWalls)),
		"max_ratio": observed,
		"threshold": threshold,
	}
	if len(bidWalls) > 0 {
		evidence["largest_bid_wall_price"] = bidWalls[0].Price
		evidence["largest_bid_wall_size"] = bidWalls[0].Size
	}
	if len(askWalls) > 0 {
		evidence["largest_ask_wall_price"] = askWalls[0].Price
		evidence["largest_ask_wall_size"] = askWalls[0].Size
	}

	confidence := confidenceFromOvershoot(observed, threshold)
	return newFinding(snap, types.FindingLiquidityWall, direction, confidence, evidence)
}

// findWalls возвращает уровни-стены стороны (крупнейший первым)
// и отношение крупнейшей стены к среднему уровню
func findWalls(levels []types.PriceLevel, threshold float64) ([]types.PriceLevel, float64) {
	if len(levels) == 0 {
		return nil, 0
	}

	var sum float64
	for _, lvl := range levels {
		sum += lvl.Size
	}
	avg := sum / float64(len(levels))
	if avg == 0 {
		return nil, 0
	}

	var walls []types.PriceLevel
	var maxRatio float64
	for _, lvl := range levels {
		ratio := lvl.Size / avg
		if ratio > threshold {
			if len(walls) == 0 || lvl.Size > walls[0].Size {
				walls = append([]types.PriceLevel{lvl}, walls...)
			} else {
				walls = append(walls, lvl)
			}
			if ratio > maxRatio {
				maxRatio = ratio
			}
		}
	}

	return walls, maxRatio
}
