// internal/signals/detectors/volume_spike.go
package detectors

import (
	"crypto-signal-screener/internal/market"
	"crypto-signal-screener/internal/types"
)

// VolumeSpikeDetector - всплеск объема текущей свечи относительно
// среднего объема предыдущих свечей
type VolumeSpikeDetector struct{}

func (d *VolumeSpikeDetector) Name() string { return "volume_spike" }

func (d *VolumeSpikeDetector) Type() types.FindingType { return types.FindingVolumeSpike }

// Всплеск и пробой цены включены всегда - это базовые детекторы
func (d *VolumeSpikeDetector) Enabled(cfg types.ScreenerConfig) bool { return true }

func (d *VolumeSpikeDetector) Evaluate(snap market.Snapshot, cfg types.ScreenerConfig) *types.Finding {
	candles := snap.Candles
	if len(candles) < 2 {
		return nil
	}

	// Окно: текущая свеча + до VolumeLookback-1 предыдущих
	lookback := cfg.VolumeLookback
	if lookback < 2 {
		lookback = 2
	}
	if len(candles) > lookback {
		candles = candles[len(candles)-lookback:]
	}

	current := candles[len(candles)-1].Volume
	prev := candles[:len(candles)-1]

	var sum float64
	for _, c := range prev {
		sum += c.Volume
	}
	avg := sum / float64(len(prev))

	if avg == 0 {
		// Ничего не торговалось - любой объем считается всплеском
		if current > 0 {
			return newFinding(snap, types.FindingVolumeSpike, types.DirectionNeutral, 1.0, map[string]float64{
				"current_volume": current,
				"avg_volume":     0,
			})
		}
		return nil
	}

	ratio := current / avg
	if ratio <= cfg.VolumeSpikeThreshold {
		return nil
	}

	confidence := confidenceFromOvershoot(ratio, cfg.VolumeSpikeThreshold)
	return newFinding(snap, types.FindingVolumeSpike, types.DirectionNeutral, confidence, map[string]float64{
		"current_volume": current,
		"avg_volume":     avg,
		"ratio":          ratio,
		"threshold":      cfg.VolumeSpikeThreshold,
	})
}
