// internal/signals/detectors/whale_activity.go
package detectors

import (
	"math"

	"crypto-signal-screener/internal/market"
	"crypto-signal-screener/internal/types"
)

// WhaleActivityDetector - крупная активность: большой 24h-оборот
// в сочетании с заметным изменением цены. Направление - знак
// изменения. Считается только из данных тикера, детерминированно.
type WhaleActivityDetector struct{}

func (d *WhaleActivityDetector) Name() string { return "whale_activity" }

func (d *WhaleActivityDetector) Type() types.FindingType { return types.FindingWhaleActivity }

func (d *WhaleActivityDetector) Enabled(cfg types.ScreenerConfig) bool {
	return cfg.WhaleAlertsEnabled
}

func (d *WhaleActivityDetector) Evaluate(snap market.Snapshot, cfg types.ScreenerConfig) *types.Finding {
	if snap.Ticker == nil {
		return nil
	}

	turnover := snap.Ticker.Turnover24h
	change := snap.Ticker.Change24h

	if turnover <= cfg.WhaleMinTurnover || math.Abs(change) <= cfg.WhaleMinChangePct {
		return nil
	}

	direction := types.DirectionUp
	if change < 0 {
		direction = types.DirectionDown
	}

	// Уверенность - по слабейшему из двух условий
	turnoverConf := confidenceFromOvershoot(turnover, cfg.WhaleMinTurnover)
	changeConf := confidenceFromOvershoot(math.Abs(change), cfg.WhaleMinChangePct)
	if cfg.WhaleMinTurnover == 0 {
		turnoverConf = 1
	}
	if cfg.WhaleMinChangePct == 0 {
		changeConf = 1
	}
	confidence := math.Min(turnoverConf, changeConf)

	return newFinding(snap, types.FindingWhaleActivity, direction, confidence, map[string]float64{
		"turnover_24h":   turnover,
		"change_24h":     change,
		"min_turnover":   cfg.WhaleMinTurnover,
		"min_change_pct": cfg.WhaleMinChangePct,
	})
}
