// internal/types/finding.go
package types

import "time"

// FindingType - тип сигнального условия
type FindingType string

const (
	FindingVolumeSpike        FindingType = "volume_spike"
	FindingPriceBreakout      FindingType = "price_breakout"
	FindingOrderBookImbalance FindingType = "orderbook_imbalance"
	FindingLiquidityWall      FindingType = "liquidity_wall"
	FindingWhaleActivity      FindingType = "whale_activity"
)

// Направления сигнала
const (
	DirectionUp      = "up"
	DirectionDown    = "down"
	DirectionBuy     = "buy"
	DirectionSell    = "sell"
	DirectionNeutral = "neutral"
)

// Уровни серьезности сигнала
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Finding - одно сигнальное условие, найденное детектором.
// Эфемерно: живет в текущем агрегатном состоянии символа и
// в ограниченном кольце истории, никуда больше не пишется.
type Finding struct {
	Type       FindingType        `json:"type"`
	Symbol     string             `json:"symbol"`
	Direction  string             `json:"direction"`
	Severity   string             `json:"severity"`
	Confidence float64            `json:"confidence"` // 0..1
	Evidence   map[string]float64 `json:"evidence"`
	DetectedAt time.Time          `json:"detected_at"`
}

// AggregateState - текущее агрегатное состояние символа:
// активные сигналы + момент последнего оповещения.
// Пересчитывается целиком при каждой оценке, это не журнал.
type AggregateState struct {
	Symbol         string    `json:"symbol"`
	Findings       []Finding `json:"findings"`
	SignalStrength float64   `json:"signal_strength"` // доля согласных методов, 0..1
	LastAlertAt    time.Time `json:"last_alert_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SeverityForConfidence возвращает уровень серьезности по уверенности
func SeverityForConfidence(confidence float64) string {
	switch {
	case confidence >= 0.75:
		return SeverityHigh
	case confidence >= 0.4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
