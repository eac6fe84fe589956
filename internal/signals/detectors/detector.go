// internal/signals/detectors/detector.go
package detectors

import (
	"math"
	"time"

	"crypto-signal-screener/internal/market"
	"crypto-signal-screener/internal/types"
)

// Detector - детектор одного сигнального условия.
// Чистая функция от снимка состояния и порогов: одинаковый вход
// всегда дает одинаковый результат, никакой скрытой случайности.
type Detector interface {
	Name() string
	Type() types.FindingType
	// Enabled сообщает, включен ли детектор в данной конфигурации
	Enabled(cfg types.ScreenerConfig) bool
	// Evaluate возвращает сигнал или nil, если условие не выполнено
	Evaluate(snap market.Snapshot, cfg types.ScreenerConfig) *types.Finding
}

// All возвращает полный набор детекторов в порядке регистрации
func All() []Detector {
	return []Detector{
		&VolumeSpikeDetector{},
		&PriceBreakoutDetector{},
		&OrderBookImbalanceDetector{},
		&LiquidityWallDetector{},
		&WhaleActivityDetector{},
	}
}

// confidenceFromOvershoot переводит превышение порога в уверенность 0..1.
// Значение на пороге дает 0, двукратное превышение - 1.
func confidenceFromOvershoot(observed, threshold float64) float64 {
	if threshold <= 0 || observed <= threshold {
		return 0
	}
	overshoot := (observed - threshold) / threshold
	return math.Min(overshoot, 1)
}

// newFinding собирает Finding с серьезностью по уверенности
func newFinding(snap market.Snapshot, findingType types.FindingType, direction string, confidence float64, evidence map[string]float64) *types.Finding {
	detectedAt := snapshotTime(snap)
	return &types.Finding{
		Type:       findingType,
		Symbol:     snap.Symbol,
		Direction:  direction,
		Severity:   types.SeverityForConfidence(confidence),
		Confidence: confidence,
		Evidence:   evidence,
		DetectedAt: detectedAt,
	}
}

// snapshotTime выбирает время сигнала из данных снимка,
// чтобы результат не зависел от момента вызова
func snapshotTime(snap market.Snapshot) time.Time {
	if snap.Ticker != nil {
		return snap.Ticker.UpdatedAt
	}
	if snap.Book != nil {
		return snap.Book.Timestamp
	}
	if last, ok := snap.LastCandle(); ok {
		return last.OpenTime
	}
	return time.Time{}
}
