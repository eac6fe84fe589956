// internal/signals/volume_methods.go
package signals

import (
	"math"

	"crypto-signal-screener/internal/types"
)

// Независимые методы подтверждения всплеска объема. Каждый решает
// по-своему, есть ли всплеск на текущей свече; агрегатор требует
// согласия минимум MinAgreeingMethods из них.

const totalVolumeMethods = 4

// countAgreeingVolumeMethods возвращает число согласных методов
// и общее число методов
func countAgreeingVolumeMethods(candles []types.Candle, cfg types.ScreenerConfig) (int, int) {
	current, prev, ok := volumeWindow(candles, cfg.VolumeLookback)
	if !ok {
		return 0, totalVolumeMethods
	}

	agreeing := 0
	if methodSimpleRatio(current, prev, cfg.VolumeSpikeThreshold) {
		agreeing++
	}
	if methodVolatilityAdjusted(current, prev, cfg.VolumeSpikeThreshold) {
		agreeing++
	}
	if methodWeightedRecency(current, prev, cfg.VolumeSpikeThreshold) {
		agreeing++
	}
	if methodTimeOfDay(current, prev, candles[len(candles)-1], cfg.VolumeSpikeThreshold) {
		agreeing++
	}

	return agreeing, totalVolumeMethods
}

// volumeWindow выделяет текущий объем и объемы предыдущих свечей
func volumeWindow(candles []types.Candle, lookback int) (current float64, prev []float64, ok bool) {
	if len(candles) < 2 {
		return 0, nil, false
	}
	if lookback >= 2 && len(candles) > lookback {
		candles = candles[len(candles)-lookback:]
	}

	current = candles[len(candles)-1].Volume
	prev = make([]float64, 0, len(candles)-1)
	for _, c := range candles[:len(candles)-1] {
		prev = append(prev, c.Volume)
	}
	return current, prev, true
}

// methodSimpleRatio - простое отношение к среднему
func methodSimpleRatio(current float64, prev []float64, threshold float64) bool {
	avg := mean(prev)
	if avg == 0 {
		return current > 0
	}
	return current > avg*threshold
}

// methodVolatilityAdjusted - порог растет вместе с разбросом объемов:
// на шумной серии требуем более выраженного всплеска
func methodVolatilityAdjusted(current float64, prev []float64, threshold float64) bool {
	avg := mean(prev)
	if avg == 0 {
		return current > 0
	}

	variance := 0.0
	for _, v := range prev {
		diff := v - avg
		variance += diff * diff
	}
	variance /= float64(len(prev))
	relStdDev := math.Sqrt(variance) / avg

	adjusted := threshold * (1 + relStdDev)
	return current > avg*adjusted
}

// methodWeightedRecency - среднее с весом в пользу недавних свечей
func methodWeightedRecency(current float64, prev []float64, threshold float64) bool {
	var weightedSum, weightTotal float64
	for i, v := range prev {
		weight := float64(i + 1) // свежие тяжелее
		weightedSum += v * weight
		weightTotal += weight
	}
	if weightTotal == 0 {
		return false
	}

	weightedAvg := weightedSum / weightTotal
	if weightedAvg == 0 {
		return current > 0
	}
	return current > weightedAvg*threshold
}

// methodTimeOfDay - порог скорректирован по часу суток: в тихие ночные
// часы (UTC) базовый объем ниже и случайный заброс легче принять за
// всплеск, поэтому порог поднимается
func methodTimeOfDay(current float64, prev []float64, lastCandle types.Candle, threshold float64) bool {
	factor := 1.0
	hour := lastCandle.OpenTime.UTC().Hour()
	if hour < 6 {
		factor = 1.25
	}

	avg := mean(prev)
	if avg == 0 {
		return current > 0
	}
	return current > avg*threshold*factor
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
