// internal/types/screener_config.go
package types

import (
	"fmt"
	"time"
)

// ScreenerConfig - пороги детекторов и флаги включения.
// Читается синхронно при каждой оценке; обновляется только целиком
// после успешной валидации (частичное применение запрещено).
type ScreenerConfig struct {
	VolumeSpikeThreshold        float64 `json:"volume_spike_threshold"`        // >1
	PriceBreakoutThreshold      float64 `json:"price_breakout_threshold"`      // >1
	OrderBookImbalanceThreshold float64 `json:"orderbook_imbalance_threshold"` // >1
	LiquidityWallThreshold      float64 `json:"liquidity_wall_threshold"`      // >1
	WhaleMinTurnover            float64 `json:"whale_min_turnover"`            // >=0
	WhaleMinChangePct           float64 `json:"whale_min_change_pct"`          // >=0

	SpoofDetectionEnabled bool `json:"spoof_detection_enabled"` // детектор дисбаланса стакана
	WhaleAlertsEnabled    bool `json:"whale_alerts_enabled"`
	LiquidityWallsEnabled bool `json:"liquidity_walls_enabled"`

	MinAlertInterval time.Duration `json:"min_alert_interval"` // >=0, 0 = без ограничения

	// Подтверждение всплеска объема несколькими методами
	VolumeAgreementEnabled bool `json:"volume_agreement_enabled"`
	MinAgreeingMethods     int  `json:"min_agreeing_methods"` // 1..4

	// Сколько последних свечей участвует в оценке объема
	VolumeLookback int `json:"volume_lookback"` // >=2
}

// DefaultScreenerConfig - пороги по умолчанию
func DefaultScreenerConfig() ScreenerConfig {
	return ScreenerConfig{
		VolumeSpikeThreshold:        2.0,
		PriceBreakoutThreshold:      1.005,
		OrderBookImbalanceThreshold: 2.0,
		LiquidityWallThreshold:      5.0,
		WhaleMinTurnover:            1_000_000,
		WhaleMinChangePct:           5.0,
		SpoofDetectionEnabled:       true,
		WhaleAlertsEnabled:          true,
		LiquidityWallsEnabled:       true,
		MinAlertInterval:            60 * time.Second,
		VolumeAgreementEnabled:      true,
		MinAgreeingMethods:          2,
		VolumeLookback:              5,
	}
}

// Validate проверяет корректность порогов
func (c ScreenerConfig) Validate() error {
	if c.VolumeSpikeThreshold <= 1 {
		return fmt.Errorf("volume spike threshold must be > 1, got %.4f", c.VolumeSpikeThreshold)
	}
	if c.PriceBreakoutThreshold <= 1 {
		return fmt.Errorf("price breakout threshold must be > 1, got %.4f", c.PriceBreakoutThreshold)
	}
	if c.OrderBookImbalanceThreshold <= 1 {
		return fmt.Errorf("orderbook imbalance threshold must be > 1, got %.4f", c.OrderBookImbalanceThreshold)
	}
	if c.LiquidityWallThreshold <= 1 {
		return fmt.Errorf("liquidity wall threshold must be > 1, got %.4f", c.LiquidityWallThreshold)
	}
	if c.WhaleMinTurnover < 0 {
		return fmt.Errorf("whale min turnover must be >= 0, got %.2f", c.WhaleMinTurnover)
	}
	if c.WhaleMinChangePct < 0 {
		return fmt.Errorf("whale min change pct must be >= 0, got %.2f", c.WhaleMinChangePct)
	}
	if c.MinAlertInterval < 0 {
		return fmt.Errorf("min alert interval must be >= 0, got %v", c.MinAlertInterval)
	}
	if c.MinAgreeingMethods < 1 || c.MinAgreeingMethods > 4 {
		return fmt.Errorf("min agreeing methods must be in 1..4, got %d", c.MinAgreeingMethods)
	}
	if c.VolumeLookback < 2 {
		return fmt.Errorf("volume lookback must be >= 2, got %d", c.VolumeLookback)
	}
	return nil
}

// ScreenerConfigPatch - частичное обновление порогов.
// nil-поля оставляют прежние значения.
type ScreenerConfigPatch struct {
	VolumeSpikeThreshold        *float64       `json:"volume_spike_threshold,omitempty"`
	PriceBreakoutThreshold      *float64       `json:"price_breakout_threshold,omitempty"`
	OrderBookImbalanceThreshold *float64       `json:"orderbook_imbalance_threshold,omitempty"`
	LiquidityWallThreshold      *float64       `json:"liquidity_wall_threshold,omitempty"`
	WhaleMinTurnover            *float64       `json:"whale_min_turnover,omitempty"`
	WhaleMinChangePct           *float64       `json:"whale_min_change_pct,omitempty"`
	SpoofDetectionEnabled       *bool          `json:"spoof_detection_enabled,omitempty"`
	WhaleAlertsEnabled          *bool          `json:"whale_alerts_enabled,omitempty"`
	LiquidityWallsEnabled       *bool          `json:"liquidity_walls_enabled,omitempty"`
	MinAlertInterval            *time.Duration `json:"min_alert_interval,omitempty"`
	VolumeAgreementEnabled      *bool          `json:"volume_agreement_enabled,omitempty"`
	MinAgreeingMethods          *int           `json:"min_agreeing_methods,omitempty"`
	VolumeLookback              *int           `json:"volume_lookback,omitempty"`
}

// Apply возвращает копию конфигурации с наложенным патчем
func (c ScreenerConfig) Apply(patch ScreenerConfigPatch) ScreenerConfig {
	merged := c

	if patch.VolumeSpikeThreshold != nil {
		merged.VolumeSpikeThreshold = *patch.VolumeSpikeThreshold
	}
	if patch.PriceBreakoutThreshold != nil {
		merged.PriceBreakoutThreshold = *patch.PriceBreakoutThreshold
	}
	if patch.OrderBookImbalanceThreshold != nil {
		merged.OrderBookImbalanceThreshold = *patch.OrderBookImbalanceThreshold
	}
	if patch.LiquidityWallThreshold != nil {
		merged.LiquidityWallThreshold = *patch.LiquidityWallThreshold
	}
	if patch.WhaleMinTurnover != nil {
		merged.WhaleMinTurnover = *patch.WhaleMinTurnover
	}
	if patch.WhaleMinChangePct != nil {
		merged.WhaleMinChangePct = *patch.WhaleMinChangePct
	}
	if patch.SpoofDetectionEnabled != nil {
		merged.SpoofDetectionEnabled = *patch.SpoofDetectionEnabled
	}
	if patch.WhaleAlertsEnabled != nil {
		merged.WhaleAlertsEnabled = *patch.WhaleAlertsEnabled
	}
	if patch.LiquidityWallsEnabled != nil {
		merged.LiquidityWallsEnabled = *patch.LiquidityWallsEnabled
	}
	if patch.MinAlertInterval != nil {
		merged.MinAlertInterval = *patch.MinAlertInterval
	}
	if patch.VolumeAgreementEnabled != nil {
		merged.VolumeAgreementEnabled = *patch.VolumeAgreementEnabled
	}
	if patch.MinAgreeingMethods != nil {
		merged.MinAgreeingMethods = *patch.MinAgreeingMethods
	}
	if patch.VolumeLookback != nil {
		merged.VolumeLookback = *patch.VolumeLookback
	}

	return merged
}
