// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"crypto-signal-screener/internal/types"
	"crypto-signal-screener/pkg/logger"
)

// Config - структура конфигурации приложения
type Config struct {
	// Upstream feed
	WSURL          string
	KlineInterval  string
	OrderBookDepth int
	ReconnectDelay time.Duration
	MaxSymbols     int
	SymbolFilter   []string

	// Периодическая переоценка
	EvalInterval time.Duration

	// Хранилище рыночных данных
	CandleCapacity        int
	VolumeHistoryCapacity int

	// Broadcaster
	ConsumerQueueSize int

	// Redis (опционально, пустой Addr = выключено)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStateTTL time.Duration

	// PostgreSQL (опционально, пустой Host = выключено)
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Logging
	LogLevel string
	LogFile  string

	// Пороги детекторов
	Screener types.ScreenerConfig
}

// LoadConfig загружает конфигурацию из .env файла
func LoadConfig(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		logger.Warn("⚠️ Не удалось загрузить %s: %v", envPath, err)
	}

	screener := types.DefaultScreenerConfig()
	screener.VolumeSpikeThreshold = getEnvFloat("VOLUME_SPIKE_THRESHOLD", screener.VolumeSpikeThreshold)
	screener.PriceBreakoutThreshold = getEnvFloat("PRICE_BREAKOUT_THRESHOLD", screener.PriceBreakoutThreshold)
	screener.OrderBookImbalanceThreshold = getEnvFloat("ORDERBOOK_IMBALANCE_THRESHOLD", screener.OrderBookImbalanceThreshold)
	screener.LiquidityWallThreshold = getEnvFloat("LIQUIDITY_WALL_THRESHOLD", screener.LiquidityWallThreshold)
	screener.WhaleMinTurnover = getEnvFloat("WHALE_MIN_TURNOVER", screener.WhaleMinTurnover)
	screener.WhaleMinChangePct = getEnvFloat("WHALE_MIN_CHANGE_PCT", screener.WhaleMinChangePct)
	screener.SpoofDetectionEnabled = getEnvBool("SPOOF_DETECTION_ENABLED", screener.SpoofDetectionEnabled)
	screener.WhaleAlertsEnabled = getEnvBool("WHALE_ALERTS_ENABLED", screener.WhaleAlertsEnabled)
	screener.LiquidityWallsEnabled = getEnvBool("LIQUIDITY_WALLS_ENABLED", screener.LiquidityWallsEnabled)
	screener.MinAlertInterval = time.Duration(getEnvInt("MIN_ALERT_INTERVAL_MS", 60_000)) * time.Millisecond
	screener.VolumeAgreementEnabled = getEnvBool("VOLUME_AGREEMENT_ENABLED", screener.VolumeAgreementEnabled)
	screener.MinAgreeingMethods = getEnvInt("MIN_AGREEING_METHODS", screener.MinAgreeingMethods)
	screener.VolumeLookback = getEnvInt("VOLUME_LOOKBACK", screener.VolumeLookback)

	config := &Config{
		WSURL:          getEnvString("WS_URL", "wss://stream.bybit.com/v5/public/linear"),
		KlineInterval:  getEnvString("KLINE_INTERVAL", "1"),
		OrderBookDepth: getEnvInt("ORDERBOOK_DEPTH", 50),
		ReconnectDelay: time.Duration(getEnvInt("RECONNECT_DELAY_SEC", 5)) * time.Second,
		MaxSymbols:     getEnvInt("MAX_SYMBOLS", 50),
		SymbolFilter:   parseSymbols(getEnvString("SYMBOLS", "BTCUSDT,ETHUSDT")),

		EvalInterval: time.Duration(getEnvInt("EVAL_INTERVAL_SEC", 30)) * time.Second,

		CandleCapacity:        getEnvInt("CANDLE_CAPACITY", 100),
		VolumeHistoryCapacity: getEnvInt("VOLUME_HISTORY_CAPACITY", 20),

		ConsumerQueueSize: getEnvInt("CONSUMER_QUEUE_SIZE", 64),

		RedisAddr:     getEnvString("REDIS_ADDR", ""),
		RedisPassword: getEnvString("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisStateTTL: time.Duration(getEnvInt("REDIS_STATE_TTL_SEC", 300)) * time.Second,

		PostgresHost:     getEnvString("POSTGRES_HOST", ""),
		PostgresPort:     getEnvInt("POSTGRES_PORT", 5432),
		PostgresUser:     getEnvString("POSTGRES_USER", "screener"),
		PostgresPassword: getEnvString("POSTGRES_PASSWORD", ""),
		PostgresDB:       getEnvString("POSTGRES_DB", "screener"),
		PostgresSSLMode:  getEnvString("POSTGRES_SSLMODE", "disable"),

		LogLevel: getEnvString("LOG_LEVEL", "info"),
		LogFile:  getEnvString("LOG_FILE", "logs/screener.log"),

		Screener: screener,
	}

	return config, nil
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.WSURL == "" {
		return fmt.Errorf("WS URL is required")
	}
	if c.EvalInterval < time.Second {
		return fmt.Errorf("eval interval must be at least 1 second")
	}
	if c.ReconnectDelay < time.Second {
		return fmt.Errorf("reconnect delay must be at least 1 second")
	}
	if len(c.SymbolFilter) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	if err := c.Screener.Validate(); err != nil {
		return fmt.Errorf("screener config: %w", err)
	}
	return nil
}

// PostgresDSN собирает строку подключения к PostgreSQL
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser,
		c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}

// Вспомогательные функции для парсинга переменных окружения

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func parseSymbols(symbolsStr string) []string {
	parts := strings.Split(symbolsStr, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.ToUpper(strings.TrimSpace(part))
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
