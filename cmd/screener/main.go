package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-signal-screener/internal/broadcast"
	"crypto-signal-screener/internal/config"
	"crypto-signal-screener/internal/feed"
	rediscache "crypto-signal-screener/internal/infrastructure/cache/redis"
	"crypto-signal-screener/internal/infrastructure/persistence/postgres"
	"crypto-signal-screener/internal/market"
	"crypto-signal-screener/internal/screener"
	"crypto-signal-screener/internal/signals"
	"crypto-signal-screener/pkg/logger"
)

func main() {
	envPath := flag.String("env", ".env", "путь к файлу конфигурации")
	debug := flag.Bool("debug", false, "подробное логирование с цветами")
	flag.Parse()

	// Загружаем конфигурацию
	cfg, err := config.LoadConfig(*envPath)
	if err != nil {
		log.Fatalf("Не удалось загрузить конфигурацию: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Некорректная конфигурация: %v", err)
	}
	if cfg.MaxSymbols > 0 && len(cfg.SymbolFilter) > cfg.MaxSymbols {
		cfg.SymbolFilter = cfg.SymbolFilter[:cfg.MaxSymbols]
	}

	// Инициализируем логгер
	logLevel := cfg.LogLevel
	if *debug {
		logLevel = "debug"
	}
	if err := logger.InitGlobal(cfg.LogFile, logLevel, *debug); err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}

	printHeader("СКРИНЕР СИГНАЛОВ КРИПТОВАЛЮТНОГО РЫНКА")
	fmt.Printf("🔧 Конфигурация:\n")
	fmt.Printf("   WS: %s\n", cfg.WSURL)
	fmt.Printf("   Символов: %d, интервал свечей: %sм\n", len(cfg.SymbolFilter), cfg.KlineInterval)
	fmt.Printf("   Переоценка: каждые %v\n", cfg.EvalInterval)
	fmt.Printf("   Мин. интервал оповещений: %v\n", cfg.Screener.MinAlertInterval)
	fmt.Printf("   Порог всплеска объема: %.2fx\n", cfg.Screener.VolumeSpikeThreshold)
	fmt.Printf("   Порог пробоя цены: %.4fx\n", cfg.Screener.PriceBreakoutThreshold)
	fmt.Println()

	// Хранилище порогов детекторов
	thresholds, err := config.NewStore(cfg.Screener)
	if err != nil {
		logger.GetLogger().Fatal("Некорректные пороги детекторов: %v", err)
	}

	// Ядро: хранилище рыночных данных, агрегатор, broadcaster
	storeCfg := market.DefaultStoreConfig()
	storeCfg.CandleCapacity = cfg.CandleCapacity
	storeCfg.VolumeHistoryCapacity = cfg.VolumeHistoryCapacity
	store := market.NewStore(storeCfg)

	aggregator := signals.NewAggregator(store, thresholds, cfg.KlineInterval)
	hub := broadcast.NewHub(cfg.ConsumerQueueSize)

	service := screener.NewService(store, aggregator, hub, thresholds, cfg.KlineInterval, cfg.EvalInterval)

	// Опциональный Redis-кэш состояния
	if cfg.RedisAddr != "" {
		cache := rediscache.NewCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisStateTTL)
		pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
		if err := cache.Ping(pingCtx); err != nil {
			cancelPing()
			logger.GetLogger().Fatal("Redis недоступен: %v", err)
		}
		cancelPing()
		service.WithCache(cache)
		defer cache.Close()
		logger.Info("🗄️ Redis-кэш состояния: %s", cfg.RedisAddr)
	}

	// Опциональная история сигналов в PostgreSQL
	if cfg.PostgresHost != "" {
		db, err := postgres.Connect(cfg.PostgresDSN())
		if err != nil {
			logger.GetLogger().Fatal("Не удалось подключиться к PostgreSQL: %v", err)
		}
		defer db.Close()
		service.WithRepository(postgres.NewSignalRepository(db))
	}

	if err := service.Start(); err != nil {
		logger.GetLogger().Fatal("Не удалось запустить сервис: %v", err)
	}

	// Поток рыночных данных
	watcher := feed.NewWatcher(feed.Config{
		URL:            cfg.WSURL,
		Symbols:        cfg.SymbolFilter,
		KlineInterval:  cfg.KlineInterval,
		OrderBookDepth: cfg.OrderBookDepth,
		ReconnectDelay: cfg.ReconnectDelay,
	}, service)
	if err := watcher.Start(); err != nil {
		logger.GetLogger().Fatal("Не удалось запустить поток данных: %v", err)
	}

	startTime := time.Now()

	// Периодический статус
	statusStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				stats := service.GetStats()
				feedStats := watcher.GetStats()
				logger.GetLogger().Status(map[string]string{
					"Аптайм":          time.Since(startTime).Round(time.Second).String(),
					"Событий принято": fmt.Sprintf("%d", stats.Ingested),
					"Оценок":          fmt.Sprintf("%d", stats.Aggregator.Evaluations),
					"Сигналов":        fmt.Sprintf("%d", stats.Aggregator.Emitted),
					"Rate limited":    fmt.Sprintf("%d", stats.Aggregator.RateLimited),
					"Переподключений": fmt.Sprintf("%d", feedStats.Reconnects),
					"Потребителей":    fmt.Sprintf("%d", stats.Hub.Consumers),
				})
			case <-statusStop:
				return
			}
		}
	}()

	// Ожидаем сигнал остановки
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)
	<-stopChan

	fmt.Println()
	logger.Info("🛑 Получен сигнал остановки, завершаем работу...")

	close(statusStop)
	watcher.Stop()
	service.Stop()
	hub.Shutdown()

	stats := service.GetStats()
	logger.Info("✅ Завершено. Событий: %d, сигналов: %d, аптайм: %v",
		stats.Ingested, stats.Aggregator.Emitted, time.Since(startTime).Round(time.Second))
}

func printHeader(title string) {
	line := "═══════════════════════════════════════════════════════"
	fmt.Println(line)
	fmt.Printf("  %s\n", title)
	fmt.Println(line)
}
