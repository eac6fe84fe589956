// internal/infrastructure/persistence/postgres/connection.go
package postgres

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"crypto-signal-screener/pkg/logger"
)

// Connect открывает пул соединений с PostgreSQL и
// создаёт схему истории сигналов, если её ещё нет
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	// Настройки пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if err := ensureSchema(db); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	logger.Info("✅ Подключение к PostgreSQL установлено")
	return db, nil
}

// ensureSchema создаёт таблицу истории сигналов
func ensureSchema(db *sqlx.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS emitted_signals (
		id              UUID PRIMARY KEY,
		symbol          TEXT NOT NULL,
		signal_strength DOUBLE PRECISION NOT NULL,
		findings        JSONB NOT NULL,
		emitted_at      TIMESTAMPTZ NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_emitted_signals_symbol
		ON emitted_signals (symbol, emitted_at DESC);
	CREATE INDEX IF NOT EXISTS idx_emitted_signals_emitted_at
		ON emitted_signals (emitted_at DESC);
	`
	_, err := db.Exec(schema)
	return err
}
