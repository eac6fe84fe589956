// internal/infrastructure/persistence/postgres/signal_repository.go
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"crypto-signal-screener/internal/types"
)

// SignalRow — строка таблицы emitted_signals
type SignalRow struct {
	ID             uuid.UUID `db:"id"`
	Symbol         string    `db:"symbol"`
	SignalStrength float64   `db:"signal_strength"`
	Findings       []byte    `db:"findings"`
	EmittedAt      time.Time `db:"emitted_at"`
}

// EmittedSignalRecord — запись истории сигналов
type EmittedSignalRecord struct {
	ID             uuid.UUID       `json:"id"`
	Symbol         string          `json:"symbol"`
	SignalStrength float64         `json:"signal_strength"`
	Findings       []types.Finding `json:"findings"`
	EmittedAt      time.Time       `json:"emitted_at"`
}

// SignalRepository хранит историю эмитированных сигналов в PostgreSQL
type SignalRepository struct {
	db *sqlx.DB
}

// NewSignalRepository создает репозиторий истории сигналов
func NewSignalRepository(db *sqlx.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// Save записывает эмитированный сигнал
func (r *SignalRepository) Save(ctx context.Context, id string, state types.AggregateState, emittedAt time.Time) error {
	findings, err := json.Marshal(state.Findings)
	if err != nil {
		return fmt.Errorf("failed to marshal findings: %w", err)
	}

	query := `
		INSERT INTO emitted_signals (id, symbol, signal_strength, findings, emitted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = r.db.ExecContext(ctx, query, id, state.Symbol, state.SignalStrength, findings, emittedAt)
	if err != nil {
		return fmt.Errorf("failed to save signal: %w", err)
	}
	return nil
}

// Recent возвращает последние сигналы, новые первыми
func (r *SignalRepository) Recent(ctx context.Context, limit int) ([]EmittedSignalRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, symbol, signal_strength, findings, emitted_at
		FROM emitted_signals
		ORDER BY emitted_at DESC
		LIMIT $1
	`
	var rows []SignalRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	return decodeRows(rows)
}

// RecentBySymbol возвращает последние сигналы одного символа
func (r *SignalRepository) RecentBySymbol(ctx context.Context, symbol string, limit int) ([]EmittedSignalRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, symbol, signal_strength, findings, emitted_at
		FROM emitted_signals
		WHERE symbol = $1
		ORDER BY emitted_at DESC
		LIMIT $2
	`
	var rows []SignalRow
	if err := r.db.SelectContext(ctx, &rows, query, symbol, limit); err != nil {
		return nil, fmt.Errorf("failed to query signals for %s: %w", symbol, err)
	}
	return decodeRows(rows)
}

// CountSince возвращает количество сигналов с указанного момента
func (r *SignalRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM emitted_signals WHERE emitted_at >= $1`
	err := r.db.GetContext(ctx, &count, query, since)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to count signals: %w", err)
	}
	return count, nil
}

func decodeRows(rows []SignalRow) ([]EmittedSignalRecord, error) {
	records := make([]EmittedSignalRecord, 0, len(rows))
	for _, row := range rows {
		var findings []types.Finding
		if err := json.Unmarshal(row.Findings, &findings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal findings for %s: %w", row.Symbol, err)
		}
		records = append(records, EmittedSignalRecord{
			ID:             row.ID,
			Symbol:         row.Symbol,
			SignalStrength: row.SignalStrength,
			Findings:       findings,
			EmittedAt:      row.EmittedAt,
		})
	}
	return records, nil
}
