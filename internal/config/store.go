// internal/config/store.go
package config

import (
	"fmt"
	"sync"

	"crypto-signal-screener/internal/types"
	"crypto-signal-screener/pkg/logger"
)

// Store - потокобезопасное хранилище порогов детекторов.
// Detectors читают конфигурацию через Current(), обновления
// применяются атомарно: невалидный патч не меняет состояние.
type Store struct {
	mu      sync.RWMutex
	current types.ScreenerConfig
	updates uint64
}

// NewStore создает хранилище с начальной конфигурацией
func NewStore(initial types.ScreenerConfig) (*Store, error) {
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("initial screener config: %w", err)
	}
	return &Store{current: initial}, nil
}

// Current возвращает актуальную конфигурацию (копию)
func (s *Store) Current() types.ScreenerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update применяет патч к текущей конфигурации.
// Патч валидируется целиком до применения: при ошибке
// ни одно поле не меняется.
func (s *Store) Update(patch types.ScreenerConfigPatch) (types.ScreenerConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := s.current.Apply(patch)
	if err := candidate.Validate(); err != nil {
		return s.current, fmt.Errorf("invalid screener config update: %w", err)
	}

	s.current = candidate
	s.updates++
	logger.Info("✅ Конфигурация детекторов обновлена (версия %d)", s.updates)
	return s.current, nil
}

// Updates возвращает количество успешных обновлений
func (s *Store) Updates() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updates
}
