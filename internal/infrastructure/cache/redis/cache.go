// internal/infrastructure/cache/redis/cache.go
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"crypto-signal-screener/internal/types"
)

// Cache — обёртка над Redis с префиксом ключей и JSON-сериализацией.
// Используется как разделяемый кэш актуального состояния сигналов.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewCache создает подключение к Redis
func NewCache(addr, password string, db int, ttl time.Duration) *Cache {
	return &Cache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		prefix: "screener:",
		ttl:    ttl,
	}
}

// Ping проверяет доступность Redis
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close закрывает соединение
func (c *Cache) Close() error {
	return c.client.Close()
}

// Set устанавливает значение с TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	fullKey := c.prefix + key

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, fullKey, data, ttl).Err()
}

// Get получает значение по ключу
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	fullKey := c.prefix + key

	data, err := c.client.Get(ctx, fullKey).Result()
	if err != nil {
		return err
	}

	return json.Unmarshal([]byte(data), dest)
}

// Delete удаляет ключ
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}

// SetAggregateState записывает агрегированное состояние символа
func (c *Cache) SetAggregateState(ctx context.Context, state types.AggregateState) error {
	key := fmt.Sprintf("state:%s", state.Symbol)
	return c.Set(ctx, key, state, c.ttl)
}

// GetAggregateState читает агрегированное состояние символа.
// Возвращает redis.Nil если состояния нет или оно истекло.
func (c *Cache) GetAggregateState(ctx context.Context, symbol string) (types.AggregateState, error) {
	var state types.AggregateState
	key := fmt.Sprintf("state:%s", symbol)
	err := c.Get(ctx, key, &state)
	return state, err
}

// ClearAggregateState удаляет состояние символа (сигналов больше нет)
func (c *Cache) ClearAggregateState(ctx context.Context, symbol string) error {
	return c.Delete(ctx, fmt.Sprintf("state:%s", symbol))
}
