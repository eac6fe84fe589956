// internal/signals/history.go
package signals

import "sync"

// DefaultHistoryCapacity - глубина кольца истории по умолчанию
const DefaultHistoryCapacity = 256

// HistoryRing - ограниченное кольцо эмитированных событий.
// Самые старые затираются, память не растет.
type HistoryRing struct {
	mu       sync.RWMutex
	buffer   []EmittedSignal
	capacity int
	next     int
	size     int
}

// NewHistoryRing создает кольцо заданной емкости
func NewHistoryRing(capacity int) *HistoryRing {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &HistoryRing{
		buffer:   make([]EmittedSignal, capacity),
		capacity: capacity,
	}
}

// Add добавляет событие, затирая самое старое при переполнении
func (r *HistoryRing) Add(signal EmittedSignal) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer[r.next] = signal
	r.next = (r.next + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

// Recent возвращает до limit последних событий, новые первыми.
// limit <= 0 означает всё содержимое кольца.
func (r *HistoryRing) Recent(limit int) []EmittedSignal {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > r.size {
		limit = r.size
	}

	result := make([]EmittedSignal, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (r.next - 1 - i + r.capacity*2) % r.capacity
		result = append(result, r.buffer[idx])
	}
	return result
}

// Len возвращает количество событий в кольце
func (r *HistoryRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}
