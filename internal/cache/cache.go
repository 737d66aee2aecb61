package cache

import (
	"context"
	"sync"
	"time"
)

// BytesCache — кэш "текущего состояния" как сырых байт.
// Реализации: rediscache (общий для инстансов) и Memory (локальный, для тестов).
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Clear(ctx context.Context, key string) error
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// Memory — in-memory BytesCache с внедряемыми часами, чтобы истечение TTL
// проверялось без ожидания настоящего времени.
type Memory struct {
	mu    sync.Mutex
	clock Clock
	items map[string]memoryItem
}

func NewMemory(clock Clock) *Memory {
	if clock == nil {
		clock = SystemClock()
	}
	return &Memory{clock: clock, items: make(map[string]memoryItem)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	if !it.expiresAt.IsZero() && !m.clock.Now().Before(it.expiresAt) {
		delete(m.items, key)
		return nil, false, nil
	}
	out := make([]byte, len(it.value))
	copy(out, it.value)
	return out, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		it.expiresAt = m.clock.Now().Add(ttl)
	}
	m.items[key] = it
	return nil
}

func (m *Memory) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, key)
	return nil
}
