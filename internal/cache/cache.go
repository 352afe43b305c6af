package cache

import (
	"sync"
	"time"
)

type Storage interface {
	Get(key string) []byte
	Set(key string, content []byte, duration time.Duration)
}

type item struct {
	content []byte
	expires time.Time
}

// Memory is an in-memory Storage whose entries expire after their duration.
type Memory struct {
	mu    sync.Mutex
	items map[string]item
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{items: map[string]item{}, now: time.Now}
}

func (m *Memory) Get(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[key]
	if !ok {
		return nil
	}
	if m.now().After(it.expires) {
		delete(m.items, key)
		return nil
	}
	return it.content
}

func (m *Memory) Set(key string, content []byte, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = item{content: content, expires: m.now().Add(duration)}
}

// Invalidate drops every cached entry.
func (m *Memory) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = map[string]item{}
}
