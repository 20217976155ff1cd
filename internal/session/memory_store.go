package session

import (
	"context"
	"sync"
)

// MemoryStorage keeps session values in process memory.
type MemoryStorage struct {
	mu        sync.Mutex
	values    map[string]string
	listeners map[chan struct{}]struct{}
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		values:    map[string]string{},
		listeners: map[chan struct{}]struct{}{},
	}
}

func (m *MemoryStorage) Load(_ context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStorage) Save(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	for k, v := range values {
		m.values[k] = v
	}
	m.mu.Unlock()

	m.announce()
	return nil
}

func (m *MemoryStorage) Clear(_ context.Context) error {
	m.mu.Lock()
	m.values = map[string]string{}
	m.mu.Unlock()

	m.announce()
	return nil
}

// Changes signals after every Save or Clear until ctx is done.
func (m *MemoryStorage) Changes(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	m.mu.Lock()
	m.listeners[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.listeners, ch)
		m.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

func (m *MemoryStorage) announce() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ch := range m.listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
