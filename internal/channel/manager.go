package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Manager coordinates all channels
type Manager struct {
	channels map[string]Channel
	started  []string
	mu       sync.RWMutex
}

// NewManager creates a channel manager
func NewManager() *Manager {
	return &Manager{channels: make(map[string]Channel)}
}

// Register adds a channel
func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

// Names returns registered channel names
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartAll starts channels in name order. On the first failure the channels
// already started are stopped again and the error is returned.
func (m *Manager) StartAll(ctx context.Context) error {
	for _, name := range m.Names() {
		m.mu.RLock()
		ch := m.channels[name]
		m.mu.RUnlock()

		slog.Info("starting channel", "name", name)
		if err := ch.Start(ctx); err != nil {
			m.StopAll(ctx)
			return fmt.Errorf("start channel %s: %w", name, err)
		}
		m.mu.Lock()
		m.started = append(m.started, name)
		m.mu.Unlock()
	}
	return nil
}

// StopAll stops started channels in reverse start order.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	started := m.started
	m.started = nil
	m.mu.Unlock()

	for i := len(started) - 1; i >= 0; i-- {
		m.mu.RLock()
		ch, ok := m.channels[started[i]]
		m.mu.RUnlock()
		if !ok {
			continue
		}
		if err := ch.Stop(ctx); err != nil {
			slog.Warn("channel stop failed", "name", started[i], "error", err)
		}
	}
}
