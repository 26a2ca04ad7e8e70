package client

import (
	"sync"

	"go.uber.org/zap"
)

// Manager maintains the registry of all connected client Conns.
// Adding or removing a connection never disturbs an in-progress
// publish: publishes go through each Conn's own buffered channel.
type Manager struct {
	mu     sync.RWMutex
	conns  map[string]*Conn // conn ID → conn
	logger *zap.Logger
}

// NewManager creates a new Manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		conns:  make(map[string]*Conn),
		logger: logger,
	}
}

// Register adds a connection to the registry.
func (m *Manager) Register(c *Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[c.ID] = c
	m.logger.Info("client connected",
		zap.String("conn_id", c.ID),
		zap.Int64("account_id", c.AccountID))
}

// Unregister removes a connection from the registry.
func (m *Manager) Unregister(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, connID)
	m.logger.Info("client disconnected", zap.String("conn_id", connID))
}

// Get returns the connection with the given id, or nil.
func (m *Manager) Get(connID string) *Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conns[connID]
}

// Count returns the number of connected clients.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Each calls fn for every connected client. fn must not block.
func (m *Manager) Each(fn func(*Conn)) {
	m.mu.RLock()
	snapshot := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		snapshot = append(snapshot, c)
	}
	m.mu.RUnlock()
	for _, c := range snapshot {
		fn(c)
	}
}
