package rpc

import (
	"fmt"
	"sync"
)

// ConnectionHub tracks live connections so the node can broadcast to them.
type ConnectionHub struct {
	connections map[string]Connection
	mu          sync.RWMutex
}

func NewConnectionHub() *ConnectionHub {
	return &ConnectionHub{
		connections: make(map[string]Connection),
	}
}

// Add registers conn. Connection IDs must be unique.
func (hub *ConnectionHub) Add(conn Connection) error {
	if conn == nil {
		return fmt.Errorf("connection cannot be nil")
	}

	connID := conn.ConnectionID()

	hub.mu.Lock()
	defer hub.mu.Unlock()

	if _, exists := hub.connections[connID]; exists {
		return fmt.Errorf("connection with ID %s already exists", connID)
	}

	hub.connections[connID] = conn
	return nil
}

// Get returns the connection with connID or nil.
func (hub *ConnectionHub) Get(connID string) Connection {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	return hub.connections[connID]
}

func (hub *ConnectionHub) Remove(connID string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	delete(hub.connections, connID)
}

func (hub *ConnectionHub) Count() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	return len(hub.connections)
}

// Broadcast queues message on every registered connection.
func (hub *ConnectionHub) Broadcast(message []byte) {
	hub.mu.RLock()
	conns := make([]Connection, 0, len(hub.connections))
	for _, conn := range hub.connections {
		conns = append(conns, conn)
	}
	hub.mu.RUnlock()

	for _, conn := range conns {
		conn.WriteRawResponse(message)
	}
}
