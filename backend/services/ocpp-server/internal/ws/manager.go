package ws

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"evgrid/backend/services/ocpp-server/internal/metrics"
	"evgrid/backend/services/ocpp-server/internal/ocpp"
)

// Manager tracks station connections and delivers outgoing frames to them.
type Manager struct {
	mu           sync.RWMutex
	connections  map[string]*Connection
	pingInterval time.Duration
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewManager builds connection manager. m may be nil.
func NewManager(pingInterval time.Duration, m *metrics.Metrics, logger *zap.Logger) *Manager {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Manager{
		connections:  make(map[string]*Connection),
		pingInterval: pingInterval,
		metrics:      m,
		logger:       logger,
	}
}

// Add registers conn, closing an older connection of the same station.
func (m *Manager) Add(conn *Connection) {
	m.mu.Lock()
	previous := m.connections[conn.StationID()]
	m.connections[conn.StationID()] = conn
	m.mu.Unlock()

	if previous != nil && previous != conn {
		m.logger.Info("replacing station connection", zap.String("station_id", conn.StationID()))
		previous.Close()
		return
	}
	m.metrics.StationConnected()
}

// Remove forgets conn if it is still the station's current connection and reports
// whether it was.
func (m *Manager) Remove(conn *Connection) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.connections[conn.StationID()]; !ok || current != conn {
		return false
	}
	delete(m.connections, conn.StationID())
	m.metrics.StationDisconnected()
	return true
}

// Get returns the live connection of a station.
func (m *Manager) Get(stationID string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.connections[stationID]
	return conn, ok
}

// Count returns the number of connected stations.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Send writes frame to the station's connection.
func (m *Manager) Send(ctx context.Context, stationID string, frame []byte) error {
	conn, ok := m.Get(stationID)
	if !ok {
		return ocpp.ErrNotConnected
	}
	return conn.Send(ctx, frame)
}

// Start begins ping loop to keep connections active. It closes every connection when ctx ends.
func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.CloseAll()
			return
		case <-ticker.C:
			m.mu.RLock()
			for _, conn := range m.connections {
				conn.Ping()
			}
			m.mu.RUnlock()
		}
	}
}

// CloseAll closes every connection.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, conn := range m.connections {
		conn.Close()
	}
}
