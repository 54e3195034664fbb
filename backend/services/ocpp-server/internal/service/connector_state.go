package service

import "sync"

type connectorKey struct {
	stationID   string
	evseID      int
	connectorID int
}

// ConnectorStatuses remembers the last reported status of every connector seen by this
// process.
type ConnectorStatuses struct {
	mu       sync.RWMutex
	statuses map[connectorKey]string
}

func NewConnectorStatuses() *ConnectorStatuses {
	return &ConnectorStatuses{statuses: make(map[connectorKey]string)}
}

// Update records status and reports whether it differs from the previous one.
func (c *ConnectorStatuses) Update(stationID string, evseID, connectorID int, status string) bool {
	key := connectorKey{stationID: stationID, evseID: evseID, connectorID: connectorID}

	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.statuses[key]
	c.statuses[key] = status
	return !ok || prev != status
}

// Status returns the last status of a connector.
func (c *ConnectorStatuses) Status(stationID string, evseID, connectorID int) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.statuses[connectorKey{stationID: stationID, evseID: evseID, connectorID: connectorID}]
	return s, ok
}

// Forget drops every connector of a station.
func (c *ConnectorStatuses) Forget(stationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.statuses {
		if k.stationID == stationID {
			delete(c.statuses, k)
		}
	}
}
