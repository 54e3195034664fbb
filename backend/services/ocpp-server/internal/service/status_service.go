package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"evgrid/backend/services/ocpp-server/internal/models"
	"evgrid/backend/services/ocpp-server/internal/ocpp"
	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
)

// StatusService records connector status reports and mirrors them into the device model.
type StatusService struct {
	locations   LocationStore
	deviceModel DeviceModelStore
	connectors  *ConnectorStatuses
	logger      *zap.Logger
}

func NewStatusService(locations LocationStore, deviceModel DeviceModelStore, connectors *ConnectorStatuses, logger *zap.Logger) *StatusService {
	if connectors == nil {
		connectors = NewConnectorStatuses()
	}
	return &StatusService{
		locations:   locations,
		deviceModel: deviceModel,
		connectors:  connectors,
		logger:      logger,
	}
}

// Process stores the report and, when the connector's status changed, updates its
// Connector.AvailabilityState attribute.
func (s *StatusService) Process(ctx context.Context, mc ocpp.MessageContext, req protocol.StatusNotificationRequest) error {
	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	err := s.locations.AddStatusNotification(ctx, models.StatusNotification{
		StationID:       mc.StationID,
		TenantID:        mc.TenantID,
		EvseID:          req.EvseID,
		ConnectorID:     req.ConnectorID,
		ConnectorStatus: req.ConnectorStatus,
		Timestamp:       ts,
	})
	if err != nil {
		return fmt.Errorf("service: add status notification: %w", err)
	}

	if prev, ok := s.connectors.Status(mc.StationID, req.EvseID, req.ConnectorID); ok && prev == req.ConnectorStatus {
		return nil
	}

	evseID, connectorID := req.EvseID, req.ConnectorID
	err = s.deviceModel.UpsertVariableAttribute(ctx, models.VariableAttribute{
		StationID:   mc.StationID,
		Component:   protocol.ComponentConnector,
		EvseID:      &evseID,
		ConnectorID: &connectorID,
		Variable:    protocol.VariableAvailabilityState,
		Value:       req.ConnectorStatus,
		UpdatedAt:   ts,
	})
	if err != nil {
		return fmt.Errorf("service: update availability state: %w", err)
	}
	s.connectors.Update(mc.StationID, evseID, connectorID, req.ConnectorStatus)

	s.logger.Debug("connector status changed",
		zap.String("station_id", mc.StationID),
		zap.Int("evse_id", evseID),
		zap.Int("connector_id", connectorID),
		zap.String("status", req.ConnectorStatus),
	)
	return nil
}

// Forget clears remembered connector statuses of a disconnected station.
func (s *StatusService) Forget(stationID string) {
	s.connectors.Forget(stationID)
}
