package handlers

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"evgrid/backend/services/ocpp-server/internal/ocpp"
	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
)

// NewStatusNotificationHandler records connector status. The station is always acknowledged.
func NewStatusNotificationHandler(statuses StatusProcessor, logger *zap.Logger) (ocpp.HandlerFunc, error) {
	if statuses == nil || logger == nil {
		return nil, errors.New("handlers: status notification: StatusProcessor and Logger are required")
	}

	return func(ctx context.Context, mc ocpp.MessageContext, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.StatusNotificationRequest](payload)
		if err != nil {
			return nil, err
		}

		if req.ConnectorStatus == "" {
			req.ConnectorStatus = protocol.ConnectorAvailable
		}

		if err := statuses.Process(ctx, mc, req); err != nil {
			logger.Warn("failed to record connector status",
				zap.String("station_id", mc.StationID),
				zap.Int("evse_id", req.EvseID),
				zap.Int("connector_id", req.ConnectorID),
				zap.Error(err),
			)
		}
		return protocol.StatusNotificationResponse{}, nil
	}, nil
}
