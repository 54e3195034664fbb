package handlers

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"evgrid/backend/services/ocpp-server/internal/ocpp"
	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
)

// NewCostUpdatedResponseHandler logs a station's answer to CostUpdated.
func NewCostUpdatedResponseHandler(logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, mc ocpp.MessageContext, payload json.RawMessage) (interface{}, error) {
		logger.Debug("cost updated acknowledged",
			zap.String("station_id", mc.StationID),
			zap.String("message_id", mc.CorrelationID),
		)
		return nil, nil
	}
}

// NewGetTransactionStatusResponseHandler logs a station's answer to GetTransactionStatus.
func NewGetTransactionStatusResponseHandler(logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, mc ocpp.MessageContext, payload json.RawMessage) (interface{}, error) {
		resp, err := ocpp.Decode[protocol.GetTransactionStatusResponse](payload)
		if err != nil {
			return nil, err
		}
		fields := []zap.Field{
			zap.String("station_id", mc.StationID),
			zap.String("message_id", mc.CorrelationID),
			zap.Bool("messages_in_queue", resp.MessagesInQueue),
		}
		if resp.OngoingIndicator != nil {
			fields = append(fields, zap.Bool("ongoing", *resp.OngoingIndicator))
		}
		logger.Info("transaction status received", fields...)
		return nil, nil
	}
}
