package handlers

import (
	"context"
	"time"

	"evgrid/backend/services/ocpp-server/internal/ocpp"
	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
	"evgrid/backend/services/ocpp-server/internal/service"
)

// IdTokenAuthorizer decides whether an IdToken may charge.
type IdTokenAuthorizer interface {
	Authorize(ctx context.Context, req service.AuthorizationRequest) (protocol.IdTokenInfo, error)
}

// MeterValidator checks signed meter values.
type MeterValidator interface {
	Validate(ctx context.Context, stationID string, meterValues []protocol.MeterValue) (bool, error)
}

// CostScheduler arms and cancels periodic cost updates.
type CostScheduler interface {
	Start(mc ocpp.MessageContext, transactionID string, interval time.Duration) bool
	Stop(stationID, transactionID string) bool
}

// StatusProcessor records connector status reports.
type StatusProcessor interface {
	Process(ctx context.Context, mc ocpp.MessageContext, req protocol.StatusNotificationRequest) error
}
