package service

import (
	"context"

	"evgrid/backend/services/ocpp-server/internal/models"
	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
)

// TransactionStore tracks transactions, their events and meter values.
// CreateOrUpdateTransaction must be atomic per (stationID, transaction id).
type TransactionStore interface {
	CreateOrUpdateTransaction(ctx context.Context, stationID string, event *protocol.TransactionEventRequest) (*models.Transaction, error)
	ReadTransaction(ctx context.Context, stationID, transactionID string) (*models.Transaction, error)
	CreateMeterValue(ctx context.Context, stationID string, transactionDBID *int64, mv protocol.MeterValue) error
	ReadMeterValues(ctx context.Context, transactionDBID int64) ([]models.MeterValue, error)
	UpdateTransactionTotalKwh(ctx context.Context, transactionDBID int64, totalKwh float64) error
	CountActiveTransactionsByIdToken(ctx context.Context, idToken, idTokenType, excludeStationID, excludeTransactionID string) (int, error)
}

type TariffStore interface {
	ReadActiveTariffByStation(ctx context.Context, stationID string) (*models.Tariff, error)
}

type ReservationStore interface {
	TerminateReservation(ctx context.Context, reservationID int, stationID, transactionID string) (int64, error)
}

type DeviceModelStore interface {
	ReadVariableAttribute(ctx context.Context, stationID, component, variable string) (*models.VariableAttribute, error)
	UpsertVariableAttribute(ctx context.Context, attr models.VariableAttribute) error
}

type AuthorizationStore interface {
	ReadAuthorization(ctx context.Context, tenantID, idToken, idTokenType string) (*models.Authorization, error)
}

type LocationStore interface {
	AddStatusNotification(ctx context.Context, n models.StatusNotification) error
}

type StationSecurityStore interface {
	ReadSecurityInfo(ctx context.Context, stationID string) (*models.StationSecurityInfo, error)
}
