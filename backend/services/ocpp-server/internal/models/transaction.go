package models

import (
	"time"

	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
)

// Transaction is the tracked state of one charging session. StationID and TransactionID
// identify it; ID is the storage key.
type Transaction struct {
	ID            int64     `db:"id" json:"id"`
	StationID     string    `db:"station_id" json:"stationId"`
	TransactionID string    `db:"transaction_id" json:"transactionId"`
	IsActive      bool      `db:"is_active" json:"isActive"`
	ChargingState string    `db:"charging_state" json:"chargingState,omitempty"`
	StoppedReason string    `db:"stopped_reason" json:"stoppedReason,omitempty"`
	EvseID        *int      `db:"evse_id" json:"evseId,omitempty"`
	ConnectorID   *int      `db:"connector_id" json:"connectorId,omitempty"`
	RemoteStartID *int      `db:"remote_start_id" json:"remoteStartId,omitempty"`
	IdToken       string    `db:"id_token" json:"idToken,omitempty"`
	IdTokenType   string    `db:"id_token_type" json:"idTokenType,omitempty"`
	TotalKwh      *float64  `db:"total_kwh" json:"totalKwh,omitempty"`
	TotalCost     *float64  `db:"total_cost" json:"totalCost,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// TransactionEvent is the immutable record of one TransactionEvent notification.
type TransactionEvent struct {
	ID              int64             `db:"id" json:"id"`
	TransactionDBID int64             `db:"transaction_db_id" json:"transactionDbId"`
	StationID       string            `db:"station_id" json:"stationId"`
	EventType       string            `db:"event_type" json:"eventType"`
	TriggerReason   string            `db:"trigger_reason" json:"triggerReason"`
	SeqNo           int               `db:"seq_no" json:"seqNo"`
	Offline         bool              `db:"offline" json:"offline"`
	ReservationID   *int              `db:"reservation_id" json:"reservationId,omitempty"`
	IdToken         *protocol.IdToken `db:"id_token" json:"idToken,omitempty"`
	Timestamp       time.Time         `db:"timestamp" json:"timestamp"`
}

// ApplyEvent folds a TransactionEvent into t. Ended deactivates the transaction for good
// and new meter readings invalidate the cached energy total.
func (t *Transaction) ApplyEvent(event *protocol.TransactionEventRequest) {
	info := event.TransactionInfo
	t.TransactionID = info.TransactionID
	if info.ChargingState != "" {
		t.ChargingState = info.ChargingState
	}
	if info.StoppedReason != "" {
		t.StoppedReason = info.StoppedReason
	}
	if info.RemoteStartID != nil {
		t.RemoteStartID = info.RemoteStartID
	}
	if event.EVSE != nil {
		evseID := event.EVSE.ID
		t.EvseID = &evseID
		if event.EVSE.ConnectorID != nil {
			t.ConnectorID = event.EVSE.ConnectorID
		}
	}
	if event.IdToken != nil {
		t.IdToken = event.IdToken.IdToken
		t.IdTokenType = event.IdToken.Type
	}
	if event.EventType == protocol.TransactionEventEnded {
		t.IsActive = false
	}
	if len(event.MeterValue) > 0 {
		t.TotalKwh = nil
	}
}
