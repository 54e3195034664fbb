package models

import "time"

// StatusNotification is one connector status report as received.
type StatusNotification struct {
	ID              int64     `db:"id" json:"id"`
	StationID       string    `db:"station_id" json:"stationId"`
	TenantID        string    `db:"tenant_id" json:"tenantId"`
	EvseID          int       `db:"evse_id" json:"evseId"`
	ConnectorID     int       `db:"connector_id" json:"connectorId"`
	ConnectorStatus string    `db:"connector_status" json:"connectorStatus"`
	Timestamp       time.Time `db:"timestamp" json:"timestamp"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
}

// StationSecurityInfo holds per-station credentials used at connect time and when
// verifying signed meter values.
type StationSecurityInfo struct {
	StationID      string    `db:"station_id" json:"stationId"`
	TenantID       string    `db:"tenant_id" json:"tenantId"`
	PasswordHash   string    `db:"password_hash" json:"-"`
	MeterPublicKey string    `db:"meter_public_key" json:"meterPublicKey,omitempty"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}
