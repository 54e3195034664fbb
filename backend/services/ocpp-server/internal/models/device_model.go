package models

import "time"

// VariableAttribute is the reported value of a component variable.
type VariableAttribute struct {
	StationID   string    `db:"station_id" json:"stationId"`
	Component   string    `db:"component" json:"component"`
	EvseID      *int      `db:"evse_id" json:"evseId,omitempty"`
	ConnectorID *int      `db:"connector_id" json:"connectorId,omitempty"`
	Variable    string    `db:"variable" json:"variable"`
	Value       string    `db:"value" json:"value"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}
