package models

import "time"

// Reservation of an EVSE. The transaction core only ever ends reservations.
type Reservation struct {
	ID                      int        `db:"id" json:"id"`
	StationID               string     `db:"station_id" json:"stationId"`
	EvseID                  *int       `db:"evse_id" json:"evseId,omitempty"`
	ExpiryDateTime          time.Time  `db:"expiry_date_time" json:"expiryDateTime"`
	IsActive                bool       `db:"is_active" json:"isActive"`
	TerminatedByTransaction *string    `db:"terminated_by_transaction" json:"terminatedByTransaction,omitempty"`
	UpdatedAt               *time.Time `db:"updated_at" json:"updatedAt,omitempty"`
}
