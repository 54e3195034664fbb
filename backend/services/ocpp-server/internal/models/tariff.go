package models

import "time"

// Tariff is the active price applied to energy delivered at a station.
type Tariff struct {
	ID          int64     `db:"id" json:"id"`
	StationID   string    `db:"station_id" json:"stationId"`
	Currency    string    `db:"currency" json:"currency"`
	PricePerKwh float64   `db:"price_per_kwh" json:"pricePerKwh"`
	IsActive    bool      `db:"is_active" json:"isActive"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}
