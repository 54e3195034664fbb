package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"evgrid/backend/services/ocpp-server/internal/models"
)

// TariffRepository handles tariff lookups.
type TariffRepository struct {
	pool *pgxpool.Pool
}

// NewTariffRepository returns repository.
func NewTariffRepository(pool *pgxpool.Pool) *TariffRepository {
	return &TariffRepository{pool: pool}
}

// ReadActiveTariffByStation returns the station's most recently updated active tariff.
func (r *TariffRepository) ReadActiveTariffByStation(ctx context.Context, stationID string) (*models.Tariff, error) {
	const query = `
		SELECT id, station_id, currency, price_per_kwh, is_active, created_at, updated_at
		FROM tariffs
		WHERE station_id = $1 AND is_active = true
		ORDER BY updated_at DESC
		LIMIT 1
	`
	var t models.Tariff
	err := r.pool.QueryRow(ctx, query, stationID).Scan(
		&t.ID,
		&t.StationID,
		&t.Currency,
		&t.PricePerKwh,
		&t.IsActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
