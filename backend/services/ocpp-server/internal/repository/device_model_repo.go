package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"evgrid/backend/services/ocpp-server/internal/models"
)

// DeviceModelRepository reads and writes reported component variables.
type DeviceModelRepository struct {
	pool *pgxpool.Pool
}

// NewDeviceModelRepository returns repository.
func NewDeviceModelRepository(pool *pgxpool.Pool) *DeviceModelRepository {
	return &DeviceModelRepository{pool: pool}
}

// ReadVariableAttribute returns the value of component/variable, preferring the
// station-level instance over EVSE and connector ones.
func (r *DeviceModelRepository) ReadVariableAttribute(ctx context.Context, stationID, component, variable string) (*models.VariableAttribute, error) {
	const query = `
		SELECT station_id, component, NULLIF(evse_id, 0), NULLIF(connector_id, 0), variable, value, updated_at
		FROM variable_attributes
		WHERE station_id = $1 AND component = $2 AND variable = $3
		ORDER BY evse_id, connector_id
		LIMIT 1
	`
	var a models.VariableAttribute
	err := r.pool.QueryRow(ctx, query, stationID, component, variable).Scan(
		&a.StationID,
		&a.Component,
		&a.EvseID,
		&a.ConnectorID,
		&a.Variable,
		&a.Value,
		&a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpsertVariableAttribute stores the latest value for the attribute's component instance.
func (r *DeviceModelRepository) UpsertVariableAttribute(ctx context.Context, a models.VariableAttribute) error {
	const query = `
		INSERT INTO variable_attributes (station_id, component, evse_id, connector_id, variable, value, updated_at)
		VALUES ($1, $2, COALESCE($3, 0), COALESCE($4, 0), $5, $6, NOW())
		ON CONFLICT (station_id, component, evse_id, connector_id, variable) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query, a.StationID, a.Component, a.EvseID, a.ConnectorID, a.Variable, a.Value)
	return err
}
