package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"evgrid/backend/services/ocpp-server/internal/models"
)

// StationRepository manages per-station status history and credentials.
type StationRepository struct {
	pool *pgxpool.Pool
}

// NewStationRepository returns repository.
func NewStationRepository(pool *pgxpool.Pool) *StationRepository {
	return &StationRepository{pool: pool}
}

// AddStatusNotification appends the report and moves the connector's latest status.
func (r *StationRepository) AddStatusNotification(ctx context.Context, n models.StatusNotification) error {
	const history = `
		INSERT INTO status_notifications (station_id, tenant_id, evse_id, connector_id, connector_status, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	const latest = `
		INSERT INTO connector_statuses (station_id, evse_id, connector_id, connector_status, timestamp, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (station_id, evse_id, connector_id) DO UPDATE SET
			connector_status = EXCLUDED.connector_status,
			timestamp = EXCLUDED.timestamp,
			updated_at = NOW()
		WHERE connector_statuses.timestamp <= EXCLUDED.timestamp
	`
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, history, n.StationID, n.TenantID, n.EvseID, n.ConnectorID, n.ConnectorStatus, n.Timestamp); err != nil {
			return fmt.Errorf("repository: insert status notification: %w", err)
		}
		if _, err := tx.Exec(ctx, latest, n.StationID, n.EvseID, n.ConnectorID, n.ConnectorStatus, n.Timestamp); err != nil {
			return fmt.Errorf("repository: upsert connector status: %w", err)
		}
		return nil
	})
}

// ReadSecurityInfo returns the station's credentials or ErrNotFound.
func (r *StationRepository) ReadSecurityInfo(ctx context.Context, stationID string) (*models.StationSecurityInfo, error) {
	const query = `
		SELECT station_id, tenant_id, password_hash, meter_public_key, updated_at
		FROM station_security_info
		WHERE station_id = $1
	`
	var info models.StationSecurityInfo
	err := r.pool.QueryRow(ctx, query, stationID).Scan(
		&info.StationID,
		&info.TenantID,
		&info.PasswordHash,
		&info.MeterPublicKey,
		&info.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}
