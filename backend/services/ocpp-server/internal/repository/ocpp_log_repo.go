package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"evgrid/backend/services/ocpp-server/internal/ocpp"
)

// OCPPLogRepository stores raw OCPP messages.
type OCPPLogRepository struct {
	pool *pgxpool.Pool
}

// NewOCPPLogRepository ctor.
func NewOCPPLogRepository(pool *pgxpool.Pool) *OCPPLogRepository {
	return &OCPPLogRepository{pool: pool}
}

// Save stores log entry.
func (r *OCPPLogRepository) Save(ctx context.Context, mc ocpp.MessageContext, direction, action string, payload []byte) error {
	const query = `
		INSERT INTO ocpp_messages (station_id, tenant_id, correlation_id, direction, action, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query, mc.StationID, mc.TenantID, mc.CorrelationID, direction, action, payload)
	return err
}
