package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"evgrid/backend/services/ocpp-server/internal/models"
)

// AuthorizationRepository reads stored IdToken decisions.
type AuthorizationRepository struct {
	pool *pgxpool.Pool
}

// NewAuthorizationRepository returns repository.
func NewAuthorizationRepository(pool *pgxpool.Pool) *AuthorizationRepository {
	return &AuthorizationRepository{pool: pool}
}

// ReadAuthorization returns the tenant's record for idToken/idTokenType or ErrNotFound.
func (r *AuthorizationRepository) ReadAuthorization(ctx context.Context, tenantID, idToken, idTokenType string) (*models.Authorization, error) {
	const query = `
		SELECT id, tenant_id, id_token, id_token_type, status, cache_expiry_date_time,
		       charging_priority, language1, group_id_token, personal_message,
		       concurrent_transaction, allowed_stations
		FROM authorizations
		WHERE tenant_id = $1 AND id_token = $2 AND id_token_type = $3
	`
	var a models.Authorization
	err := r.pool.QueryRow(ctx, query, tenantID, idToken, idTokenType).Scan(
		&a.ID,
		&a.TenantID,
		&a.IdToken,
		&a.IdTokenType,
		&a.Status,
		&a.CacheExpiryDateTime,
		&a.ChargingPriority,
		&a.Language1,
		&a.GroupIdToken,
		&a.PersonalMessage,
		&a.ConcurrentTransaction,
		&a.AllowedStations,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
