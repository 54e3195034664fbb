package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ReservationRepository ends reservations consumed by transactions.
type ReservationRepository struct {
	pool *pgxpool.Pool
}

// NewReservationRepository returns repository.
func NewReservationRepository(pool *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

// TerminateReservation deactivates reservation id at stationID and records the transaction
// that consumed it. It reports how many reservations changed.
func (r *ReservationRepository) TerminateReservation(ctx context.Context, reservationID int, stationID, transactionID string) (int64, error) {
	const query = `
		UPDATE reservations
		SET is_active = false,
		    terminated_by_transaction = $3,
		    updated_at = NOW()
		WHERE id = $1 AND station_id = $2
	`
	tag, err := r.pool.Exec(ctx, query, reservationID, stationID, transactionID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
