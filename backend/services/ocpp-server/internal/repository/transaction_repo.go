package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"evgrid/backend/services/ocpp-server/internal/models"
	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
)

const transactionColumns = `
	id, station_id, transaction_id, is_active, charging_state, stopped_reason,
	evse_id, connector_id, remote_start_id, id_token, id_token_type,
	total_kwh, total_cost, created_at, updated_at
`

// TransactionRepository persists transactions, their events and meter values.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository returns repository.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// CreateOrUpdateTransaction upserts the (station, transaction id) row and appends the event
// and its meter values in one database transaction. Concurrent first events for the same
// id resolve to a single row through the unique index.
func (r *TransactionRepository) CreateOrUpdateTransaction(ctx context.Context, stationID string, event *protocol.TransactionEventRequest) (*models.Transaction, error) {
	upsert := `
		INSERT INTO transactions (
			station_id, transaction_id, is_active, charging_state, stopped_reason,
			evse_id, connector_id, remote_start_id, id_token, id_token_type, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		ON CONFLICT (station_id, transaction_id) DO UPDATE SET
			is_active = transactions.is_active AND EXCLUDED.is_active,
			charging_state = CASE WHEN EXCLUDED.charging_state <> '' THEN EXCLUDED.charging_state ELSE transactions.charging_state END,
			stopped_reason = CASE WHEN EXCLUDED.stopped_reason <> '' THEN EXCLUDED.stopped_reason ELSE transactions.stopped_reason END,
			evse_id = COALESCE(EXCLUDED.evse_id, transactions.evse_id),
			connector_id = COALESCE(EXCLUDED.connector_id, transactions.connector_id),
			remote_start_id = COALESCE(EXCLUDED.remote_start_id, transactions.remote_start_id),
			id_token = CASE WHEN EXCLUDED.id_token <> '' THEN EXCLUDED.id_token ELSE transactions.id_token END,
			id_token_type = CASE WHEN EXCLUDED.id_token <> '' THEN EXCLUDED.id_token_type ELSE transactions.id_token_type END,
			total_kwh = CASE WHEN $11 THEN NULL ELSE transactions.total_kwh END,
			updated_at = NOW()
		RETURNING ` + transactionColumns

	const insertEvent = `
		INSERT INTO transaction_events (
			transaction_db_id, station_id, event_type, trigger_reason, seq_no, offline,
			reservation_id, id_token, timestamp
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	// Seeded from an empty row so the column values mirror models.Transaction.ApplyEvent.
	initial := models.Transaction{IsActive: true}
	initial.ApplyEvent(event)

	var idToken []byte
	if event.IdToken != nil {
		encoded, err := json.Marshal(event.IdToken)
		if err != nil {
			return nil, fmt.Errorf("repository: encode id token: %w", err)
		}
		idToken = encoded
	}

	var tx *models.Transaction
	err := pgx.BeginFunc(ctx, r.pool, func(dbtx pgx.Tx) error {
		row := dbtx.QueryRow(ctx, upsert,
			stationID,
			initial.TransactionID,
			initial.IsActive,
			initial.ChargingState,
			initial.StoppedReason,
			initial.EvseID,
			initial.ConnectorID,
			initial.RemoteStartID,
			initial.IdToken,
			initial.IdTokenType,
			len(event.MeterValue) > 0,
		)
		saved, err := scanTransaction(row)
		if err != nil {
			return fmt.Errorf("repository: upsert transaction: %w", err)
		}

		var eventID int64
		if err := dbtx.QueryRow(ctx, insertEvent,
			saved.ID,
			stationID,
			event.EventType,
			event.TriggerReason,
			event.SeqNo,
			event.Offline,
			event.ReservationID,
			idToken,
			event.Timestamp,
		).Scan(&eventID); err != nil {
			return fmt.Errorf("repository: insert transaction event: %w", err)
		}

		for _, mv := range event.MeterValue {
			if err := insertMeterValue(ctx, dbtx, stationID, &saved.ID, &eventID, mv); err != nil {
				return err
			}
		}

		tx = saved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ReadTransaction returns the transaction or ErrNotFound.
func (r *TransactionRepository) ReadTransaction(ctx context.Context, stationID, transactionID string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE station_id = $1 AND transaction_id = $2`
	tx, err := scanTransaction(r.pool.QueryRow(ctx, query, stationID, transactionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tx, err
}

// CreateMeterValue stores a reading and, when it belongs to a transaction, drops that
// transaction's cached energy total.
func (r *TransactionRepository) CreateMeterValue(ctx context.Context, stationID string, transactionDBID *int64, mv protocol.MeterValue) error {
	const invalidate = `UPDATE transactions SET total_kwh = NULL, updated_at = NOW() WHERE id = $1`

	return pgx.BeginFunc(ctx, r.pool, func(dbtx pgx.Tx) error {
		if err := insertMeterValue(ctx, dbtx, stationID, transactionDBID, nil, mv); err != nil {
			return err
		}
		if transactionDBID == nil {
			return nil
		}
		if _, err := dbtx.Exec(ctx, invalidate, *transactionDBID); err != nil {
			return fmt.Errorf("repository: invalidate total kwh: %w", err)
		}
		return nil
	})
}

// ReadMeterValues returns every reading recorded against the transaction, oldest first.
func (r *TransactionRepository) ReadMeterValues(ctx context.Context, transactionDBID int64) ([]models.MeterValue, error) {
	const query = `
		SELECT id, station_id, transaction_db_id, transaction_event_id, timestamp, sampled_value
		FROM meter_values
		WHERE transaction_db_id = $1
		ORDER BY timestamp, id
	`
	rows, err := r.pool.Query(ctx, query, transactionDBID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MeterValue
	for rows.Next() {
		var (
			mv      models.MeterValue
			sampled []byte
		)
		if err := rows.Scan(&mv.ID, &mv.StationID, &mv.TransactionDBID, &mv.TransactionEventID, &mv.Timestamp, &sampled); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(sampled, &mv.SampledValue); err != nil {
			return nil, fmt.Errorf("repository: decode sampled values of meter value %d: %w", mv.ID, err)
		}
		out = append(out, mv)
	}
	return out, rows.Err()
}

// UpdateTransactionTotalKwh caches the derived energy total.
func (r *TransactionRepository) UpdateTransactionTotalKwh(ctx context.Context, transactionDBID int64, totalKwh float64) error {
	const query = `UPDATE transactions SET total_kwh = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, transactionDBID, totalKwh)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountActiveTransactionsByIdToken counts active transactions started with the token,
// leaving out the one identified by excludeStationID/excludeTransactionID.
func (r *TransactionRepository) CountActiveTransactionsByIdToken(ctx context.Context, idToken, idTokenType, excludeStationID, excludeTransactionID string) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM transactions
		WHERE is_active = true
		  AND id_token = $1 AND id_token_type = $2
		  AND NOT (station_id = $3 AND transaction_id = $4)
	`
	var n int
	if err := r.pool.QueryRow(ctx, query, idToken, idTokenType, excludeStationID, excludeTransactionID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func insertMeterValue(ctx context.Context, dbtx pgx.Tx, stationID string, transactionDBID, eventID *int64, mv protocol.MeterValue) error {
	const query = `
		INSERT INTO meter_values (station_id, transaction_db_id, transaction_event_id, timestamp, sampled_value)
		VALUES ($1, $2, $3, $4, $5)
	`
	sampled, err := json.Marshal(mv.SampledValue)
	if err != nil {
		return fmt.Errorf("repository: encode sampled values: %w", err)
	}
	ts := mv.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if _, err := dbtx.Exec(ctx, query, stationID, transactionDBID, eventID, ts, sampled); err != nil {
		return fmt.Errorf("repository: insert meter value: %w", err)
	}
	return nil
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	if err := row.Scan(
		&t.ID,
		&t.StationID,
		&t.TransactionID,
		&t.IsActive,
		&t.ChargingState,
		&t.StoppedReason,
		&t.EvseID,
		&t.ConnectorID,
		&t.RemoteStartID,
		&t.IdToken,
		&t.IdTokenType,
		&t.TotalKwh,
		&t.TotalCost,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}
