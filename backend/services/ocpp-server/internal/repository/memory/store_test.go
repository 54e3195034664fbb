package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evgrid/backend/services/ocpp-server/internal/models"
	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
	"evgrid/backend/services/ocpp-server/internal/repository"
)

func started(txID string) *protocol.TransactionEventRequest {
	return &protocol.TransactionEventRequest{
		EventType:       protocol.TransactionEventStarted,
		Timestamp:       time.Now().UTC(),
		TriggerReason:   "Authorized",
		TransactionInfo: protocol.Transaction{TransactionID: txID},
	}
}

func TestConcurrentStartsCreateOneTransaction(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]int64, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx, err := s.CreateOrUpdateTransaction(ctx, "CS1", started("tx-1"))
			if assert.NoError(t, err) {
				ids[i] = tx.ID
			}
		}(i)
	}
	wg.Wait()

	txs := s.Transactions()
	require.Len(t, txs, 1)
	assert.True(t, txs[0].IsActive)
	for _, id := range ids {
		assert.Equal(t, txs[0].ID, id)
	}
	assert.Len(t, s.Events(), 20)
}

func TestTransactionsAreScopedByStation(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	a, err := s.CreateOrUpdateTransaction(ctx, "CS1", started("tx-1"))
	require.NoError(t, err)
	b, err := s.CreateOrUpdateTransaction(ctx, "CS2", started("tx-1"))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	_, err = s.ReadTransaction(ctx, "CS3", "tx-1")
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestMeterValuesInvalidateCachedTotal(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	tx, err := s.CreateOrUpdateTransaction(ctx, "CS1", started("tx-1"))
	require.NoError(t, err)
	require.NoError(t, s.UpdateTransactionTotalKwh(ctx, tx.ID, 5))

	cached, err := s.ReadTransaction(ctx, "CS1", "tx-1")
	require.NoError(t, err)
	require.NotNil(t, cached.TotalKwh)

	require.NoError(t, s.CreateMeterValue(ctx, "CS1", &tx.ID, protocol.MeterValue{Timestamp: time.Now()}))
	after, err := s.ReadTransaction(ctx, "CS1", "tx-1")
	require.NoError(t, err)
	assert.Nil(t, after.TotalKwh)

	mvs, err := s.ReadMeterValues(ctx, tx.ID)
	require.NoError(t, err)
	assert.Len(t, mvs, 1)

	assert.True(t, errors.Is(s.UpdateTransactionTotalKwh(ctx, 999, 1), repository.ErrNotFound))
}

func TestTerminateReservationMatchesStation(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	s.PutReservation(models.Reservation{ID: 7, StationID: "CS1", IsActive: true})
	s.PutReservation(models.Reservation{ID: 7, StationID: "CS2", IsActive: true})

	n, err := s.TerminateReservation(ctx, 7, "CS1", "tx-9")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	r, ok := s.Reservation(7, "CS1")
	require.True(t, ok)
	assert.False(t, r.IsActive)
	require.NotNil(t, r.TerminatedByTransaction)
	assert.Equal(t, "tx-9", *r.TerminatedByTransaction)

	other, _ := s.Reservation(7, "CS2")
	assert.True(t, other.IsActive)

	n, err = s.TerminateReservation(ctx, 8, "CS1", "tx-9")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReadVariableAttributePrefersStationLevel(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	evse := 1
	require.NoError(t, s.UpsertVariableAttribute(ctx, models.VariableAttribute{StationID: "CS1", Component: "TariffCostCtrlr", EvseID: &evse, Variable: "Available", Value: "false"}))
	require.NoError(t, s.UpsertVariableAttribute(ctx, models.VariableAttribute{StationID: "CS1", Component: "TariffCostCtrlr", Variable: "Available", Value: "true"}))

	attr, err := s.ReadVariableAttribute(ctx, "CS1", "TariffCostCtrlr", "Available")
	require.NoError(t, err)
	assert.Equal(t, "true", attr.Value)

	_, err = s.ReadVariableAttribute(ctx, "CS2", "TariffCostCtrlr", "Available")
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestCountActiveTransactionsByIdToken(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	ev := started("tx-1")
	ev.IdToken = &protocol.IdToken{IdToken: "RFID", Type: "ISO14443"}
	_, err := s.CreateOrUpdateTransaction(ctx, "CS1", ev)
	require.NoError(t, err)

	n, err := s.CountActiveTransactionsByIdToken(ctx, "RFID", "ISO14443", "CS1", "tx-1")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.CountActiveTransactionsByIdToken(ctx, "RFID", "ISO14443", "CS2", "tx-2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
