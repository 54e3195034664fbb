package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"evgrid/backend/services/ocpp-server/internal/models"
	"evgrid/backend/services/ocpp-server/internal/ocpp"
	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
	"evgrid/backend/services/ocpp-server/internal/repository"
	"evgrid/backend/services/ocpp-server/internal/repository/memory"
	"evgrid/backend/services/ocpp-server/internal/service"
)

var station = ocpp.MessageContext{StationID: "CS1", TenantID: "t1", CorrelationID: "m-1"}

type recordingCallSender struct {
	mu    sync.Mutex
	calls []string
}

func (s *recordingCallSender) SendCall(ctx context.Context, mc ocpp.MessageContext, action string, payload interface{}) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, action)
	return json.RawMessage(`{}`), nil
}

// spyStore counts meter value reads and can hide transactions from lookups.
type spyStore struct {
	*memory.Store

	mu              sync.Mutex
	meterReads      int
	hideTransaction bool
}

func (s *spyStore) ReadMeterValues(ctx context.Context, transactionDBID int64) ([]models.MeterValue, error) {
	s.mu.Lock()
	s.meterReads++
	s.mu.Unlock()
	return s.Store.ReadMeterValues(ctx, transactionDBID)
}

func (s *spyStore) ReadTransaction(ctx context.Context, stationID, transactionID string) (*models.Transaction, error) {
	if s.hideTransaction {
		return nil, repository.ErrNotFound
	}
	return s.Store.ReadTransaction(ctx, stationID, transactionID)
}

func (s *spyStore) reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meterReads
}

type fixture struct {
	store   *spyStore
	sender  *recordingCallSender
	updater *service.CostUpdater
	logs    *observer.ObservedLogs
	deps    TransactionEventDeps
}

func newFixture(t *testing.T, cfg TransactionEventConfig) *fixture {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	store := &spyStore{Store: memory.NewStore()}
	sender := &recordingCallSender{}
	calc := service.NewCostCalculator(store, store, logger)
	updater := service.NewCostUpdater(store, calc, sender, nil, nil, logger)
	t.Cleanup(updater.Close)

	f := &fixture{store: store, sender: sender, updater: updater, logs: logs}
	f.deps = TransactionEventDeps{
		Transactions: store,
		Reservations: store,
		DeviceModel:  store,
		Authorizer:   service.NewAuthorizationService(store, logger, service.NewConcurrentTransactionAuthorizer(store)),
		Calculator:   calc,
		Validator:    service.NewMeterValueValidator(store, logger),
		Updater:      updater,
		Config:       cfg,
		Logger:       logger,
	}
	return f
}

func (f *fixture) transactionEvent(t *testing.T) ocpp.HandlerFunc {
	t.Helper()
	h, err := NewTransactionEventHandler(f.deps)
	require.NoError(t, err)
	return h
}

func (f *fixture) acceptToken(token string) {
	f.store.PutAuthorization(models.Authorization{
		TenantID:    station.TenantID,
		IdToken:     token,
		IdTokenType: "ISO14443",
		Status:      protocol.AuthorizationAccepted,
	})
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func txEvent(eventType, transactionID string) protocol.TransactionEventRequest {
	return protocol.TransactionEventRequest{
		EventType:       eventType,
		Timestamp:       time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		TriggerReason:   "MeterValuePeriodic",
		TransactionInfo: protocol.Transaction{TransactionID: transactionID},
	}
}

func energy(ts time.Time, wh float64) protocol.MeterValue {
	return protocol.MeterValue{
		Timestamp: ts,
		SampledValue: []protocol.SampledValue{{
			Value:         wh,
			Measurand:     protocol.MeasurandEnergyActiveImportRegister,
			UnitOfMeasure: &protocol.UnitOfMeasure{Unit: protocol.UnitWh},
		}},
	}
}

func badlySigned(ts time.Time) protocol.MeterValue {
	mv := energy(ts, 500)
	mv.SampledValue[0].SignedMeterValue = &protocol.SignedMeterValue{
		SignedMeterData: "T0NNRnx7fXx7IlNEIjoiMDAifQ==",
		SigningMethod:   protocol.SigningECDSAP256SHA256,
		EncodingMethod:  protocol.EncodingOCMF,
	}
	return mv
}
