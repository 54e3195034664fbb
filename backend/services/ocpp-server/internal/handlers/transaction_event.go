package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"evgrid/backend/services/ocpp-server/internal/metrics"
	"evgrid/backend/services/ocpp-server/internal/models"
	"evgrid/backend/services/ocpp-server/internal/ocpp"
	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
	"evgrid/backend/services/ocpp-server/internal/repository"
	"evgrid/backend/services/ocpp-server/internal/service"
)

// TransactionEventConfig tunes cost reporting.
type TransactionEventConfig struct {
	// CostUpdatedInterval arms periodic CostUpdated calls for accepted transactions when positive.
	CostUpdatedInterval time.Duration
	// SendCostUpdatedOnMeterValue attaches the running cost to Updated responses.
	SendCostUpdatedOnMeterValue bool
}

// TransactionEventDeps lists what the TransactionEvent handler needs. Events and Metrics
// may be nil; everything else is required.
type TransactionEventDeps struct {
	Transactions service.TransactionStore
	Reservations service.ReservationStore
	DeviceModel  service.DeviceModelStore
	Authorizer   IdTokenAuthorizer
	Calculator   service.TotalCostCalculator
	Validator    MeterValidator
	Updater      CostScheduler
	Events       *service.EventPublisher
	Config       TransactionEventConfig
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
}

func (d TransactionEventDeps) validate() error {
	var missing []string
	if d.Transactions == nil {
		missing = append(missing, "Transactions")
	}
	if d.Reservations == nil {
		missing = append(missing, "Reservations")
	}
	if d.DeviceModel == nil {
		missing = append(missing, "DeviceModel")
	}
	if d.Authorizer == nil {
		missing = append(missing, "Authorizer")
	}
	if d.Calculator == nil {
		missing = append(missing, "Calculator")
	}
	if d.Validator == nil {
		missing = append(missing, "Validator")
	}
	if d.Updater == nil {
		missing = append(missing, "Updater")
	}
	if d.Logger == nil {
		missing = append(missing, "Logger")
	}
	if len(missing) > 0 {
		return fmt.Errorf("handlers: transaction event: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

type transactionEventHandler struct {
	TransactionEventDeps
}

// NewTransactionEventHandler records every TransactionEvent before authorizing its token or
// pricing the transaction.
func NewTransactionEventHandler(deps TransactionEventDeps) (ocpp.HandlerFunc, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	h := &transactionEventHandler{TransactionEventDeps: deps}
	return h.handle, nil
}

func (h *transactionEventHandler) handle(ctx context.Context, mc ocpp.MessageContext, payload json.RawMessage) (interface{}, error) {
	req, err := ocpp.Decode[protocol.TransactionEventRequest](payload)
	if err != nil {
		return nil, err
	}
	transactionID := req.TransactionInfo.TransactionID
	if transactionID == "" {
		return nil, ocpp.NewError(ocpp.ErrorFormatViolation, "transactionInfo.transactionId is required")
	}
	if !knownEventType(req.EventType) {
		return nil, ocpp.NewError(ocpp.ErrorFormatViolation, fmt.Sprintf("unknown eventType %q", req.EventType))
	}

	log := h.Logger.With(
		zap.String("station_id", mc.StationID),
		zap.String("tenant_id", mc.TenantID),
		zap.String("transaction_id", transactionID),
		zap.String("event_type", req.EventType),
	)

	tx, err := h.Transactions.CreateOrUpdateTransaction(ctx, mc.StationID, &req)
	if err != nil {
		return nil, fmt.Errorf("handlers: record transaction event: %w", err)
	}

	if req.EventType == protocol.TransactionEventEnded && h.Updater.Stop(mc.StationID, transactionID) {
		log.Info("cost updates cancelled")
	}
	if req.ReservationID != nil {
		if err := h.terminateReservation(ctx, log, mc.StationID, *req.ReservationID, transactionID); err != nil {
			return nil, err
		}
	}
	h.publish(mc, &req, tx)

	if len(req.MeterValue) > 0 {
		if err := h.checkSignatures(ctx, log, mc.StationID, req.MeterValue); err != nil {
			return nil, err
		}
	}

	if req.IdToken != nil {
		return h.authorize(ctx, mc, &req)
	}

	resp := protocol.TransactionEventResponse{}
	switch req.EventType {
	case protocol.TransactionEventUpdated:
		tracked, err := h.tracked(ctx, mc.StationID, transactionID)
		if err != nil {
			return nil, err
		}
		if tracked != nil && tracked.IsActive && h.Config.SendCostUpdatedOnMeterValue {
			cost, err := h.Calculator.CalculateTotalCost(ctx, mc.StationID, tracked.ID, tracked.TotalKwh)
			if err != nil {
				return nil, fmt.Errorf("handlers: price transaction: %w", err)
			}
			resp.TotalCost = &cost
		}
		available, err := h.tariffCostAvailable(ctx, mc.StationID)
		if err != nil {
			return nil, err
		}
		if available {
			// TODO: push per-tariff running cost once TariffCostCtrlr tariffs are modelled.
			log.Debug("station supports tariff cost display")
		}
	case protocol.TransactionEventEnded:
		tracked, err := h.tracked(ctx, mc.StationID, transactionID)
		if err != nil {
			return nil, err
		}
		if tracked == nil {
			log.Warn("ended transaction is not tracked")
			break
		}
		cost, err := h.Calculator.CalculateTotalCost(ctx, mc.StationID, tracked.ID, tracked.TotalKwh)
		if err != nil {
			return nil, fmt.Errorf("handlers: price transaction: %w", err)
		}
		resp.TotalCost = &cost
	}
	return resp, nil
}

func (h *transactionEventHandler) authorize(ctx context.Context, mc ocpp.MessageContext, req *protocol.TransactionEventRequest) (interface{}, error) {
	transactionID := req.TransactionInfo.TransactionID
	info, err := h.Authorizer.Authorize(ctx, service.AuthorizationRequest{
		Context:       mc,
		IdToken:       *req.IdToken,
		TransactionID: transactionID,
	})
	if err != nil {
		return nil, fmt.Errorf("handlers: authorize id token: %w", err)
	}

	if req.EventType == protocol.TransactionEventStarted &&
		info.Status == protocol.AuthorizationAccepted &&
		h.Config.CostUpdatedInterval > 0 {
		h.Updater.Start(mc, transactionID, h.Config.CostUpdatedInterval)
	}
	return protocol.TransactionEventResponse{IdTokenInfo: &info}, nil
}

// tracked returns the stored transaction, or nil when none is recorded.
func (h *transactionEventHandler) tracked(ctx context.Context, stationID, transactionID string) (*models.Transaction, error) {
	tx, err := h.Transactions.ReadTransaction(ctx, stationID, transactionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("handlers: read transaction: %w", err)
	}
	return tx, nil
}

func knownEventType(eventType string) bool {
	switch eventType {
	case protocol.TransactionEventStarted, protocol.TransactionEventUpdated, protocol.TransactionEventEnded:
		return true
	}
	return false
}

func (h *transactionEventHandler) terminateReservation(ctx context.Context, log *zap.Logger, stationID string, reservationID int, transactionID string) error {
	n, err := h.Reservations.TerminateReservation(ctx, reservationID, stationID, transactionID)
	if err != nil {
		return fmt.Errorf("handlers: terminate reservation %d: %w", reservationID, err)
	}
	if n == 0 {
		log.Warn("reservation not found", zap.Int("reservation_id", reservationID))
	}
	return nil
}

// checkSignatures only warns on invalid signatures; key store failures are returned.
func (h *transactionEventHandler) checkSignatures(ctx context.Context, log *zap.Logger, stationID string, meterValues []protocol.MeterValue) error {
	ok, err := h.Validator.Validate(ctx, stationID, meterValues)
	if err != nil {
		return fmt.Errorf("handlers: validate meter values: %w", err)
	}
	if !ok {
		h.Metrics.SignatureFailure(protocol.ActionTransactionEvent)
		log.Warn("transaction event carries invalid signed meter values", zap.Int("meter_values", len(meterValues)))
	}
	return nil
}

func (h *transactionEventHandler) tariffCostAvailable(ctx context.Context, stationID string) (bool, error) {
	attr, err := h.DeviceModel.ReadVariableAttribute(ctx, stationID, protocol.ComponentTariffCostCtrlr, protocol.VariableAvailable)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("handlers: read tariff cost support: %w", err)
	}
	return strings.EqualFold(attr.Value, "true"), nil
}

func (h *transactionEventHandler) publish(mc ocpp.MessageContext, req *protocol.TransactionEventRequest, tx *models.Transaction) {
	subject := service.SubjectTransactionUpdated
	switch req.EventType {
	case protocol.TransactionEventStarted:
		subject = service.SubjectTransactionStarted
	case protocol.TransactionEventEnded:
		subject = service.SubjectTransactionEnded
	}

	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	h.Events.Publish(subject, service.TransactionLifecycleEvent{
		StationID:     mc.StationID,
		TenantID:      mc.TenantID,
		TransactionID: req.TransactionInfo.TransactionID,
		EventType:     req.EventType,
		TriggerReason: req.TriggerReason,
		SeqNo:         req.SeqNo,
		IsActive:      tx.IsActive,
		TotalKwh:      tx.TotalKwh,
		Timestamp:     ts,
	})
}
