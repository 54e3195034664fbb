package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"evgrid/backend/services/ocpp-server/internal/metrics"
	"evgrid/backend/services/ocpp-server/internal/ocpp"
	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
	"evgrid/backend/services/ocpp-server/internal/service"
)

// MeterValuesDeps lists what the MeterValues handler needs. Metrics may be nil.
type MeterValuesDeps struct {
	Transactions service.TransactionStore
	Validator    MeterValidator
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
}

// NewMeterValuesHandler stores every reading and then rejects the request with a
// SecurityError when any signature fails to verify.
func NewMeterValuesHandler(deps MeterValuesDeps) (ocpp.HandlerFunc, error) {
	if deps.Transactions == nil || deps.Validator == nil || deps.Logger == nil {
		return nil, errors.New("handlers: meter values: Transactions, Validator and Logger are required")
	}

	return func(ctx context.Context, mc ocpp.MessageContext, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.MeterValuesRequest](payload)
		if err != nil {
			return nil, err
		}
		if len(req.MeterValue) == 0 {
			return nil, ocpp.NewError(ocpp.ErrorFormatViolation, "meterValue must not be empty")
		}

		var errs []error
		for _, mv := range req.MeterValue {
			if err := deps.Transactions.CreateMeterValue(ctx, mc.StationID, nil, mv); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			return nil, fmt.Errorf("handlers: store meter values: %w", err)
		}

		ok, err := deps.Validator.Validate(ctx, mc.StationID, req.MeterValue)
		if err != nil {
			return nil, fmt.Errorf("handlers: validate meter values: %w", err)
		}
		if !ok {
			deps.Metrics.SignatureFailure(protocol.ActionMeterValues)
			deps.Logger.Warn("meter values rejected, invalid signature",
				zap.String("station_id", mc.StationID),
				zap.Int("evse_id", req.EvseID),
				zap.Int("meter_values", len(req.MeterValue)),
			)
			return nil, ocpp.NewError(ocpp.ErrorSecurity, "invalid signed meter value")
		}

		return protocol.MeterValuesResponse{}, nil
	}, nil
}
