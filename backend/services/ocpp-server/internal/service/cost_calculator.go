package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"evgrid/backend/libs/money"
	"evgrid/backend/services/ocpp-server/internal/models"
	"evgrid/backend/services/ocpp-server/internal/repository"
)

// CostCalculator prices the energy of a transaction against the station's active tariff.
type CostCalculator struct {
	transactions TransactionStore
	tariffs      TariffStore
	logger       *zap.Logger
}

func NewCostCalculator(transactions TransactionStore, tariffs TariffStore, logger *zap.Logger) *CostCalculator {
	return &CostCalculator{transactions: transactions, tariffs: tariffs, logger: logger}
}

// CalculateTotalCost returns totalKwh * price floored to cents. A station without an active
// tariff costs 0. When totalKwh is nil the energy is derived from the stored meter values
// and cached on the transaction.
func (c *CostCalculator) CalculateTotalCost(ctx context.Context, stationID string, transactionDBID int64, totalKwh *float64) (float64, error) {
	tariff, err := c.tariffs.ReadActiveTariffByStation(ctx, stationID)
	if errors.Is(err, repository.ErrNotFound) {
		c.logger.Warn("no active tariff, reporting zero cost",
			zap.String("station_id", stationID),
			zap.Int64("transaction_db_id", transactionDBID),
		)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("service: read tariff for %s: %w", stationID, err)
	}

	kwh := totalKwh
	if kwh == nil {
		derived, err := c.deriveTotalKwh(ctx, transactionDBID)
		if err != nil {
			return 0, err
		}
		kwh = &derived
	}

	cost, err := money.Cost(*kwh, tariff.PricePerKwh)
	if err != nil {
		return 0, fmt.Errorf("service: price %v kWh: %w", *kwh, err)
	}
	return cost, nil
}

func (c *CostCalculator) deriveTotalKwh(ctx context.Context, transactionDBID int64) (float64, error) {
	meterValues, err := c.transactions.ReadMeterValues(ctx, transactionDBID)
	if err != nil {
		return 0, fmt.Errorf("service: read meter values of transaction %d: %w", transactionDBID, err)
	}
	total := models.TotalKwh(meterValues)

	// A lost write only costs a recomputation on the next call.
	if err := c.transactions.UpdateTransactionTotalKwh(ctx, transactionDBID, total); err != nil {
		c.logger.Warn("failed to cache transaction energy",
			zap.Int64("transaction_db_id", transactionDBID),
			zap.Float64("total_kwh", total),
			zap.Error(err),
		)
	}
	return total, nil
}
