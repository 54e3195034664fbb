package service

import (
	"context"
	"fmt"

	"evgrid/backend/services/ocpp-server/internal/models"
	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
)

// ConcurrentTransactionAuthorizer rejects tokens already driving another active transaction
// unless their record allows concurrent use.
type ConcurrentTransactionAuthorizer struct {
	transactions TransactionStore
}

func NewConcurrentTransactionAuthorizer(transactions TransactionStore) *ConcurrentTransactionAuthorizer {
	return &ConcurrentTransactionAuthorizer{transactions: transactions}
}

func (a *ConcurrentTransactionAuthorizer) Authorize(ctx context.Context, req AuthorizationRequest, record *models.Authorization, info protocol.IdTokenInfo) (protocol.IdTokenInfo, error) {
	if record.ConcurrentTransaction {
		return info, nil
	}
	n, err := a.transactions.CountActiveTransactionsByIdToken(ctx, req.IdToken.IdToken, req.IdToken.Type, req.Context.StationID, req.TransactionID)
	if err != nil {
		return info, fmt.Errorf("service: count active transactions: %w", err)
	}
	if n > 0 {
		info.Status = protocol.AuthorizationConcurrentTx
	}
	return info, nil
}

// StationAllowListAuthorizer restricts tokens to the stations listed on their record.
// An empty list allows every station.
type StationAllowListAuthorizer struct{}

func (StationAllowListAuthorizer) Authorize(ctx context.Context, req AuthorizationRequest, record *models.Authorization, info protocol.IdTokenInfo) (protocol.IdTokenInfo, error) {
	if len(record.AllowedStations) == 0 {
		return info, nil
	}
	for _, id := range record.AllowedStations {
		if id == req.Context.StationID {
			return info, nil
		}
	}
	info.Status = protocol.AuthorizationNotAtThisLocation
	return info, nil
}
