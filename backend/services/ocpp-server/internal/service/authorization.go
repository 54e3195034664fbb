package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"evgrid/backend/services/ocpp-server/internal/models"
	"evgrid/backend/services/ocpp-server/internal/ocpp"
	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
	"evgrid/backend/services/ocpp-server/internal/repository"
)

// AuthorizationRequest is a token presented at a station, optionally for a known transaction.
type AuthorizationRequest struct {
	Context       ocpp.MessageContext
	IdToken       protocol.IdToken
	TransactionID string
}

// Authorizer refines an accepted decision. It receives the stored record and the decision
// so far and returns the new decision.
type Authorizer interface {
	Authorize(ctx context.Context, req AuthorizationRequest, record *models.Authorization, info protocol.IdTokenInfo) (protocol.IdTokenInfo, error)
}

// AuthorizationService resolves IdTokens against stored authorizations and a chain of
// authorizers, evaluated in order while the decision stays Accepted.
type AuthorizationService struct {
	store       AuthorizationStore
	authorizers []Authorizer
	now         func() time.Time
	logger      *zap.Logger
}

func NewAuthorizationService(store AuthorizationStore, logger *zap.Logger, authorizers ...Authorizer) *AuthorizationService {
	return &AuthorizationService{
		store:       store,
		authorizers: authorizers,
		now:         time.Now,
		logger:      logger,
	}
}

// Authorize returns the IdTokenInfo for req. Unknown tokens yield status Unknown; store
// failures are returned.
func (s *AuthorizationService) Authorize(ctx context.Context, req AuthorizationRequest) (protocol.IdTokenInfo, error) {
	record, err := s.store.ReadAuthorization(ctx, req.Context.TenantID, req.IdToken.IdToken, req.IdToken.Type)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Info("unknown id token",
			zap.String("station_id", req.Context.StationID),
			zap.String("tenant_id", req.Context.TenantID),
			zap.String("id_token_type", req.IdToken.Type),
		)
		return protocol.IdTokenInfo{Status: protocol.AuthorizationUnknown}, nil
	}
	if err != nil {
		return protocol.IdTokenInfo{}, fmt.Errorf("service: read authorization: %w", err)
	}

	info := idTokenInfo(record)
	if info.Status == protocol.AuthorizationAccepted && record.CacheExpiryDateTime != nil && s.now().After(*record.CacheExpiryDateTime) {
		info.Status = protocol.AuthorizationExpired
	}

	for _, a := range s.authorizers {
		if info.Status != protocol.AuthorizationAccepted {
			break
		}
		if info, err = a.Authorize(ctx, req, record, info); err != nil {
			return protocol.IdTokenInfo{}, err
		}
	}

	if info.Status != protocol.AuthorizationAccepted {
		s.logger.Info("id token not accepted",
			zap.String("station_id", req.Context.StationID),
			zap.String("transaction_id", req.TransactionID),
			zap.String("status", info.Status),
		)
	}
	return info, nil
}

func idTokenInfo(record *models.Authorization) protocol.IdTokenInfo {
	info := protocol.IdTokenInfo{
		Status:              record.Status,
		CacheExpiryDateTime: record.CacheExpiryDateTime,
		ChargingPriority:    record.ChargingPriority,
		Language1:           record.Language1,
	}
	if info.Status == "" {
		info.Status = protocol.AuthorizationInvalid
	}
	if record.GroupIdToken != "" {
		info.GroupIdToken = &protocol.IdToken{IdToken: record.GroupIdToken, Type: "Central"}
	}
	if record.PersonalMessage != "" {
		info.PersonalMessage = &protocol.MessageContent{
			Format:   "UTF8",
			Language: record.Language1,
			Content:  record.PersonalMessage,
		}
	}
	return info
}
