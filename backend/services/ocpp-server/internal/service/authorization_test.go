package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"evgrid/backend/services/ocpp-server/internal/models"
	"evgrid/backend/services/ocpp-server/internal/ocpp"
	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
	"evgrid/backend/services/ocpp-server/internal/repository/memory"
)

type failingAuthStore struct{}

func (failingAuthStore) ReadAuthorization(context.Context, string, string, string) (*models.Authorization, error) {
	return nil, errBoom
}

func authRequest(station, token string) AuthorizationRequest {
	return AuthorizationRequest{
		Context:       ocpp.MessageContext{StationID: station, TenantID: "t1"},
		IdToken:       protocol.IdToken{IdToken: token, Type: "ISO14443"},
		TransactionID: "tx-1",
	}
}

func newTestAuthorization(store *memory.Store) *AuthorizationService {
	return NewAuthorizationService(store, zap.NewNop(),
		NewConcurrentTransactionAuthorizer(store),
		StationAllowListAuthorizer{},
	)
}

func TestAuthorizeUnknownToken(t *testing.T) {
	svc := newTestAuthorization(memory.NewStore())

	info, err := svc.Authorize(context.Background(), authRequest("CS1", "nobody"))
	require.NoError(t, err)
	assert.Equal(t, protocol.AuthorizationUnknown, info.Status)
}

func TestAuthorizeAcceptedCarriesRecordDetails(t *testing.T) {
	store := memory.NewStore()
	priority := 3
	store.PutAuthorization(models.Authorization{
		TenantID:         "t1",
		IdToken:          "AA11",
		IdTokenType:      "ISO14443",
		Status:           protocol.AuthorizationAccepted,
		ChargingPriority: &priority,
		Language1:        "en",
		GroupIdToken:     "fleet-7",
		PersonalMessage:  "Welcome back",
	})
	svc := newTestAuthorization(store)

	info, err := svc.Authorize(context.Background(), authRequest("CS1", "AA11"))
	require.NoError(t, err)
	assert.Equal(t, protocol.AuthorizationAccepted, info.Status)
	require.NotNil(t, info.ChargingPriority)
	assert.Equal(t, 3, *info.ChargingPriority)
	require.NotNil(t, info.GroupIdToken)
	assert.Equal(t, "fleet-7", info.GroupIdToken.IdToken)
	require.NotNil(t, info.PersonalMessage)
	assert.Equal(t, "Welcome back", info.PersonalMessage.Content)
}

func TestAuthorizeScopedByTenant(t *testing.T) {
	store := memory.NewStore()
	store.PutAuthorization(models.Authorization{TenantID: "other", IdToken: "AA11", IdTokenType: "ISO14443", Status: protocol.AuthorizationAccepted})
	svc := newTestAuthorization(store)

	info, err := svc.Authorize(context.Background(), authRequest("CS1", "AA11"))
	require.NoError(t, err)
	assert.Equal(t, protocol.AuthorizationUnknown, info.Status)
}

func TestAuthorizeExpiredCache(t *testing.T) {
	store := memory.NewStore()
	past := time.Now().Add(-time.Hour)
	store.PutAuthorization(models.Authorization{TenantID: "t1", IdToken: "AA11", IdTokenType: "ISO14443", Status: protocol.AuthorizationAccepted, CacheExpiryDateTime: &past})
	svc := newTestAuthorization(store)

	info, err := svc.Authorize(context.Background(), authRequest("CS1", "AA11"))
	require.NoError(t, err)
	assert.Equal(t, protocol.AuthorizationExpired, info.Status)
}

func TestAuthorizeBlockedSkipsChain(t *testing.T) {
	store := memory.NewStore()
	store.PutAuthorization(models.Authorization{TenantID: "t1", IdToken: "AA11", IdTokenType: "ISO14443", Status: protocol.AuthorizationBlocked, AllowedStations: []string{"CS9"}})
	svc := newTestAuthorization(store)

	info, err := svc.Authorize(context.Background(), authRequest("CS1", "AA11"))
	require.NoError(t, err)
	assert.Equal(t, protocol.AuthorizationBlocked, info.Status)
}

func TestAuthorizeRejectsConcurrentTransaction(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.PutAuthorization(models.Authorization{TenantID: "t1", IdToken: "AA11", IdTokenType: "ISO14443", Status: protocol.AuthorizationAccepted})

	other := startedEvent("tx-other")
	other.IdToken = &protocol.IdToken{IdToken: "AA11", Type: "ISO14443"}
	_, err := store.CreateOrUpdateTransaction(ctx, "CS2", other)
	require.NoError(t, err)

	own := startedEvent("tx-1")
	own.IdToken = &protocol.IdToken{IdToken: "AA11", Type: "ISO14443"}
	_, err = store.CreateOrUpdateTransaction(ctx, "CS1", own)
	require.NoError(t, err)

	svc := newTestAuthorization(store)
	info, err := svc.Authorize(ctx, authRequest("CS1", "AA11"))
	require.NoError(t, err)
	assert.Equal(t, protocol.AuthorizationConcurrentTx, info.Status)

	store.PutAuthorization(models.Authorization{TenantID: "t1", IdToken: "AA11", IdTokenType: "ISO14443", Status: protocol.AuthorizationAccepted, ConcurrentTransaction: true})
	info, err = svc.Authorize(ctx, authRequest("CS1", "AA11"))
	require.NoError(t, err)
	assert.Equal(t, protocol.AuthorizationAccepted, info.Status)
}

func TestAuthorizeOwnTransactionIsNotConcurrent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.PutAuthorization(models.Authorization{TenantID: "t1", IdToken: "AA11", IdTokenType: "ISO14443", Status: protocol.AuthorizationAccepted})

	own := startedEvent("tx-1")
	own.IdToken = &protocol.IdToken{IdToken: "AA11", Type: "ISO14443"}
	_, err := store.CreateOrUpdateTransaction(ctx, "CS1", own)
	require.NoError(t, err)

	info, err := newTestAuthorization(store).Authorize(ctx, authRequest("CS1", "AA11"))
	require.NoError(t, err)
	assert.Equal(t, protocol.AuthorizationAccepted, info.Status)
}

func TestAuthorizeStationAllowList(t *testing.T) {
	store := memory.NewStore()
	store.PutAuthorization(models.Authorization{TenantID: "t1", IdToken: "AA11", IdTokenType: "ISO14443", Status: protocol.AuthorizationAccepted, AllowedStations: []string{"CS2"}})
	svc := newTestAuthorization(store)

	info, err := svc.Authorize(context.Background(), authRequest("CS1", "AA11"))
	require.NoError(t, err)
	assert.Equal(t, protocol.AuthorizationNotAtThisLocation, info.Status)

	info, err = svc.Authorize(context.Background(), authRequest("CS2", "AA11"))
	require.NoError(t, err)
	assert.Equal(t, protocol.AuthorizationAccepted, info.Status)
}

func TestAuthorizePropagatesStoreErrors(t *testing.T) {
	svc := NewAuthorizationService(failingAuthStore{}, zap.NewNop())

	_, err := svc.Authorize(context.Background(), authRequest("CS1", "AA11"))
	assert.ErrorIs(t, err, errBoom)
}
