package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"evgrid/backend/services/ocpp-server/internal/models"
)

// AuthorizationReader is the store the cache reads through to.
type AuthorizationReader interface {
	ReadAuthorization(ctx context.Context, tenantID, idToken, idTokenType string) (*models.Authorization, error)
}

// AuthorizationCache keeps authorization records in redis for ttl. Redis failures fall
// back to the wrapped store.
type AuthorizationCache struct {
	client *redis.Client
	next   AuthorizationReader
	ttl    time.Duration
	logger *zap.Logger
}

func NewAuthorizationCache(client *redis.Client, next AuthorizationReader, ttl time.Duration, logger *zap.Logger) *AuthorizationCache {
	return &AuthorizationCache{client: client, next: next, ttl: ttl, logger: logger}
}

func (c *AuthorizationCache) key(tenantID, idToken, idTokenType string) string {
	return fmt.Sprintf("authorizations:%s:%s:%s", tenantID, idTokenType, idToken)
}

// ReadAuthorization returns the cached record or loads and caches it. Lookups that miss in
// the store are not cached.
func (c *AuthorizationCache) ReadAuthorization(ctx context.Context, tenantID, idToken, idTokenType string) (*models.Authorization, error) {
	key := c.key(tenantID, idToken, idTokenType)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var auth models.Authorization
		if err := json.Unmarshal(data, &auth); err == nil {
			return &auth, nil
		}
		c.logger.Warn("dropping undecodable cached authorization", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("authorization cache read failed", zap.String("key", key), zap.Error(err))
	}

	auth, err := c.next.ReadAuthorization(ctx, tenantID, idToken, idTokenType)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(auth); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("authorization cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return auth, nil
}
