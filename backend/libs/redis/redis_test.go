package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClientRequiresAddr(t *testing.T) {
	client, err := NewRedisClient(context.Background(), Options{})
	require.Error(t, err)
	assert.Nil(t, client)
}

func TestNewRedisClientFailsWhenUnreachable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client, err := NewRedisClient(ctx, Options{Addr: "127.0.0.1:1"})
	require.Error(t, err)
	assert.Nil(t, client)
}
