package ocpp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
)

func echoHandler(tag string) HandlerFunc {
	return func(ctx context.Context, mc MessageContext, payload json.RawMessage) (interface{}, error) {
		return map[string]string{"handler": tag, "station": mc.StationID}, nil
	}
}

func completeRoutes() []Route {
	return []Route{
		Call(protocol.ActionTransactionEvent, echoHandler("tx")),
		Call(protocol.ActionMeterValues, echoHandler("meter")),
		Call(protocol.ActionStatusNotification, echoHandler("status")),
		Response(protocol.ActionCostUpdated, echoHandler("cost")),
		Response(protocol.ActionGetTransactionStatus, echoHandler("txstatus")),
	}
}

func TestNewDispatcherAcceptsCompleteTable(t *testing.T) {
	d, err := NewDispatcher(completeRoutes()...)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"call MeterValues",
		"call StatusNotification",
		"call TransactionEvent",
		"response CostUpdated",
		"response GetTransactionStatus",
	}, d.Actions())
}

func TestNewDispatcherRejectsInvalidTables(t *testing.T) {
	t.Run("missing route", func(t *testing.T) {
		routes := completeRoutes()[1:]
		_, err := NewDispatcher(routes...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "call TransactionEvent: missing route")
	})

	t.Run("duplicate route", func(t *testing.T) {
		routes := append(completeRoutes(), Call(protocol.ActionMeterValues, echoHandler("again")))
		_, err := NewDispatcher(routes...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "call MeterValues: duplicate route")
	})

	t.Run("nil handler", func(t *testing.T) {
		routes := append(completeRoutes(), Call("Heartbeat", nil))
		_, err := NewDispatcher(routes...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nil handler")
	})

	t.Run("empty action", func(t *testing.T) {
		routes := append(completeRoutes(), Call(" ", echoHandler("blank")))
		_, err := NewDispatcher(routes...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty action")
	})

	t.Run("response route does not satisfy call", func(t *testing.T) {
		routes := completeRoutes()
		routes[0] = Response(protocol.ActionTransactionEvent, echoHandler("tx"))
		_, err := NewDispatcher(routes...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "call TransactionEvent: missing route")
	})
}

func TestDispatchRoutesByKind(t *testing.T) {
	d, err := NewDispatcher(completeRoutes()...)
	require.NoError(t, err)

	mc := MessageContext{StationID: "CS1", TenantID: "t1", CorrelationID: "m-1"}
	resp, err := d.Dispatch(context.Background(), mc, protocol.ActionMeterValues, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"handler": "meter", "station": "CS1"}, resp)

	_, err = d.Dispatch(context.Background(), mc, protocol.ActionCostUpdated, json.RawMessage(`{}`))
	assert.True(t, errors.Is(err, ErrUnsupportedAction))

	assert.NoError(t, d.DispatchResponse(context.Background(), mc, protocol.ActionCostUpdated, json.RawMessage(`{}`)))
	assert.True(t, errors.Is(d.DispatchResponse(context.Background(), mc, "Reset", nil), ErrUnsupportedAction))
}
