package ocpp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
)

func TestSendResultUsesCorrelationID(t *testing.T) {
	sender := newFakeSender()
	log := &fakeLog{}
	c := NewCorrelator(sender, log, nil, time.Second, zap.NewNop())

	mc := MessageContext{StationID: "CS1", TenantID: "t1", CorrelationID: "req-7"}
	require.NoError(t, c.SendResult(context.Background(), mc, protocol.ActionTransactionEvent, protocol.TransactionEventResponse{}))
	require.NoError(t, c.SendError(context.Background(), mc, protocol.ActionMeterValues, ErrorSecurity, "bad signature"))

	require.Equal(t, 2, sender.count("CS1"))
	assert.Equal(t, []any{float64(3), "req-7", map[string]any{}}, sender.frame("CS1", 0))
	assert.Equal(t, []any{float64(4), "req-7", "SecurityError", "bad signature", map[string]any{}}, sender.frame("CS1", 1))
	assert.Equal(t, []logEntry{
		{station: "CS1", direction: "outgoing", action: protocol.ActionTransactionEvent},
		{station: "CS1", direction: "outgoing", action: protocol.ActionMeterValues},
	}, log.snapshot())
}

func TestSendCallWaitsForResult(t *testing.T) {
	stubIDs(t, "call-1")
	sender := newFakeSender()
	c := NewCorrelator(sender, nil, nil, time.Second, zap.NewNop())

	type reply struct {
		payload json.RawMessage
		err     error
	}
	done := make(chan reply, 1)
	go func() {
		payload, err := c.SendCall(context.Background(), MessageContext{StationID: "CS1"}, protocol.ActionCostUpdated,
			protocol.CostUpdatedRequest{TotalCost: 1.5, TransactionID: "tx-1"})
		done <- reply{payload: payload, err: err}
	}()

	waitFor(t, time.Second, func() bool { return sender.count("CS1") == 1 })
	assert.Equal(t, []any{float64(2), "call-1", "CostUpdated", map[string]any{"totalCost": 1.5, "transactionId": "tx-1"}}, sender.frame("CS1", 0))

	_, ok := c.HandleResult("CS2", "call-1", json.RawMessage(`{}`))
	assert.False(t, ok, "result from another station must not complete the call")

	action, ok := c.HandleResult("CS1", "call-1", json.RawMessage(`{}`))
	require.True(t, ok)
	assert.Equal(t, protocol.ActionCostUpdated, action)

	got := <-done
	require.NoError(t, got.err)
	assert.JSONEq(t, `{}`, string(got.payload))
	assert.Zero(t, c.Pending())

	_, ok = c.HandleResult("CS1", "call-1", json.RawMessage(`{}`))
	assert.False(t, ok, "late duplicate must be ignored")
}

func TestSendCallReturnsStationError(t *testing.T) {
	stubIDs(t, "call-2")
	sender := newFakeSender()
	c := NewCorrelator(sender, nil, nil, time.Second, zap.NewNop())

	errCh := make(chan error, 1)
	go func() {
		_, err := c.SendCall(context.Background(), MessageContext{StationID: "CS1"}, protocol.ActionCostUpdated, protocol.CostUpdatedRequest{})
		errCh <- err
	}()

	waitFor(t, time.Second, func() bool { return c.Pending() == 1 })
	action, ok := c.HandleError("CS1", "call-2", ErrorNotSupported, "no display")
	require.True(t, ok)
	assert.Equal(t, protocol.ActionCostUpdated, action)

	err := <-errCh
	var ocppErr *Error
	require.True(t, errors.As(err, &ocppErr))
	assert.Equal(t, ErrorNotSupported, ocppErr.Code)
}

func TestSendCallTimesOut(t *testing.T) {
	c := NewCorrelator(newFakeSender(), nil, nil, 20*time.Millisecond, zap.NewNop())

	_, err := c.SendCall(context.Background(), MessageContext{StationID: "CS1"}, protocol.ActionCostUpdated, protocol.CostUpdatedRequest{})
	assert.True(t, errors.Is(err, ErrCallTimeout))
	assert.Zero(t, c.Pending())
}

func TestSendCallHonoursContext(t *testing.T) {
	c := NewCorrelator(newFakeSender(), nil, nil, time.Minute, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.SendCall(ctx, MessageContext{StationID: "CS1"}, protocol.ActionCostUpdated, protocol.CostUpdatedRequest{})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, c.Pending())
}

func TestSendCallPropagatesSendFailure(t *testing.T) {
	sender := newFakeSender()
	sender.sendErr = ErrNotConnected
	c := NewCorrelator(sender, nil, nil, time.Minute, zap.NewNop())

	_, err := c.SendCall(context.Background(), MessageContext{StationID: "CS1"}, protocol.ActionCostUpdated, protocol.CostUpdatedRequest{})
	assert.True(t, errors.Is(err, ErrNotConnected))
	assert.Zero(t, c.Pending())
}

func TestFailStationReleasesWaiters(t *testing.T) {
	c := NewCorrelator(newFakeSender(), nil, nil, time.Minute, zap.NewNop())

	errCh := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := c.SendCall(context.Background(), MessageContext{StationID: "CS1"}, protocol.ActionCostUpdated, protocol.CostUpdatedRequest{})
			errCh <- err
		}()
	}
	waitFor(t, time.Second, func() bool { return c.Pending() == 2 })

	assert.Equal(t, 0, c.FailStation("CS2"))
	assert.Equal(t, 2, c.FailStation("CS1"))
	for i := 0; i < 2; i++ {
		assert.True(t, errors.Is(<-errCh, ErrNotConnected))
	}
}
