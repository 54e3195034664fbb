package ocpp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"evgrid/backend/services/ocpp-server/internal/metrics"
)

const defaultCallTimeout = 30 * time.Second

var idGenerator = uuid.NewString

// Sender writes a frame to a station's connection.
type Sender interface {
	Send(ctx context.Context, stationID string, frame []byte) error
}

// MessageLog records raw frames.
type MessageLog interface {
	Save(ctx context.Context, mc MessageContext, direction, action string, payload []byte) error
}

type callOutcome struct {
	payload json.RawMessage
	err     error
}

type pendingCall struct {
	action string
	done   chan callOutcome
}

// Correlator pairs outbound frames with the exchange they belong to: results and errors
// answer an inbound call by its unique id, and server calls wait for the matching answer.
type Correlator struct {
	sender  Sender
	log     MessageLog
	metrics *metrics.Metrics
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[string]*pendingCall
}

// NewCorrelator builds a Correlator. log and m may be nil.
func NewCorrelator(sender Sender, log MessageLog, m *metrics.Metrics, timeout time.Duration, logger *zap.Logger) *Correlator {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Correlator{
		sender:  sender,
		log:     log,
		metrics: m,
		timeout: timeout,
		logger:  logger,
		pending: make(map[string]*pendingCall),
	}
}

// SendResult answers the call identified by mc.CorrelationID.
func (c *Correlator) SendResult(ctx context.Context, mc MessageContext, action string, payload interface{}) error {
	frame, err := BuildCallResult(mc.CorrelationID, payload)
	if err != nil {
		return fmt.Errorf("ocpp: encode %s result: %w", action, err)
	}
	return c.write(ctx, mc, action, frame)
}

// SendError rejects the call identified by mc.CorrelationID.
func (c *Correlator) SendError(ctx context.Context, mc MessageContext, action, code, description string) error {
	frame, err := BuildCallError(mc.CorrelationID, code, description)
	if err != nil {
		return fmt.Errorf("ocpp: encode %s error: %w", action, err)
	}
	return c.write(ctx, mc, action, frame)
}

// SendCall sends action to mc.StationID under a fresh unique id and blocks until the station
// answers, the call times out or ctx ends. A CALLERROR answer is returned as *Error.
func (c *Correlator) SendCall(ctx context.Context, mc MessageContext, action string, payload interface{}) (json.RawMessage, error) {
	id := idGenerator()
	frame, err := BuildCall(id, action, payload)
	if err != nil {
		return nil, fmt.Errorf("ocpp: encode %s call: %w", action, err)
	}

	key := pendingKey(mc.StationID, id)
	call := &pendingCall{action: action, done: make(chan callOutcome, 1)}

	c.mu.Lock()
	c.pending[key] = call
	c.mu.Unlock()
	defer c.take(key)

	if err := c.write(ctx, mc.WithCorrelationID(id), action, frame); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case out := <-call.done:
		return out.payload, out.err
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s %s after %s", ErrCallTimeout, action, id, c.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// HandleResult completes the pending call answered by a CALLRESULT and reports its action.
func (c *Correlator) HandleResult(stationID, messageID string, payload json.RawMessage) (string, bool) {
	call := c.take(pendingKey(stationID, messageID))
	if call == nil {
		return "", false
	}
	call.done <- callOutcome{payload: payload}
	return call.action, true
}

// HandleError completes the pending call answered by a CALLERROR and reports its action.
func (c *Correlator) HandleError(stationID, messageID, code, description string) (string, bool) {
	call := c.take(pendingKey(stationID, messageID))
	if call == nil {
		return "", false
	}
	call.done <- callOutcome{err: NewError(code, description)}
	return call.action, true
}

// FailStation fails every call still waiting on stationID.
func (c *Correlator) FailStation(stationID string) int {
	prefix := stationID + "/"

	c.mu.Lock()
	var failed []*pendingCall
	for key, call := range c.pending {
		if strings.HasPrefix(key, prefix) {
			failed = append(failed, call)
			delete(c.pending, key)
		}
	}
	c.mu.Unlock()

	for _, call := range failed {
		call.done <- callOutcome{err: fmt.Errorf("%w: %s", ErrNotConnected, stationID)}
	}
	return len(failed)
}

// Pending reports the number of unanswered server calls.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) take(key string) *pendingCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	call, ok := c.pending[key]
	if !ok {
		return nil
	}
	delete(c.pending, key)
	return call
}

func (c *Correlator) write(ctx context.Context, mc MessageContext, action string, frame []byte) error {
	if err := c.sender.Send(ctx, mc.StationID, frame); err != nil {
		return fmt.Errorf("ocpp: send %s to %s: %w", action, mc.StationID, err)
	}
	c.metrics.Message(action, metrics.DirectionOut)

	if c.log != nil {
		if err := c.log.Save(ctx, mc, "outgoing", action, frame); err != nil {
			c.logger.Warn("failed to log outgoing ocpp message",
				zap.String("station_id", mc.StationID),
				zap.String("action", action),
				zap.Error(err),
			)
		}
	}
	return nil
}

func pendingKey(stationID, messageID string) string {
	return stationID + "/" + messageID
}
