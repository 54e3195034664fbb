package ocpp

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"evgrid/backend/services/ocpp-server/internal/metrics"
	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
)

// Processor ties together parsing, dispatching and correlated replies.
type Processor struct {
	parser     *Parser
	dispatcher *Dispatcher
	correlator *Correlator
	logRepo    MessageLog
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewProcessor builds Processor. logRepo and m may be nil.
func NewProcessor(parser *Parser, dispatcher *Dispatcher, correlator *Correlator, logRepo MessageLog, m *metrics.Metrics, logger *zap.Logger) *Processor {
	return &Processor{
		parser:     parser,
		dispatcher: dispatcher,
		correlator: correlator,
		logRepo:    logRepo,
		metrics:    m,
		logger:     logger,
	}
}

// IsCall reports whether raw looks like a CALL frame without fully parsing it.
func IsCall(raw []byte) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\r', '\n', '[':
			continue
		case '2':
			return true
		default:
			return false
		}
	}
	return false
}

// Process handles one frame received from a station. Every CALL gets exactly one
// CALLRESULT or CALLERROR.
func (p *Processor) Process(ctx context.Context, session MessageContext, raw []byte) error {
	msg, err := p.parser.Parse(raw)
	if err != nil {
		if msg != nil && msg.MessageType == protocol.MessageTypeCall {
			mc := session.WithCorrelationID(msg.UniqueID)
			return p.correlator.SendError(ctx, mc, msg.Action, ErrorFormatViolation, err.Error())
		}
		return err
	}

	mc := session.WithCorrelationID(msg.UniqueID)

	switch msg.MessageType {
	case protocol.MessageTypeCall:
		p.record(ctx, mc, msg.Action, raw)
		return p.handleCall(ctx, mc, msg)
	case protocol.MessageTypeCallResult:
		action, ok := p.correlator.HandleResult(mc.StationID, msg.UniqueID, msg.Payload)
		if !ok {
			p.logger.Warn("result for unknown call",
				zap.String("station_id", mc.StationID),
				zap.String("message_id", msg.UniqueID),
			)
			return nil
		}
		p.record(ctx, mc, action, raw)
		return p.dispatcher.DispatchResponse(ctx, mc, action, msg.Payload)
	case protocol.MessageTypeCallError:
		action, ok := p.correlator.HandleError(mc.StationID, msg.UniqueID, msg.ErrorCode, msg.ErrorDescription)
		if !ok {
			p.logger.Warn("error for unknown call",
				zap.String("station_id", mc.StationID),
				zap.String("message_id", msg.UniqueID),
				zap.String("code", msg.ErrorCode),
			)
			return nil
		}
		p.record(ctx, mc, action, raw)
		p.logger.Warn("station rejected call",
			zap.String("station_id", mc.StationID),
			zap.String("action", action),
			zap.String("code", msg.ErrorCode),
			zap.String("description", msg.ErrorDescription),
		)
		return nil
	}
	return nil
}

func (p *Processor) handleCall(ctx context.Context, mc MessageContext, msg *Message) error {
	start := time.Now()
	resp, err := p.dispatcher.Dispatch(ctx, mc, msg.Action, msg.Payload)
	if err != nil {
		code := ErrorCodeOf(err)
		p.metrics.HandlerDone(msg.Action, code, time.Since(start))
		p.logger.Warn("ocpp handler failed",
			zap.String("station_id", mc.StationID),
			zap.String("tenant_id", mc.TenantID),
			zap.String("action", msg.Action),
			zap.String("message_id", mc.CorrelationID),
			zap.String("code", code),
			zap.Error(err),
		)
		return p.correlator.SendError(ctx, mc, msg.Action, code, describe(err))
	}
	p.metrics.HandlerDone(msg.Action, "ok", time.Since(start))

	if resp == nil {
		resp = struct{}{}
	}
	return p.correlator.SendResult(ctx, mc, msg.Action, resp)
}

func (p *Processor) record(ctx context.Context, mc MessageContext, action string, raw []byte) {
	p.metrics.Message(action, metrics.DirectionIn)
	if p.logRepo == nil {
		return
	}
	if err := p.logRepo.Save(ctx, mc, "incoming", action, raw); err != nil {
		p.logger.Warn("failed to log incoming ocpp message",
			zap.String("station_id", mc.StationID),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func describe(err error) string {
	var ocppErr *Error
	if errors.As(err, &ocppErr) {
		return ocppErr.Description
	}
	return err.Error()
}
