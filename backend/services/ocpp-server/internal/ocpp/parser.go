package ocpp

import (
	"encoding/json"
	"errors"
	"fmt"

	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
)

// Message represents a parsed OCPP-J frame.
type Message struct {
	MessageType      int
	UniqueID         string
	Action           string
	Payload          json.RawMessage
	ErrorCode        string
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// Parser decodes raw JSON OCPP frames.
type Parser struct{}

// NewParser returns parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes a CALL, CALLRESULT or CALLERROR frame.
func (p *Parser) Parse(data []byte) (*Message, error) {
	var array []json.RawMessage
	if err := json.Unmarshal(data, &array); err != nil {
		return nil, fmt.Errorf("ocpp: decode frame: %w", err)
	}

	if len(array) < 3 {
		return nil, errors.New("ocpp: malformed frame")
	}

	msg := &Message{}
	if err := json.Unmarshal(array[0], &msg.MessageType); err != nil {
		return nil, fmt.Errorf("ocpp: read message type: %w", err)
	}
	if err := json.Unmarshal(array[1], &msg.UniqueID); err != nil {
		return nil, fmt.Errorf("ocpp: read unique id: %w", err)
	}
	if msg.UniqueID == "" {
		return nil, errors.New("ocpp: empty unique id")
	}

	switch msg.MessageType {
	case protocol.MessageTypeCall:
		if len(array) < 4 {
			return msg, errors.New("ocpp: incomplete CALL frame")
		}
		if err := json.Unmarshal(array[2], &msg.Action); err != nil {
			return msg, fmt.Errorf("ocpp: read action: %w", err)
		}
		msg.Payload = array[3]
	case protocol.MessageTypeCallResult:
		msg.Payload = array[2]
	case protocol.MessageTypeCallError:
		if len(array) < 4 {
			return msg, errors.New("ocpp: incomplete CALLERROR frame")
		}
		if err := json.Unmarshal(array[2], &msg.ErrorCode); err != nil {
			return msg, fmt.Errorf("ocpp: read error code: %w", err)
		}
		if err := json.Unmarshal(array[3], &msg.ErrorDescription); err != nil {
			return msg, fmt.Errorf("ocpp: read error description: %w", err)
		}
		if len(array) > 4 {
			msg.ErrorDetails = array[4]
		}
	default:
		return nil, fmt.Errorf("ocpp: unsupported message type %d", msg.MessageType)
	}

	return msg, nil
}

// BuildCall builds a CALL frame.
func BuildCall(uniqueID, action string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal([]interface{}{protocol.MessageTypeCall, uniqueID, action, json.RawMessage(body)})
}

// BuildCallResult builds standard CALLRESULT payload.
func BuildCallResult(uniqueID string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal([]interface{}{protocol.MessageTypeCallResult, uniqueID, json.RawMessage(body)})
}

// BuildCallError builds CALLERROR payload.
func BuildCallError(uniqueID, code, description string) ([]byte, error) {
	return json.Marshal([]interface{}{protocol.MessageTypeCallError, uniqueID, code, description, map[string]string{}})
}

// Decode convenience helper for handlers. Malformed payloads become FormatViolation errors.
func Decode[T any](payload json.RawMessage) (T, error) {
	var target T
	if err := json.Unmarshal(payload, &target); err != nil {
		var zero T
		return zero, &Error{Code: ErrorFormatViolation, Description: "malformed payload", Err: err}
	}
	return target, nil
}
