package ocpp

import (
	"errors"
	"fmt"
)

// OCPP-J CALLERROR codes.
const (
	ErrorFormatViolation         = "FormatViolation"
	ErrorGeneric                 = "GenericError"
	ErrorInternal                = "InternalError"
	ErrorNotImplemented          = "NotImplemented"
	ErrorNotSupported            = "NotSupported"
	ErrorProtocol                = "ProtocolError"
	ErrorSecurity                = "SecurityError"
	ErrorTypeConstraintViolation = "TypeConstraintViolation"
)

var (
	// ErrUnsupportedAction is returned for actions missing from the routing table.
	ErrUnsupportedAction = errors.New("ocpp: unsupported action")
	// ErrCallTimeout is returned when a station does not answer a server call in time.
	ErrCallTimeout = errors.New("ocpp: call timed out")
	// ErrNotConnected is returned when the target station has no live connection.
	ErrNotConnected = errors.New("ocpp: station not connected")
)

// Error is a failure reported on the wire as a CALLERROR, either by us or by a station.
type Error struct {
	Code        string
	Description string
	Err         error
}

// NewError returns an error carrying an OCPP error code.
func NewError(code, description string) *Error {
	return &Error{Code: code, Description: description}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ocpp: %s: %s: %v", e.Code, e.Description, e.Err)
	}
	return fmt.Sprintf("ocpp: %s: %s", e.Code, e.Description)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCodeOf maps err to the CALLERROR code reported to the station.
func ErrorCodeOf(err error) string {
	var ocppErr *Error
	switch {
	case errors.As(err, &ocppErr):
		return ocppErr.Code
	case errors.Is(err, ErrUnsupportedAction):
		return ErrorNotImplemented
	default:
		return ErrorInternal
	}
}
