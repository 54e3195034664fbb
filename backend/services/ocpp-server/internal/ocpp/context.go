package ocpp

// MessageContext identifies who sent a message and which exchange it belongs to.
// CorrelationID is the OCPP unique id of the frame.
type MessageContext struct {
	StationID     string
	TenantID      string
	CorrelationID string
}

// WithCorrelationID returns a copy bound to another exchange.
func (mc MessageContext) WithCorrelationID(id string) MessageContext {
	mc.CorrelationID = id
	return mc
}
