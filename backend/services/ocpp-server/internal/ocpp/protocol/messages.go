package protocol

import "time"

// IdToken identifies the party requesting energy.
type IdToken struct {
	IdToken        string           `json:"idToken"`
	Type           string           `json:"type"`
	AdditionalInfo []AdditionalInfo `json:"additionalInfo,omitempty"`
}

// AdditionalInfo carries extra token data.
type AdditionalInfo struct {
	AdditionalIdToken string `json:"additionalIdToken"`
	Type              string `json:"type"`
}

// MessageContent is a display message for the driver.
type MessageContent struct {
	Format   string `json:"format"`
	Language string `json:"language,omitempty"`
	Content  string `json:"content"`
}

// IdTokenInfo is the result of authorizing an IdToken.
type IdTokenInfo struct {
	Status              string          `json:"status"`
	CacheExpiryDateTime *time.Time      `json:"cacheExpiryDateTime,omitempty"`
	ChargingPriority    *int            `json:"chargingPriority,omitempty"`
	Language1           string          `json:"language1,omitempty"`
	Language2           string          `json:"language2,omitempty"`
	EvseID              []int           `json:"evseId,omitempty"`
	GroupIdToken        *IdToken        `json:"groupIdToken,omitempty"`
	PersonalMessage     *MessageContent `json:"personalMessage,omitempty"`
}

// EVSE addresses an EVSE and optionally one of its connectors.
type EVSE struct {
	ID          int  `json:"id"`
	ConnectorID *int `json:"connectorId,omitempty"`
}

// UnitOfMeasure scales a sampled value: value * 10^Multiplier Unit.
type UnitOfMeasure struct {
	Unit       string `json:"unit,omitempty"`
	Multiplier int    `json:"multiplier,omitempty"`
}

// SignedMeterValue carries the station-signed form of a reading.
type SignedMeterValue struct {
	SignedMeterData string `json:"signedMeterData"`
	SigningMethod   string `json:"signingMethod"`
	EncodingMethod  string `json:"encodingMethod"`
	PublicKey       string `json:"publicKey,omitempty"`
}

// SampledValue is one measured quantity.
type SampledValue struct {
	Value            float64           `json:"value"`
	Context          string            `json:"context,omitempty"`
	Measurand        string            `json:"measurand,omitempty"`
	Phase            string            `json:"phase,omitempty"`
	Location         string            `json:"location,omitempty"`
	SignedMeterValue *SignedMeterValue `json:"signedMeterValue,omitempty"`
	UnitOfMeasure    *UnitOfMeasure    `json:"unitOfMeasure,omitempty"`
}

// MeterValue groups sampled values taken at one instant.
type MeterValue struct {
	Timestamp    time.Time      `json:"timestamp"`
	SampledValue []SampledValue `json:"sampledValue"`
}

// Transaction is the transactionInfo block of a TransactionEvent.
type Transaction struct {
	TransactionID     string `json:"transactionId"`
	ChargingState     string `json:"chargingState,omitempty"`
	TimeSpentCharging *int   `json:"timeSpentCharging,omitempty"`
	StoppedReason     string `json:"stoppedReason,omitempty"`
	RemoteStartID     *int   `json:"remoteStartId,omitempty"`
}

// TransactionEventRequest is sent by a station on transaction start, change and end.
type TransactionEventRequest struct {
	EventType          string       `json:"eventType"`
	Timestamp          time.Time    `json:"timestamp"`
	TriggerReason      string       `json:"triggerReason"`
	SeqNo              int          `json:"seqNo"`
	Offline            bool         `json:"offline,omitempty"`
	NumberOfPhasesUsed *int         `json:"numberOfPhasesUsed,omitempty"`
	CableMaxCurrent    *int         `json:"cableMaxCurrent,omitempty"`
	ReservationID      *int         `json:"reservationId,omitempty"`
	TransactionInfo    Transaction  `json:"transactionInfo"`
	IdToken            *IdToken     `json:"idToken,omitempty"`
	EVSE               *EVSE        `json:"evse,omitempty"`
	MeterValue         []MeterValue `json:"meterValue,omitempty"`
}

// TransactionEventResponse answers a TransactionEventRequest.
type TransactionEventResponse struct {
	TotalCost              *float64        `json:"totalCost,omitempty"`
	ChargingPriority       *int            `json:"chargingPriority,omitempty"`
	IdTokenInfo            *IdTokenInfo    `json:"idTokenInfo,omitempty"`
	UpdatedPersonalMessage *MessageContent `json:"updatedPersonalMessage,omitempty"`
}

// MeterValuesRequest carries readings outside of a transaction event.
type MeterValuesRequest struct {
	EvseID     int          `json:"evseId"`
	MeterValue []MeterValue `json:"meterValue"`
}

// MeterValuesResponse is empty.
type MeterValuesResponse struct{}

// StatusNotificationRequest reports a connector status change.
type StatusNotificationRequest struct {
	Timestamp       time.Time `json:"timestamp"`
	ConnectorStatus string    `json:"connectorStatus"`
	EvseID          int       `json:"evseId"`
	ConnectorID     int       `json:"connectorId"`
}

// StatusNotificationResponse is empty.
type StatusNotificationResponse struct{}

// CostUpdatedRequest is pushed by the server with the running cost of a transaction.
type CostUpdatedRequest struct {
	TotalCost     float64 `json:"totalCost"`
	TransactionID string  `json:"transactionId"`
}

// CostUpdatedResponse is empty.
type CostUpdatedResponse struct{}

// GetTransactionStatusRequest asks a station about a transaction.
type GetTransactionStatusRequest struct {
	TransactionID string `json:"transactionId,omitempty"`
}

// GetTransactionStatusResponse reports whether messages are still queued for a transaction.
type GetTransactionStatusResponse struct {
	OngoingIndicator *bool `json:"ongoingIndicator,omitempty"`
	MessagesInQueue  bool  `json:"messagesInQueue"`
}
