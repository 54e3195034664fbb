package protocol

// OCPP-J message type ids.
const (
	MessageTypeCall       = 2
	MessageTypeCallResult = 3
	MessageTypeCallError  = 4
)

// Actions handled by the transaction core.
const (
	ActionTransactionEvent     = "TransactionEvent"
	ActionMeterValues          = "MeterValues"
	ActionStatusNotification   = "StatusNotification"
	ActionCostUpdated          = "CostUpdated"
	ActionGetTransactionStatus = "GetTransactionStatus"
)

// TransactionEventType values.
const (
	TransactionEventStarted = "Started"
	TransactionEventUpdated = "Updated"
	TransactionEventEnded   = "Ended"
)

// AuthorizationStatus values for IdTokenInfo.
const (
	AuthorizationAccepted          = "Accepted"
	AuthorizationBlocked           = "Blocked"
	AuthorizationConcurrentTx      = "ConcurrentTx"
	AuthorizationExpired           = "Expired"
	AuthorizationInvalid           = "Invalid"
	AuthorizationNoCredit          = "NoCredit"
	AuthorizationNotAllowedType    = "NotAllowedTypeEVSE"
	AuthorizationNotAtThisLocation = "NotAtThisLocation"
	AuthorizationNotAtThisTime     = "NotAtThisTime"
	AuthorizationUnknown           = "Unknown"
)

// Connector status values.
const (
	ConnectorAvailable   = "Available"
	ConnectorOccupied    = "Occupied"
	ConnectorReserved    = "Reserved"
	ConnectorUnavailable = "Unavailable"
	ConnectorFaulted     = "Faulted"
)

// Measurands and sampling contexts used when reading energy registers.
const (
	MeasurandEnergyActiveImportRegister = "Energy.Active.Import.Register"

	ReadingContextTransactionBegin = "Transaction.Begin"
	ReadingContextTransactionEnd   = "Transaction.End"
	ReadingContextSamplePeriodic   = "Sample.Periodic"
)

// Units of measure for energy values.
const (
	UnitWh  = "Wh"
	UnitKWh = "kWh"
)

// Signed meter value encodings and signing methods.
const (
	EncodingOCMF = "OCMF"

	SigningECDSAP256SHA256 = "ECDSA-secp256r1-SHA256"
	SigningECDSAP384SHA384 = "ECDSA-secp384r1-SHA384"
	SigningECDSAP521SHA512 = "ECDSA-secp521r1-SHA512"
	SigningRSAPKCS1v15     = "RSASSA-PKCS1-v1_5"
	SigningRSAPSS          = "RSASSA-PSS"
)

// Device model locations referenced by the core.
const (
	ComponentTariffCostCtrlr  = "TariffCostCtrlr"
	ComponentConnector        = "Connector"
	VariableAvailable         = "Available"
	VariableAvailabilityState = "AvailabilityState"
)
